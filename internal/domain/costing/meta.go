package costing

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/entity"
	"jobcost/internal/core/id"
)

// Meta is the kind-specific payload of a cost line. Each line kind has exactly
// one implementation; the registry decodes raw input into it.
type Meta interface {
	Kind() LineKind
	Attributes() entity.Attributes
}

// DateLayout is the wire format of meta dates.
const DateLayout = "2006-01-02"

// TimeMeta belongs to labour lines.
type TimeMeta struct {
	StaffID        *id.ID           `json:"staff_id,omitempty"`
	Date           string           `json:"date,omitempty" jsonschema:"format=date"`
	IsBillable     *bool            `json:"is_billable,omitempty"`
	RateMultiplier *decimal.Decimal `json:"rate_multiplier,omitempty"`
}

func (TimeMeta) Kind() LineKind { return LineTime }

func (m TimeMeta) Attributes() entity.Attributes {
	a := entity.Attributes{}
	if m.StaffID != nil {
		a["staff_id"] = m.StaffID.String()
	}
	if m.Date != "" {
		a["date"] = m.Date
	}
	if m.IsBillable != nil {
		a["is_billable"] = *m.IsBillable
	}
	if m.RateMultiplier != nil {
		a["rate_multiplier"] = json.Number(m.RateMultiplier.String())
	}
	return a
}

// MaterialMeta belongs to material lines. The stock linkage itself lives in ext_refs.
type MaterialMeta struct {
	ItemCode   string `json:"item_code,omitempty"`
	ConsumedBy string `json:"consumed_by,omitempty"`
	Comments   string `json:"comments,omitempty"`
	Source     string `json:"source,omitempty" jsonschema:"enum=stock,enum=purchase,enum=manual"`
}

func (MaterialMeta) Kind() LineKind { return LineMaterial }

func (m MaterialMeta) Attributes() entity.Attributes {
	a := entity.Attributes{}
	putString(a, "item_code", m.ItemCode)
	putString(a, "consumed_by", m.ConsumedBy)
	putString(a, "comments", m.Comments)
	putString(a, "source", m.Source)
	return a
}

// AdjustMeta belongs to manual adjustment lines.
type AdjustMeta struct {
	Reason   string `json:"reason,omitempty"`
	Comments string `json:"comments,omitempty"`
}

func (AdjustMeta) Kind() LineKind { return LineAdjust }

func (m AdjustMeta) Attributes() entity.Attributes {
	a := entity.Attributes{}
	putString(a, "reason", m.Reason)
	putString(a, "comments", m.Comments)
	return a
}

func putString(a entity.Attributes, key, v string) {
	if v != "" {
		a[key] = v
	}
}

// Material sources.
const (
	SourceStock    = "stock"
	SourcePurchase = "purchase"
	SourceManual   = "manual"
)

type keyCheck func(v any) error

// Schema describes the meta keys of one line kind.
type Schema struct {
	Kind LineKind
	// Keys maps every allowed key to its value check.
	Keys map[string]keyCheck
	// RequiredInActual must be present when the owning set is an actual.
	RequiredInActual []string

	decode func(raw entity.Attributes) (Meta, error)
}

// AllowedKeys returns the schema keys in sorted order.
func (s Schema) AllowedKeys() []string {
	keys := make([]string, 0, len(s.Keys))
	for k := range s.Keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Registry maps a line kind to its meta schema.
type Registry struct {
	schemas map[LineKind]Schema
}

// DefaultRegistry returns the schemas for time, material and adjust lines.
func DefaultRegistry() *Registry {
	return &Registry{schemas: map[LineKind]Schema{
		LineTime: {
			Kind: LineTime,
			Keys: map[string]keyCheck{
				"staff_id":        checkUUID,
				"date":            checkDate,
				"is_billable":     checkBool,
				"rate_multiplier": checkPositiveDecimal,
			},
			RequiredInActual: []string{"staff_id", "is_billable"},
			decode: func(raw entity.Attributes) (Meta, error) {
				var m TimeMeta
				if err := raw.Decode(&m); err != nil {
					return nil, err
				}
				return m, nil
			},
		},
		LineMaterial: {
			Kind: LineMaterial,
			Keys: map[string]keyCheck{
				"item_code":   checkString,
				"consumed_by": checkString,
				"comments":    checkString,
				"source":      checkOneOf(SourceStock, SourcePurchase, SourceManual),
			},
			decode: func(raw entity.Attributes) (Meta, error) {
				var m MaterialMeta
				if err := raw.Decode(&m); err != nil {
					return nil, err
				}
				return m, nil
			},
		},
		LineAdjust: {
			Kind: LineAdjust,
			Keys: map[string]keyCheck{
				"reason":   checkString,
				"comments": checkString,
			},
			decode: func(raw entity.Attributes) (Meta, error) {
				var m AdjustMeta
				if err := raw.Decode(&m); err != nil {
					return nil, err
				}
				return m, nil
			},
		},
	}}
}

// Schema returns the schema of kind.
func (r *Registry) Schema(kind LineKind) (Schema, bool) {
	s, ok := r.schemas[kind]
	return s, ok
}

// Decode validates raw meta for a line of kind inside a set of setKind and
// returns the typed value. Invalid input is rejected, never stripped or coerced.
func (r *Registry) Decode(kind LineKind, setKind SetKind, raw entity.Attributes) (Meta, error) {
	schema, ok := r.schemas[kind]
	if !ok {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown cost line kind %q", kind)).
			WithDetail("field", "kind")
	}

	var foreign []string
	for _, key := range raw.Keys() {
		if _, allowed := schema.Keys[key]; !allowed {
			foreign = append(foreign, key)
		}
	}
	if len(foreign) > 0 {
		return nil, apperror.NewSchemaValidation(string(kind), foreign,
			fmt.Sprintf("meta keys not allowed on %s lines", kind))
	}

	var invalid []string
	var reasons []string
	for _, key := range raw.Keys() {
		v := raw[key]
		if v == nil {
			continue
		}
		if err := schema.Keys[key](v); err != nil {
			invalid = append(invalid, key)
			reasons = append(reasons, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(invalid) > 0 {
		return nil, apperror.NewSchemaValidation(string(kind), invalid, "invalid meta values").
			WithDetail("reasons", reasons)
	}

	if setKind == SetActual {
		var missing []string
		for _, key := range schema.RequiredInActual {
			if raw[key] == nil {
				missing = append(missing, key)
			}
		}
		if len(missing) > 0 {
			return nil, apperror.NewSchemaValidation(string(kind), missing,
				fmt.Sprintf("meta keys required on %s lines in actual cost sets", kind))
		}
	}

	meta, err := schema.decode(raw)
	if err != nil {
		return nil, apperror.NewSchemaValidation(string(kind), nil, "meta could not be decoded").WithCause(err)
	}
	return meta, nil
}

func checkString(v any) error {
	if _, ok := v.(string); !ok {
		return fmt.Errorf("must be a string")
	}
	return nil
}

func checkBool(v any) error {
	if _, ok := v.(bool); !ok {
		return fmt.Errorf("must be a boolean")
	}
	return nil
}

func checkUUID(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("must be a uuid string")
	}
	parsed, err := id.Parse(s)
	if err != nil || id.IsNil(parsed) {
		return fmt.Errorf("must be a uuid")
	}
	return nil
}

func checkDate(v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("must be a date string")
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return fmt.Errorf("must be YYYY-MM-DD")
	}
	return nil
}

func checkPositiveDecimal(v any) error {
	var d decimal.Decimal
	var err error
	switch n := v.(type) {
	case json.Number:
		d, err = decimal.NewFromString(n.String())
	case string:
		d, err = decimal.NewFromString(n)
	case float64:
		d = decimal.NewFromFloat(n)
	case int:
		d = decimal.NewFromInt(int64(n))
	default:
		return fmt.Errorf("must be a number")
	}
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if !d.IsPositive() {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func checkOneOf(values ...string) keyCheck {
	return func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("must be a string")
		}
		for _, allowed := range values {
			if s == allowed {
				return nil
			}
		}
		return fmt.Errorf("must be one of %v", values)
	}
}
