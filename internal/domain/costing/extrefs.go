package costing

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/entity"
	"jobcost/internal/core/id"
)

// ExtRefs are the external references of a cost line.
//
// The only trusted stock linkage is StockMovementID. StockID is the legacy
// direct reference still found in imported data; it must be migrated to a
// movement before the line is trusted.
type ExtRefs struct {
	StockMovementID *id.ID            `json:"stock_movement_id,omitempty"`
	StockID         *id.ID            `json:"stock_id,omitempty"`
	External        map[string]string `json:"external,omitempty"`
}

var extRefKeys = map[string]bool{
	"stock_movement_id": true,
	"stock_id":          true,
	"external":          true,
}

// ParseExtRefs decodes raw ext_refs. Unknown keys are rejected by name.
func ParseExtRefs(raw entity.Attributes) (ExtRefs, error) {
	var refs ExtRefs
	if len(raw) == 0 {
		return refs, nil
	}

	var unknown []string
	for _, key := range raw.Keys() {
		if !extRefKeys[key] {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		return refs, apperror.NewSchemaValidation("ext_refs", unknown, "unknown ext_refs keys")
	}

	if err := raw.Decode(&refs); err != nil {
		return refs, apperror.NewSchemaValidation("ext_refs", raw.Keys(), "invalid ext_refs").WithCause(err)
	}
	return refs, nil
}

// HasStockLink reports whether any stock-related key is set.
func (r ExtRefs) HasStockLink() bool {
	return r.StockMovementID != nil || r.StockID != nil
}

// IsZero reports whether no reference is set.
func (r ExtRefs) IsZero() bool {
	return !r.HasStockLink() && len(r.External) == 0
}

// Value implements driver.Valuer for JSONB.
func (r ExtRefs) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner for JSONB.
func (r *ExtRefs) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*r = ExtRefs{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for ExtRefs: %T", src)
	}
	if len(data) == 0 {
		*r = ExtRefs{}
		return nil
	}
	return json.Unmarshal(data, r)
}

// Attributes returns the raw form accepted by ParseExtRefs.
func (r ExtRefs) Attributes() entity.Attributes {
	a := entity.Attributes{}
	if r.StockMovementID != nil {
		a["stock_movement_id"] = r.StockMovementID.String()
	}
	if r.StockID != nil {
		a["stock_id"] = r.StockID.String()
	}
	if len(r.External) > 0 {
		ext := make(map[string]any, len(r.External))
		for k, v := range r.External {
			ext[k] = v
		}
		a["external"] = ext
	}
	return a
}
