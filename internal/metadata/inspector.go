package metadata

import (
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"jobcost/internal/core/entity"
	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
)

var (
	idType         = reflect.TypeOf(id.ID{})
	timeType       = reflect.TypeOf(time.Time{})
	decimalType    = reflect.TypeOf(decimal.Decimal{})
	quantityType   = reflect.TypeOf(types.Quantity(0))
	attributesType = reflect.TypeOf(entity.Attributes{})
)

// Inspect analyzes a struct and returns its EntityDef. Embedded structs are
// flattened; slices of structs become table parts.
func Inspect(v any, name string, entityType EntityType) EntityDef {
	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if name == "" {
		name = t.Name()
	}

	def := EntityDef{
		Name:       name,
		Label:      guessLabel(name),
		Type:       entityType,
		Fields:     make([]FieldDef, 0),
		TableParts: make([]TablePartDef, 0),
	}
	inspectStruct(t, &def)
	return def
}

func inspectStruct(t reflect.Type, def *EntityDef) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue
		}
		if field.Anonymous {
			inspectStruct(field.Type, def)
			continue
		}
		if jsonName(field) == "-" {
			continue
		}

		if field.Type.Kind() == reflect.Slice && field.Type.Elem().Kind() == reflect.Struct {
			def.TableParts = append(def.TableParts, TablePartDef{
				Name:    jsonName(field),
				Label:   guessLabel(field.Name),
				Columns: inspectColumns(field.Type.Elem()),
			})
			continue
		}
		def.Fields = append(def.Fields, fieldDef(field))
	}
}

func inspectColumns(t reflect.Type) []FieldDef {
	cols := make([]FieldDef, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" || jsonName(field) == "-" {
			continue
		}
		cols = append(cols, fieldDef(field))
	}
	return cols
}

func fieldDef(field reflect.StructField) FieldDef {
	def := FieldDef{
		Name:     jsonName(field),
		Label:    guessLabel(field.Name),
		ReadOnly: isReadOnly(field),
	}
	t := field.Type
	if t.Kind() == reflect.Ptr {
		def.Optional = true
		t = t.Elem()
	}
	if strings.Contains(field.Tag.Get("json"), "omitempty") {
		def.Optional = true
	}
	mapFieldType(&def, field.Name, t)
	return def
}

func mapFieldType(def *FieldDef, name string, t reflect.Type) {
	switch t {
	case idType:
		def.Type = TypeReference
		// "SourcePOLineID" -> "po_line", "JobID" -> "job"
		base := strings.TrimSuffix(name, "ID")
		base = strings.TrimPrefix(base, "Source")
		base = strings.TrimPrefix(base, "Latest")
		if base != "" && base != name {
			def.ReferenceType = snake(strings.TrimPrefix(base, "Parent"))
		}
		return
	case timeType:
		def.Type = TypeDate
		return
	case decimalType:
		def.Type = TypeMoney
		def.Scale = 4
		return
	case quantityType:
		def.Type = TypeQuantity
		def.Scale = 4
		return
	case attributesType:
		def.Type = TypeObject
		return
	}

	switch t.Kind() {
	case reflect.String:
		def.Type = TypeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		def.Type = TypeInteger
	case reflect.Bool:
		def.Type = TypeBoolean
	case reflect.Struct, reflect.Map:
		def.Type = TypeObject
	default:
		def.Type = TypeString
	}
}

func jsonName(field reflect.StructField) string {
	if tag, ok := field.Tag.Lookup("json"); ok {
		parts := strings.Split(tag, ",")
		if parts[0] != "" {
			return parts[0]
		}
	}
	runes := []rune(field.Name)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

func isReadOnly(field reflect.StructField) bool {
	switch field.Name {
	case "ID", "Version", "CreatedAt", "UpdatedAt", "ReceivedQuantity", "Summary":
		return true
	}
	return false
}

// snake converts "POLine" to "po_line".
func snake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 &&
			(unicode.IsLower(runes[i-1]) || i+1 < len(runes) && unicode.IsLower(runes[i+1])) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func guessLabel(name string) string {
	return strings.ReplaceAll(snake(name), "_", " ")
}
