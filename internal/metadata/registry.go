// Package metadata describes the API's entities for clients: a field listing
// per entity and JSON Schema documents for cost line meta payloads.
package metadata

import (
	"sort"

	"github.com/invopop/jsonschema"
)

// EntityType defines the category of the entity.
type EntityType string

const (
	TypeRegister EntityType = "register"
	TypeDocument EntityType = "document"
	TypeCosting  EntityType = "costing"
)

// FieldType defines the data type of a field.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeInteger   FieldType = "integer"
	TypeQuantity  FieldType = "quantity" // fixed-point, four decimals
	TypeBoolean   FieldType = "boolean"
	TypeDate      FieldType = "date"
	TypeReference FieldType = "reference"
	TypeMoney     FieldType = "money"
	TypeObject    FieldType = "object"
)

// EntityDef describes a business entity.
type EntityDef struct {
	Name       string         `json:"name"`
	Label      string         `json:"label,omitempty"`
	Type       EntityType     `json:"type"`
	Fields     []FieldDef     `json:"fields"`
	TableParts []TablePartDef `json:"tableParts,omitempty"`
}

// TablePartDef describes a nested collection (lines).
type TablePartDef struct {
	Name    string     `json:"name"`
	Label   string     `json:"label,omitempty"`
	Columns []FieldDef `json:"columns"`
}

// FieldDef describes a field.
type FieldDef struct {
	Name          string    `json:"name"`
	Label         string    `json:"label,omitempty"`
	Type          FieldType `json:"type"`
	ReferenceType string    `json:"referenceType,omitempty"` // e.g. "stock"
	Optional      bool      `json:"optional,omitempty"`
	ReadOnly      bool      `json:"readOnly,omitempty"`
	Scale         int       `json:"scale,omitempty"`
}

// Registry stores entity definitions and named JSON Schemas. It is filled
// at startup and read-only afterwards.
type Registry struct {
	entities map[string]EntityDef
	schemas  map[string]*jsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{
		entities: make(map[string]EntityDef),
		schemas:  make(map[string]*jsonschema.Schema),
	}
}

func (r *Registry) Register(def EntityDef) {
	r.entities[def.Name] = def
}

func (r *Registry) Get(name string) (EntityDef, bool) {
	d, ok := r.entities[name]
	return d, ok
}

// List returns the entities sorted by name.
func (r *Registry) List() []EntityDef {
	list := make([]EntityDef, 0, len(r.entities))
	for _, def := range r.entities {
		list = append(list, def)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// RegisterSchema stores s under name.
func (r *Registry) RegisterSchema(name string, s *jsonschema.Schema) {
	r.schemas[name] = s
}

func (r *Registry) Schema(name string) (*jsonschema.Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// Schemas returns every stored schema by name.
func (r *Registry) Schemas() map[string]*jsonschema.Schema {
	out := make(map[string]*jsonschema.Schema, len(r.schemas))
	for k, v := range r.schemas {
		out[k] = v
	}
	return out
}
