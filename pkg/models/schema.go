package models

// JSONSchema describes the input contract of a step kind.
type JSONSchema struct {
	Type        string               `json:"type"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
	Title       string               `json:"title,omitempty"`
	Description string               `json:"description,omitempty"`
}

// Property represents a JSON Schema property
type Property struct {
	Type        string               `json:"type,omitempty"`
	Description string               `json:"description,omitempty"`
	Enum        []any                `json:"enum,omitempty"`
	Default     any                  `json:"default,omitempty"`
	Format      string               `json:"format,omitempty"`
	MinLength   *int                 `json:"minLength,omitempty"`
	Minimum     *float64             `json:"minimum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Required    []string             `json:"required,omitempty"`
}

// KindGroup separates pure data kinds from kinds that call external collaborators.
type KindGroup string

const (
	KindGroupData     KindGroup = "data"
	KindGroupExternal KindGroup = "external"
)

// RegisteredKind is the public description of a registered step kind.
type RegisteredKind struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Group       KindGroup   `json:"group"`
	Schema      *JSONSchema `json:"schema"`
}
