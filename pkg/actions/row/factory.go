// Package row provides the createRow, updateRow, deleteRow and queryRows step
// kinds over a rows.Store.
package row

import (
	"github.com/dukex/stepflow/pkg/models"
	"github.com/dukex/stepflow/pkg/protocol"
	"github.com/dukex/stepflow/pkg/rows"
)

const (
	CreateKind = "createRow"
	UpdateKind = "updateRow"
	DeleteKind = "deleteRow"
	QueryKind  = "queryRows"
)

// Factories returns the four row kinds bound to store.
func Factories(store rows.Store) []protocol.ActionFactory {
	return []protocol.ActionFactory{
		NewCreateFactory(store),
		NewUpdateFactory(store),
		NewDeleteFactory(store),
		NewQueryFactory(store),
	}
}

// CreateFactory builds createRow actions.
type CreateFactory struct {
	store rows.Store
}

func NewCreateFactory(store rows.Store) *CreateFactory {
	return &CreateFactory{store: store}
}

func (*CreateFactory) ID() string          { return CreateKind }
func (*CreateFactory) Name() string        { return "Create Row" }
func (*CreateFactory) Description() string { return "Adds a row to a table." }

func (f *CreateFactory) Create(inputs map[string]any) (protocol.Action, error) {
	return NewCreateAction(f.store, inputs)
}

func (*CreateFactory) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"row": {
				Type:        "object",
				Description: "The row to create. tableId selects the table; every other field is stored.",
				Required:    []string{"tableId"},
			},
		},
		Required: []string{"row"},
	}
}

// UpdateFactory builds updateRow actions.
type UpdateFactory struct {
	store rows.Store
}

func NewUpdateFactory(store rows.Store) *UpdateFactory {
	return &UpdateFactory{store: store}
}

func (*UpdateFactory) ID() string          { return UpdateKind }
func (*UpdateFactory) Name() string        { return "Update Row" }
func (*UpdateFactory) Description() string { return "Merges fields into an existing row." }

func (f *UpdateFactory) Create(inputs map[string]any) (protocol.Action, error) {
	return NewUpdateAction(f.store, inputs)
}

func (*UpdateFactory) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"rowId": {Type: "string", Description: "Identifier of the row to update."},
			"row": {
				Type:        "object",
				Description: "Fields to merge. tableId selects the table.",
				Required:    []string{"tableId"},
			},
		},
		Required: []string{"rowId", "row"},
	}
}

// DeleteFactory builds deleteRow actions.
type DeleteFactory struct {
	store rows.Store
}

func NewDeleteFactory(store rows.Store) *DeleteFactory {
	return &DeleteFactory{store: store}
}

func (*DeleteFactory) ID() string          { return DeleteKind }
func (*DeleteFactory) Name() string        { return "Delete Row" }
func (*DeleteFactory) Description() string { return "Removes a row from a table." }

func (f *DeleteFactory) Create(inputs map[string]any) (protocol.Action, error) {
	return NewDeleteAction(f.store, inputs)
}

func (*DeleteFactory) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"tableId": {Type: "string", Description: "Table holding the row."},
			"id":      {Type: "string", Description: "Identifier of the row to delete."},
		},
		Required: []string{"tableId", "id"},
	}
}

// QueryFactory builds queryRows actions.
type QueryFactory struct {
	store rows.Store
}

func NewQueryFactory(store rows.Store) *QueryFactory {
	return &QueryFactory{store: store}
}

func (*QueryFactory) ID() string   { return QueryKind }
func (*QueryFactory) Name() string { return "Query Rows" }

func (*QueryFactory) Description() string {
	return "Lists the rows of a table that match the filters, sorted and limited."
}

func (f *QueryFactory) Create(inputs map[string]any) (protocol.Action, error) {
	return NewQueryAction(f.store, inputs)
}

func (*QueryFactory) Schema() *models.JSONSchema {
	return &models.JSONSchema{
		Type: "object",
		Properties: map[string]*models.Property{
			"tableId": {Type: "string", Description: "Table to query."},
			"filters": {
				Description: "Either an object of field equality matches or a list of {field, operator, value}.",
			},
			"sortColumn": {Type: "string", Description: "Field to sort by."},
			"sortOrder": {
				Type:    "string",
				Enum:    []any{"ascending", "descending"},
				Default: "ascending",
			},
			"limit": {Type: "number", Description: "Maximum number of rows; 0 means no limit."},
		},
		Required: []string{"tableId"},
	}
}
