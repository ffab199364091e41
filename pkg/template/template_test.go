package template

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/stepflow/pkg/models"
)

func newContext(t *testing.T) *models.ExecutionContext {
	t.Helper()

	execCtx := models.NewExecutionContext("run-1", "auto-1", map[string]any{
		"tableId": "orders",
		"row":     map[string]any{"id": "r1", "total": 42},
	})

	require.NoError(t, execCtx.Set("step1", map[string]any{
		"rows": []any{
			map[string]any{"id": "r1", "name": "Alice"},
			map[string]any{"id": "r2", "name": "Bob"},
		},
		"meta":  map[string]any{"length": "custom"},
		"title": "héllo",
	}))

	return execCtx
}

func TestResolve_WholeBindingKeepsType(t *testing.T) {
	execCtx := newContext(t)

	tests := []struct {
		name     string
		template any
		expected any
	}{
		{"trigger field", "{{trigger.tableId}}", "orders"},
		{"nested number", "{{trigger.row.total}}", 42},
		{"array index", "{{step1.rows.0}}", map[string]any{"id": "r1", "name": "Alice"}},
		{"array length", "{{step1.rows.length}}", 2},
		{"string length", "{{step1.title.length}}", 5},
		{"object with length key", "{{step1.meta.length}}", "custom"},
		{"whitespace", "{{ step1.rows.1.name }}", "Bob"},
		{"whole source", "{{trigger}}", map[string]any{
			"tableId": "orders",
			"row":     map[string]any{"id": "r1", "total": 42},
		}},
		{"literal", 7, 7},
		{"plain string", "no bindings", "no bindings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Resolve(tt.template, execCtx))
		})
	}
}

func TestResolve_Interpolation(t *testing.T) {
	execCtx := newContext(t)

	assert.Equal(t, "Hello Alice, 2 rows", Resolve("Hello {{step1.rows.0.name}}, {{step1.rows.length}} rows", execCtx))
	assert.Equal(t, "row: {\"id\":\"r1\",\"total\":42}", Resolve("row: {{trigger.row}}", execCtx))
	assert.Equal(t, "missing: ", Resolve("missing: {{step9.value}}", execCtx))
}

func TestResolve_Recursive(t *testing.T) {
	execCtx := newContext(t)

	resolved := Resolve(map[string]any{
		"id":   "{{step1.rows.1.id}}",
		"tags": []any{"{{trigger.tableId}}", "static"},
	}, execCtx)

	assert.Equal(t, map[string]any{
		"id":   "r2",
		"tags": []any{"orders", "static"},
	}, resolved)
}

func TestResolve_Unresolved(t *testing.T) {
	execCtx := newContext(t)

	for _, tmpl := range []string{"{{step9}}", "{{step1.rows.5}}", "{{step1.rows.-1}}", "{{step1.rows.01}}", "{{trigger.row.missing}}", "{{step1.rows.0.name.first}}"} {
		t.Run(tmpl, func(t *testing.T) {
			assert.True(t, IsUnresolved(Resolve(tmpl, execCtx)))
		})
	}
}

func TestResolve_IsPure(t *testing.T) {
	execCtx := newContext(t)
	tmpl := map[string]any{"row": "{{step1.rows.0}}", "text": "{{step1.rows.length}} rows"}

	first := Resolve(tmpl, execCtx)
	second := Resolve(tmpl, execCtx)

	assert.Equal(t, first, second)
	assert.Equal(t, map[string]any{"row": "{{step1.rows.0}}", "text": "{{step1.rows.length}} rows"}, tmpl)
}

func TestLookup_KeepsValueTypes(t *testing.T) {
	execCtx := models.NewExecutionContext("run-1", "auto-1", nil)
	require.NoError(t, execCtx.Set("step1", map[string]any{
		"rows":  []map[string]any{{"id": int64(9007199254740993), "price": 9.5}},
		"typed": struct{ Name string }{Name: "ana"},
	}))

	tests := []struct {
		name     string
		template string
		expected any
	}{
		{"large int64 id", "{{step1.rows.0.id}}", int64(9007199254740993)},
		{"float", "{{step1.rows.0.price}}", 9.5},
		{"row object", "{{step1.rows.0}}", map[string]any{"id": int64(9007199254740993), "price": 9.5}},
		{"interpolated id", "id={{step1.rows.0.id}}", "id=9007199254740993"},
		{"struct field", "{{step1.typed.Name}}", "ana"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Resolve(tt.template, execCtx))
		})
	}
}

func TestLookup_DoesNotAliasContext(t *testing.T) {
	execCtx := newContext(t)

	row := Resolve("{{step1.rows.0}}", execCtx).(map[string]any)
	row["name"] = "Mallory"

	assert.Equal(t, "Alice", Resolve("{{step1.rows.0.name}}", execCtx))
}

func TestResolveRequired(t *testing.T) {
	execCtx := newContext(t)

	value, err := ResolveRequired("{{step1.rows.0.id}}", execCtx)
	require.NoError(t, err)
	assert.Equal(t, "r1", value)

	_, err = ResolveRequired("id={{step2.id}}", execCtx)
	require.Error(t, err)

	var bindingErr *BindingResolutionError
	require.True(t, errors.As(err, &bindingErr))
	assert.Equal(t, "step2.id", bindingErr.Path)
	assert.True(t, errors.Is(err, ErrUnresolvedBinding))
}

func TestResolveInputs(t *testing.T) {
	execCtx := newContext(t)

	t.Run("optional unresolved becomes nil", func(t *testing.T) {
		inputs, err := ResolveInputs(map[string]any{
			"row":      "{{step1.rows.0}}",
			"optional": "{{step7.value}}",
			"nested":   map[string]any{"x": "{{step7.value}}"},
		}, nil, execCtx)
		require.NoError(t, err)

		assert.Equal(t, map[string]any{"id": "r1", "name": "Alice"}, inputs["row"])
		assert.Nil(t, inputs["optional"])
		assert.Equal(t, map[string]any{"x": nil}, inputs["nested"])
	})

	t.Run("required unresolved fails", func(t *testing.T) {
		_, err := ResolveInputs(map[string]any{"row": "{{step7.row}}"}, []string{"row"}, execCtx)

		var bindingErr *BindingResolutionError
		require.True(t, errors.As(err, &bindingErr))
		assert.Equal(t, "row", bindingErr.Input)
		assert.Equal(t, "step7.row", bindingErr.Path)
		assert.Contains(t, err.Error(), `input "row"`)
	})

	t.Run("required missing input fails", func(t *testing.T) {
		_, err := ResolveInputs(map[string]any{}, []string{"tableId"}, execCtx)
		assert.True(t, errors.Is(err, ErrMissingInput))
	})
}

func TestLoopKeys(t *testing.T) {
	execCtx := newContext(t).ForIteration(map[string]any{"sku": "A-1"}, 3)

	assert.Equal(t, "A-1", Resolve("{{currentItem.sku}}", execCtx))
	assert.Equal(t, 3, Resolve("{{currentIndex}}", execCtx))
	assert.Equal(t, "item 3", Resolve("item {{currentIndex}}", execCtx))
}

func TestReferences(t *testing.T) {
	refs := References(map[string]any{
		"a": "{{step1.rows.0}} and {{ trigger.id }}",
		"b": []any{"{{currentItem}}", 5},
	})

	assert.ElementsMatch(t, []string{"step1.rows.0", "trigger.id", "currentItem"}, refs)
	assert.Equal(t, "step1", SourceID("step1.rows.0"))
	assert.True(t, ContainsBinding("x {{y}}"))
	assert.False(t, ContainsBinding("x {y}"))
}
