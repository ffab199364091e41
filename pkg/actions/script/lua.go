package script

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Shopify/go-lua"
)

var (
	ErrLuaLoad      = errors.New("lua load error")
	ErrLuaExecution = errors.New("lua execution error")
)

const (
	luaGlobalTableName = "_G"

	// hookInstructions is how often the interpreter checks for cancellation.
	hookInstructions = 1000

	maxTableDepth = 64
)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

// run executes code as the body of a function with globals set, returning
// the script's single result converted to Go. A panic inside the interpreter
// is returned as ErrLuaExecution.
func run(ctx context.Context, code string, globals map[string]any) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			result, err = nil, fmt.Errorf("%w: interpreter panic: %v", ErrLuaExecution, p)
		}
	}()

	l := lua.NewState()
	sandbox(l)

	lua.SetDebugHook(l, func(state *lua.State, _ lua.Debug) {
		if ctx.Err() != nil {
			lua.Errorf(state, "script interrupted: %s", ctx.Err().Error())
		}
	}, lua.MaskCount, hookInstructions)

	names := make([]string, 0, len(globals))
	for name := range globals {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		push(l, globals[name])
		l.SetGlobal(name)
	}

	if err := lua.LoadString(l, code); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}

	if err := l.ProtectedCall(0, 1, 0); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrLuaExecution, ctx.Err())
		}

		return nil, fmt.Errorf("%w: %w", ErrLuaExecution, err)
	}

	result, err = toGo(l, -1)
	l.Pop(1)

	return result, err
}

func sandbox(l *lua.State) {
	lua.OpenLibraries(l)
	l.Global(luaGlobalTableName)

	for _, name := range luaExclude {
		l.PushNil()
		l.SetField(-2, name)
	}

	l.Pop(1)
}

func push(l *lua.State, value any) {
	switch v := value.(type) {
	case nil:
		l.PushNil()
	case string:
		l.PushString(v)
	case bool:
		l.PushBoolean(v)
	case int:
		l.PushInteger(v)
	case int64:
		l.PushInteger(int(v))
	case float64:
		l.PushNumber(v)
	case []any:
		l.CreateTable(len(v), 0)

		for i, item := range v {
			push(l, item)
			l.RawSetInt(-2, i+1)
		}
	case map[string]any:
		l.CreateTable(0, len(v))

		for key, item := range v {
			push(l, item)
			l.SetField(-2, key)
		}
	default:
		l.PushString(fmt.Sprint(v))
	}
}

// converter turns Lua values into Go values, refusing cyclic and overly
// deep tables.
type converter struct {
	l    *lua.State
	path map[any]bool
}

func toGo(l *lua.State, index int) (any, error) {
	c := &converter{l: l, path: map[any]bool{}}

	return c.value(index, 0)
}

func (c *converter) value(index, depth int) (any, error) {
	switch c.l.TypeOf(index) {
	case lua.TypeBoolean:
		return c.l.ToBoolean(index), nil
	case lua.TypeNumber:
		number, _ := c.l.ToNumber(index)

		return number, nil
	case lua.TypeString:
		s, _ := c.l.ToString(index)

		return s, nil
	case lua.TypeTable:
		return c.table(c.l.AbsIndex(index), depth+1)
	default:
		return nil, nil
	}
}

// table returns a list when the keys are exactly 1..n, otherwise an
// object with stringified keys. An empty table is an empty object.
func (c *converter) table(index, depth int) (any, error) {
	if depth > maxTableDepth {
		return nil, fmt.Errorf("%w: result nests deeper than %d tables", ErrLuaExecution, maxTableDepth)
	}

	id := c.l.ToValue(index)
	if c.path[id] {
		return nil, fmt.Errorf("%w: result table references itself", ErrLuaExecution)
	}

	if !c.l.CheckStack(2) {
		return nil, fmt.Errorf("%w: stack overflow converting result", ErrLuaExecution)
	}

	c.path[id] = true
	defer delete(c.path, id)

	object := map[string]any{}
	list := map[int]any{}
	sequence := true

	c.l.PushNil()

	for c.l.Next(index) {
		value, err := c.value(-1, depth)
		if err != nil {
			c.l.Pop(2)

			return nil, err
		}

		if c.l.TypeOf(-2) == lua.TypeNumber {
			key, _ := c.l.ToNumber(-2)
			if key == float64(int(key)) && key >= 1 {
				list[int(key)] = value
			} else {
				sequence = false
			}

			object[fmt.Sprint(key)] = value
		} else {
			sequence = false
			key, _ := c.l.ToString(c.l.AbsIndex(-2))

			// ToString on a string key leaves it unchanged, keeping Next valid.
			object[key] = value
		}

		c.l.Pop(1)
	}

	if !sequence || len(list) == 0 {
		return object, nil
	}

	out := make([]any, len(list))

	for i := range out {
		item, ok := list[i+1]
		if !ok {
			return object, nil
		}

		out[i] = item
	}

	return out, nil
}
