// Package template resolves {{source.field.sub}} bindings inside step inputs
// against an execution context.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// Source is the read side of an execution context.
type Source interface {
	Get(key string) (any, bool)
}

type unresolved struct{}

func (unresolved) String() string { return "<unresolved>" }

// Unresolved marks a binding whose path does not exist in the context.
var Unresolved any = unresolved{}

// IsUnresolved reports whether value is the Unresolved marker.
func IsUnresolved(value any) bool {
	_, ok := value.(unresolved)

	return ok
}

var bindingPattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// ContainsBinding reports whether s holds at least one binding.
func ContainsBinding(s string) bool {
	return bindingPattern.MatchString(s)
}

// References returns every binding path found in tmpl, walking maps and slices.
func References(tmpl any) []string {
	var paths []string

	walkStrings(tmpl, func(s string) {
		for _, match := range bindingPattern.FindAllStringSubmatch(s, -1) {
			paths = append(paths, match[1])
		}
	})

	return paths
}

// SourceID returns the first path segment of a binding path.
func SourceID(path string) string {
	head, _, _ := strings.Cut(path, ".")

	return head
}

// Resolve resolves every binding in tmpl. A string that is exactly one binding
// yields the typed value at that path (or Unresolved). Bindings embedded in
// longer text are interpolated, with unresolved ones rendered empty. Maps and
// slices are resolved recursively; other values are returned unchanged.
func Resolve(tmpl any, src Source) any {
	return resolve(tmpl, src, nil)
}

// ResolveRequired is Resolve that fails when any binding in tmpl is unresolved.
func ResolveRequired(tmpl any, src Source) (any, error) {
	var missing []string

	value := resolve(tmpl, src, &missing)
	if len(missing) > 0 {
		return nil, &BindingResolutionError{Path: missing[0], Template: tmpl}
	}

	return value, nil
}

// ResolveInputs resolves step inputs. Inputs listed in required must resolve
// completely; elsewhere unresolved values become nil so no marker crosses
// into a step executor.
func ResolveInputs(inputs map[string]any, required []string, src Source) (map[string]any, error) {
	resolved := make(map[string]any, len(inputs))

	for key, tmpl := range inputs {
		resolved[key] = Resolve(tmpl, src)
	}

	for _, key := range required {
		tmpl, ok := inputs[key]
		if !ok {
			return nil, &BindingResolutionError{Input: key, Err: ErrMissingInput}
		}

		if _, err := ResolveRequired(tmpl, src); err != nil {
			bindingErr := err.(*BindingResolutionError)
			bindingErr.Input = key

			return nil, bindingErr
		}
	}

	return Strip(resolved).(map[string]any), nil
}

// Strip replaces every Unresolved marker in value with nil.
func Strip(value any) any {
	switch v := value.(type) {
	case unresolved:
		return nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Strip(item)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Strip(item)
		}

		return out
	default:
		return v
	}
}

// Lookup resolves a single binding path against src. JSON-like containers are
// walked in place so values keep their Go types; anything else is read
// through its JSON encoding. The result never aliases the context.
func Lookup(path string, src Source) any {
	segments := strings.Split(strings.TrimSpace(path), ".")

	current, ok := src.Get(segments[0])
	if !ok {
		return Unresolved
	}

	for i, segment := range segments[1:] {
		next, found, walked := descend(current, segment)
		if !walked {
			return lookupJSON(current, segments[i+1:])
		}

		if !found {
			return Unresolved
		}

		current = next
	}

	return clone(current)
}

// descend steps into one segment of a map, list or string. walked is false
// for values it cannot walk natively.
func descend(current any, segment string) (value any, found, walked bool) {
	switch v := current.(type) {
	case map[string]any:
		value, found = v[segment]

		return value, found, true
	case []any:
		if segment == "length" {
			return len(v), true, true
		}

		if i, ok := index(segment, len(v)); ok {
			return v[i], true, true
		}

		return nil, false, true
	case []map[string]any:
		if segment == "length" {
			return len(v), true, true
		}

		if i, ok := index(segment, len(v)); ok {
			return v[i], true, true
		}

		return nil, false, true
	case string:
		if segment == "length" {
			return utf8.RuneCountInString(v), true, true
		}

		return nil, false, true
	case nil:
		return nil, false, true
	}

	return nil, false, false
}

func index(segment string, length int) (int, bool) {
	i, err := strconv.Atoi(segment)
	if err != nil || i < 0 || i >= length || strconv.Itoa(i) != segment {
		return 0, false
	}

	return i, true
}

func lookupJSON(value any, segments []string) any {
	raw, err := json.Marshal(value)
	if err != nil {
		return Unresolved
	}

	current := gjson.ParseBytes(raw)
	for _, segment := range segments {
		current = step(current, segment)
		if !current.Exists() {
			return Unresolved
		}
	}

	return current.Value()
}

// step descends one path segment. "length" counts arrays and strings unless
// the value is an object with a real "length" key.
func step(current gjson.Result, segment string) gjson.Result {
	if segment == "length" {
		switch {
		case current.IsArray():
			return current.Get("#")
		case current.Type == gjson.String:
			return gjson.Parse(strconv.Itoa(utf8.RuneCountInString(current.Str)))
		}
	}

	return current.Get(gjson.Escape(segment))
}

func clone(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = clone(item)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = clone(item)
		}

		return out
	case []map[string]any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = clone(item)
		}

		return out
	default:
		return v
	}
}

func resolve(tmpl any, src Source, missing *[]string) any {
	switch v := tmpl.(type) {
	case string:
		return resolveString(v, src, missing)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = resolve(item, src, missing)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = resolve(item, src, missing)
		}

		return out
	default:
		return v
	}
}

func resolveString(s string, src Source, missing *[]string) any {
	matches := bindingPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	if len(matches) == 1 && matches[0][0] == 0 && matches[0][1] == len(s) {
		path := s[matches[0][2]:matches[0][3]]

		value := Lookup(path, src)
		if IsUnresolved(value) && missing != nil {
			*missing = append(*missing, path)
		}

		return value
	}

	var builder strings.Builder

	last := 0
	for _, match := range matches {
		builder.WriteString(s[last:match[0]])

		path := s[match[2]:match[3]]

		value := Lookup(path, src)
		if IsUnresolved(value) {
			if missing != nil {
				*missing = append(*missing, path)
			}
		} else {
			builder.WriteString(Stringify(value))
		}

		last = match[1]
	}

	builder.WriteString(s[last:])

	return builder.String()
}

// Stringify renders a resolved value for text interpolation.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case unresolved:
		return ""
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}

	return string(raw)
}

func walkStrings(value any, fn func(string)) {
	switch v := value.(type) {
	case string:
		fn(v)
	case map[string]any:
		for _, item := range v {
			walkStrings(item, fn)
		}
	case []any:
		for _, item := range v {
			walkStrings(item, fn)
		}
	}
}
