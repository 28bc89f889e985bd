package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind enumerates the closed set of value shapes a sandboxed script can
// hand back to the host: nil, boolean, number, string, and same-shaped
// nested arrays and string-keyed tables. Nothing outside this set crosses
// the sandbox boundary.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindTable
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindTable:
		return "table"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is one tagged result value. Exactly the field matching Kind is
// meaningful; the zero Value is nil.
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	Str    string
	Array  []Value
	Table  map[string]Value
}

func Nil() Value                 { return Value{} }
func Boolean(b bool) Value       { return Value{Kind: KindBool, Bool: b} }
func Number(n float64) Value     { return Value{Kind: KindNumber, Number: n} }
func String(s string) Value      { return Value{Kind: KindString, Str: s} }
func Array(items ...Value) Value { return Value{Kind: KindArray, Array: items} }

func Table(entries map[string]Value) Value {
	if entries == nil {
		entries = map[string]Value{}
	}
	return Value{Kind: KindTable, Table: entries}
}

// Clone deep-copies nested arrays and tables so a returned value can be
// mutated by the caller without reaching shared state.
func (v Value) Clone() Value {
	switch v.Kind {
	case KindArray:
		items := make([]Value, len(v.Array))
		for i, item := range v.Array {
			items[i] = item.Clone()
		}
		return Value{Kind: KindArray, Array: items}
	case KindTable:
		entries := make(map[string]Value, len(v.Table))
		for k, item := range v.Table {
			entries[k] = item.Clone()
		}
		return Value{Kind: KindTable, Table: entries}
	default:
		return v
	}
}

func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNil:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindNumber:
		return v.Number == o.Number
	case KindString:
		return v.Str == o.Str
	case KindArray:
		if len(v.Array) != len(o.Array) {
			return false
		}
		for i := range v.Array {
			if !v.Array[i].Equal(o.Array[i]) {
				return false
			}
		}
		return true
	case KindTable:
		if len(v.Table) != len(o.Table) {
			return false
		}
		for k, item := range v.Table {
			other, ok := o.Table[k]
			if !ok || !item.Equal(other) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// String renders a value for logs and CLI output.
func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'g', -1, 64)
	case KindString:
		return v.Str
	case KindArray:
		parts := make([]string, len(v.Array))
		for i, item := range v.Array {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindTable:
		keys := make([]string, 0, len(v.Table))
		for k := range v.Table {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + v.Table[k].String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return v.Kind.String()
	}
}

// Export converts a value into plain Go data (nil, bool, float64, string,
// []any, map[string]any) for JSON encoding.
func (v Value) Export() any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Number
	case KindString:
		return v.Str
	case KindArray:
		items := make([]any, len(v.Array))
		for i, item := range v.Array {
			items[i] = item.Export()
		}
		return items
	case KindTable:
		entries := make(map[string]any, len(v.Table))
		for k, item := range v.Table {
			entries[k] = item.Export()
		}
		return entries
	default:
		return nil
	}
}
