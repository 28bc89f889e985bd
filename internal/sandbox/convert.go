package sandbox

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/animus-labs/scriptforge/internal/domain"
)

// captureValues turns a run's completion value into the ordered result
// sequence. The script language returns a single value; an array return
// is the multi-value convention, any other non-undefined value is a
// one-element sequence, and no return at all is an empty one.
func captureValues(v goja.Value) []domain.Value {
	if v == nil || goja.IsUndefined(v) {
		return nil
	}
	if obj, ok := v.(*goja.Object); ok && obj.ClassName() == "Array" {
		if items, ok := v.Export().([]any); ok {
			values := make([]domain.Value, len(items))
			for i, item := range items {
				values[i] = fromExport(item)
			}
			return values
		}
	}
	return []domain.Value{fromExport(v.Export())}
}

// fromExport maps interpreter-exported Go data onto the closed Value
// type. Anything outside the closed set is rendered as a string rather
// than leaking a live reference across the sandbox boundary.
func fromExport(v any) domain.Value {
	switch t := v.(type) {
	case nil:
		return domain.Nil()
	case bool:
		return domain.Boolean(t)
	case int64:
		return domain.Number(float64(t))
	case float64:
		return domain.Number(t)
	case string:
		return domain.String(t)
	case []any:
		items := make([]domain.Value, len(t))
		for i, item := range t {
			items[i] = fromExport(item)
		}
		return domain.Array(items...)
	case map[string]any:
		entries := make(map[string]domain.Value, len(t))
		for k, item := range t {
			entries[k] = fromExport(item)
		}
		return domain.Table(entries)
	default:
		return domain.String(fmt.Sprint(t))
	}
}
