// Package sandbox builds capability-restricted execution environments for
// untrusted scripts and runs them under fault isolation. The catalog below
// is the complete universe of operations an environment can ever expose;
// anything not granted by a Spec simply does not exist inside the
// environment.
package sandbox

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// capability is one grantable operation. install binds it into an
// environment's runtime; bindings must never close over host globals, the
// script store, or any identity.
type capability struct {
	name    string
	doc     string
	deny    bool
	install func(e *Environment) error
}

var (
	catalogOnce  sync.Once
	catalogTable map[string]capability
)

func catalog() map[string]capability {
	catalogOnce.Do(func() {
		catalogTable = buildCatalog()
	})
	return catalogTable
}

// Names returns the sorted names of every operation the catalog can grant,
// deny stubs included.
func Names() []string {
	table := catalog()
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is a grantable operation.
func Has(name string) bool {
	_, ok := catalog()[name]
	return ok
}

// IsDenyStub reports whether name is a deny stub: granted calls always
// return a deterministic denial value instead of reaching outside the
// sandbox.
func IsDenyStub(name string) bool {
	c, ok := catalog()[name]
	return ok && c.deny
}

func buildCatalog() map[string]capability {
	caps := []capability{
		{name: "print", doc: "append arguments to the environment's output buffer", install: installPrint},
		{name: "assert", doc: "raise an error when the first argument is falsy", install: installAssert},
		{name: "error", doc: "raise an error with the given message", install: installError},
		{name: "pcall", doc: "call a function, capturing any error as {ok, err}", install: installPcall},
		{name: "type", doc: "name of a value's shape", install: installType},
		{name: "tostring", doc: "render a value as a string", install: installTostring},
		{name: "tonumber", doc: "parse a value as a number, or nil", install: installTonumber},

		{name: "math.abs", install: pureFunc("math.abs", math.Abs)},
		{name: "math.floor", install: pureFunc("math.floor", math.Floor)},
		{name: "math.ceil", install: pureFunc("math.ceil", math.Ceil)},
		{name: "math.sqrt", install: pureFunc("math.sqrt", math.Sqrt)},
		{name: "math.pow", install: pureFunc2("math.pow", math.Pow)},
		{name: "math.min", install: installMathMin},
		{name: "math.max", install: installMathMax},
		{name: "math.random", doc: "seeded per environment; same spec, same sequence", install: installMathRandom},

		{name: "string.upper", install: stringFunc("string.upper", strings.ToUpper)},
		{name: "string.lower", install: stringFunc("string.lower", strings.ToLower)},
		{name: "string.trim", install: stringFunc("string.trim", strings.TrimSpace)},
		{name: "string.len", install: installStringLen},
		{name: "string.sub", doc: "1-based inclusive substring, negative indexes count from the end", install: installStringSub},
		{name: "string.rep", install: installStringRep},
		{name: "string.find", doc: "1-based index of a literal substring, or nil", install: installStringFind},
		{name: "string.split", install: installStringSplit},

		{name: "table.insert", install: installTableInsert},
		{name: "table.remove", install: installTableRemove},
		{name: "table.concat", install: installTableConcat},
		{name: "table.keys", install: installTableKeys},

		{name: "json.encode", install: installJSONEncode},
		{name: "json.decode", install: installJSONDecode},
	}

	for _, name := range denyStubNames {
		caps = append(caps, capability{
			name: name,
			doc:  "deny stub: always returns a denial value",
			deny: true,
			install: func(name string) func(*Environment) error {
				return func(e *Environment) error {
					return e.setPath(name, denyStub(e, name))
				}
			}(name),
		})
	}

	table := make(map[string]capability, len(caps))
	for _, c := range caps {
		if _, ok := table[c.name]; ok {
			panic("sandbox: duplicate capability " + c.name)
		}
		table[c.name] = c
	}
	return table
}

// denyStubNames are the operations a naive host API would expose but this
// sandbox never will. Granting them gives scripts something to detect and
// branch on; the calls fail deterministically and reach nothing.
var denyStubNames = []string{
	"http.get",
	"http.request",
	"net.connect",
	"os.execute",
	"io.open",
	"io.read",
	"io.write",
}

func denyStub(e *Environment, name string) func(goja.FunctionCall) goja.Value {
	return func(goja.FunctionCall) goja.Value {
		return e.vm.ToValue(map[string]any{
			"ok":     false,
			"denied": true,
			"err":    "capability denied: " + name,
		})
	}
}

func pureFunc(name string, fn func(float64) float64) func(*Environment) error {
	return func(e *Environment) error {
		return e.setPath(name, fn)
	}
}

func pureFunc2(name string, fn func(float64, float64) float64) func(*Environment) error {
	return func(e *Environment) error {
		return e.setPath(name, fn)
	}
}

func stringFunc(name string, fn func(string) string) func(*Environment) error {
	return func(e *Environment) error {
		return e.setPath(name, fn)
	}
}

func installPrint(e *Environment) error {
	return e.setPath("print", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = fromExport(arg.Export()).String()
		}
		e.output = append(e.output, strings.Join(parts, "\t"))
		return goja.Undefined()
	})
}

func installAssert(e *Environment) error {
	return e.setPath("assert", func(call goja.FunctionCall) goja.Value {
		v := call.Argument(0)
		if goja.IsUndefined(v) || goja.IsNull(v) || !v.ToBoolean() {
			msg := "assertion failed"
			if len(call.Arguments) > 1 {
				msg = call.Argument(1).String()
			}
			panic(e.vm.ToValue(msg))
		}
		return v
	})
}

func installError(e *Environment) error {
	return e.setPath("error", func(call goja.FunctionCall) goja.Value {
		msg := "error"
		if len(call.Arguments) > 0 {
			msg = call.Argument(0).String()
		}
		panic(e.vm.ToValue(msg))
	})
}

func installPcall(e *Environment) error {
	return e.setPath("pcall", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(e.vm.ToValue("pcall: first argument must be a function"))
		}
		res, err := fn(goja.Undefined(), call.Arguments[1:]...)
		if err != nil {
			return e.vm.ToValue(map[string]any{"ok": false, "err": thrownMessage(err)})
		}
		out := map[string]any{"ok": true}
		if res != nil && !goja.IsUndefined(res) {
			out["value"] = res.Export()
		}
		return e.vm.ToValue(out)
	})
}

func installType(e *Environment) error {
	return e.setPath("type", func(call goja.FunctionCall) goja.Value {
		return e.vm.ToValue(fromExport(call.Argument(0).Export()).Kind.String())
	})
}

func installTostring(e *Environment) error {
	return e.setPath("tostring", func(call goja.FunctionCall) goja.Value {
		return e.vm.ToValue(fromExport(call.Argument(0).Export()).String())
	})
}

func installTonumber(e *Environment) error {
	return e.setPath("tonumber", func(call goja.FunctionCall) goja.Value {
		switch v := call.Argument(0).Export().(type) {
		case int64:
			return e.vm.ToValue(float64(v))
		case float64:
			return e.vm.ToValue(v)
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return goja.Null()
			}
			return e.vm.ToValue(parsed)
		default:
			return goja.Null()
		}
	})
}

func installMathMin(e *Environment) error {
	return e.setPath("math.min", variadicFold(e, "math.min", math.Min))
}

func installMathMax(e *Environment) error {
	return e.setPath("math.max", variadicFold(e, "math.max", math.Max))
}

func variadicFold(e *Environment, name string, fold func(float64, float64) float64) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			panic(e.vm.ToValue(name + ": at least one argument required"))
		}
		acc := call.Argument(0).ToFloat()
		for _, arg := range call.Arguments[1:] {
			acc = fold(acc, arg.ToFloat())
		}
		return e.vm.ToValue(acc)
	}
}

func installMathRandom(e *Environment) error {
	return e.setPath("math.random", func(goja.FunctionCall) goja.Value {
		return e.vm.ToValue(e.rand.Float64())
	})
}

func installStringLen(e *Environment) error {
	return e.setPath("string.len", func(call goja.FunctionCall) goja.Value {
		return e.vm.ToValue(int64(len(call.Argument(0).String())))
	})
}

func installStringSub(e *Environment) error {
	return e.setPath("string.sub", func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		i := int(call.Argument(1).ToInteger())
		j := -1
		if len(call.Arguments) > 2 {
			j = int(call.Argument(2).ToInteger())
		}
		return e.vm.ToValue(substring(s, i, j))
	})
}

// substring implements 1-based inclusive slicing with negative indexes
// counting back from the end of the string.
func substring(s string, i, j int) string {
	n := len(s)
	if i < 0 {
		i = n + i + 1
	}
	if j < 0 {
		j = n + j + 1
	}
	if i < 1 {
		i = 1
	}
	if j > n {
		j = n
	}
	if i > j {
		return ""
	}
	return s[i-1 : j]
}

func installStringRep(e *Environment) error {
	return e.setPath("string.rep", func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		n := int(call.Argument(1).ToInteger())
		if n <= 0 {
			return e.vm.ToValue("")
		}
		if n > maxStringRep || len(s)*n > maxStringBytes {
			panic(e.vm.ToValue("string.rep: result too large"))
		}
		return e.vm.ToValue(strings.Repeat(s, n))
	})
}

const (
	maxStringRep   = 1 << 16
	maxStringBytes = 1 << 24
)

func installStringFind(e *Environment) error {
	return e.setPath("string.find", func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		sub := call.Argument(1).String()
		idx := strings.Index(s, sub)
		if idx < 0 {
			return goja.Null()
		}
		return e.vm.ToValue(int64(idx + 1))
	})
}

func installStringSplit(e *Environment) error {
	return e.setPath("string.split", func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		sep := call.Argument(1).String()
		return e.vm.ToValue(strings.Split(s, sep))
	})
}

func installTableInsert(e *Environment) error {
	return e.setPath("table.insert", func(call goja.FunctionCall) goja.Value {
		arr := arrayArgument(e, "table.insert", call.Argument(0))
		length := arr.Get("length").ToInteger()
		if err := arr.Set(strconv.FormatInt(length, 10), call.Argument(1)); err != nil {
			panic(e.vm.ToValue("table.insert: " + err.Error()))
		}
		return goja.Undefined()
	})
}

func installTableRemove(e *Environment) error {
	return e.setPath("table.remove", func(call goja.FunctionCall) goja.Value {
		arr := arrayArgument(e, "table.remove", call.Argument(0))
		length := arr.Get("length").ToInteger()
		if length == 0 {
			return goja.Null()
		}
		last := arr.Get(strconv.FormatInt(length-1, 10))
		if err := arr.Set("length", length-1); err != nil {
			panic(e.vm.ToValue("table.remove: " + err.Error()))
		}
		return last
	})
}

func installTableConcat(e *Environment) error {
	return e.setPath("table.concat", func(call goja.FunctionCall) goja.Value {
		arr := arrayArgument(e, "table.concat", call.Argument(0))
		sep := ""
		if len(call.Arguments) > 1 {
			sep = call.Argument(1).String()
		}
		items, _ := arr.Export().([]any)
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fromExport(item).String()
		}
		return e.vm.ToValue(strings.Join(parts, sep))
	})
}

func installTableKeys(e *Environment) error {
	return e.setPath("table.keys", func(call goja.FunctionCall) goja.Value {
		obj, ok := call.Argument(0).(*goja.Object)
		if !ok {
			panic(e.vm.ToValue("table.keys: argument must be a table"))
		}
		keys := obj.Keys()
		sort.Strings(keys)
		return e.vm.ToValue(keys)
	})
}

func installJSONEncode(e *Environment) error {
	return e.setPath("json.encode", func(call goja.FunctionCall) goja.Value {
		blob, err := json.Marshal(call.Argument(0).Export())
		if err != nil {
			panic(e.vm.ToValue("json.encode: " + err.Error()))
		}
		return e.vm.ToValue(string(blob))
	})
}

func installJSONDecode(e *Environment) error {
	return e.setPath("json.decode", func(call goja.FunctionCall) goja.Value {
		var out any
		if err := json.Unmarshal([]byte(call.Argument(0).String()), &out); err != nil {
			panic(e.vm.ToValue("json.decode: " + err.Error()))
		}
		return e.vm.ToValue(out)
	})
}

func arrayArgument(e *Environment, name string, v goja.Value) *goja.Object {
	obj, ok := v.(*goja.Object)
	if !ok || obj.ClassName() != "Array" {
		panic(e.vm.ToValue(name + ": argument must be an array"))
	}
	return obj
}

// thrownMessage extracts the message a script raised, whether it threw a
// plain value or an Error object.
func thrownMessage(err error) string {
	var exception *goja.Exception
	if ok := asException(err, &exception); ok && exception.Value() != nil {
		if s, isString := exception.Value().Export().(string); isString {
			return s
		}
		return exception.Value().String()
	}
	return err.Error()
}

func asException(err error, target **goja.Exception) bool {
	ex, ok := err.(*goja.Exception)
	if !ok {
		return false
	}
	*target = ex
	return true
}
