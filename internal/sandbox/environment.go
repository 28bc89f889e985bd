package sandbox

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

const defaultMaxCallStack = 512

// Environment is one instantiated, closed namespace built from a Spec. It
// owns a dedicated interpreter runtime: two environments never share
// mutable state, even when built from the same spec. Script code may read
// and write its own globals freely; nothing in here links back to the host
// process, the script store, or any identity.
type Environment struct {
	mu      sync.Mutex
	vm      *goja.Runtime
	names   []string
	rand    *rand.Rand
	output  []string
	tainted bool
}

// New builds an environment exposing exactly the operations the spec
// grants. The same spec always yields the same operation names and
// behavior. An invalid spec is a configuration error and fails here.
func New(spec Spec) (*Environment, error) {
	names, err := spec.Resolve()
	if err != nil {
		return nil, err
	}

	seed := spec.Seed
	if seed == 0 {
		seed = defaultSeed
	}

	vm := goja.New()
	vm.SetMaxCallStackSize(defaultMaxCallStack)

	env := &Environment{
		vm:    vm,
		names: names,
		rand:  rand.New(rand.NewSource(seed)),
	}
	if err := env.harden(); err != nil {
		return nil, fmt.Errorf("harden environment: %w", err)
	}
	for _, name := range names {
		c, ok := catalog()[name]
		if !ok {
			return nil, fmt.Errorf("unknown operation %q", name)
		}
		if err := c.install(env); err != nil {
			return nil, fmt.Errorf("install %s: %w", name, err)
		}
	}
	return env, nil
}

// hardenSrc strips the interpreter's ambient globals so the environment
// holds only what the spec granted, and disables the Function-constructor
// escape hatch. Deleting a binding a script never got is how "absent"
// stays absent rather than present-as-null.
const hardenSrc = `(function () {
	try {
		Object.defineProperty(Function.prototype, 'constructor', {
			value: function () { throw new TypeError('Function constructor is disabled'); },
			writable: false,
			configurable: false
		});
	} catch (e) {}
	var doomed = ['eval', 'Function', 'Date', 'Math', 'JSON', 'RegExp',
		'Reflect', 'Proxy', 'Promise', 'Symbol', 'globalThis',
		'decodeURI', 'decodeURIComponent', 'encodeURI', 'encodeURIComponent'];
	for (var i = 0; i < doomed.length; i++) {
		try { delete this[doomed[i]]; } catch (e) {}
	}
}).call(this);`

func (e *Environment) harden() error {
	_, err := e.vm.RunString(hardenSrc)
	return err
}

// Names returns the sorted operation names this environment exposes.
func (e *Environment) Names() []string {
	out := make([]string, len(e.names))
	copy(out, e.names)
	return out
}

// Has reports whether the environment grants the named operation.
func (e *Environment) Has(name string) bool {
	for _, n := range e.names {
		if n == name {
			return true
		}
	}
	return false
}

// Output returns everything print() wrote since the last TakeOutput.
func (e *Environment) Output() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.output))
	copy(out, e.output)
	return out
}

// TakeOutput returns the buffered print() lines and clears the buffer.
func (e *Environment) TakeOutput() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.output
	e.output = nil
	return out
}

// Tainted reports whether a run in this environment was interrupted. A
// tainted environment may hold partial interpreter state and refuses
// further runs; discard it and build a fresh one.
func (e *Environment) Tainted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tainted
}

// setPath binds value at a dotted capability name, creating the namespace
// object for grouped operations like math.floor on first use.
func (e *Environment) setPath(name string, value any) error {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) == 1 {
		return e.vm.GlobalObject().Set(name, value)
	}
	ns := parts[0]
	current := e.vm.GlobalObject().Get(ns)
	var obj *goja.Object
	if current == nil || goja.IsUndefined(current) {
		obj = e.vm.NewObject()
		if err := e.vm.GlobalObject().Set(ns, obj); err != nil {
			return err
		}
	} else {
		var ok bool
		obj, ok = current.(*goja.Object)
		if !ok {
			return fmt.Errorf("namespace %q is not an object", ns)
		}
	}
	return obj.Set(parts[1], value)
}
