// Package `methods` holds the table of request handlers that clients can invoke
// by name, and dispatches calls to them.
package methods

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/lambdcalculus/dmbn/pkg/logger"
)

var (
	ErrNotFound     = errors.New("methods: method not found")
	ErrAccessDenied = errors.New("methods: access denied")
	ErrPanic        = errors.New("methods: handler panicked")
	ErrDuplicate    = errors.New("methods: method already registered")
)

// Call is what every handler receives: who is calling, and the declared
// arguments that were present in the request.
type Call struct {
	Login  string
	Method string
	Args   map[string]any
}

// String returns the argument `key` if it is a string.
func (c *Call) String(key string) (string, bool) {
	s, ok := c.Args[key].(string)
	return s, ok
}

// Bools returns the argument `key` as a map of booleans, if it is one.
func (c *Call) Bools(key string) (map[string]bool, bool) {
	raw, ok := c.Args[key].(map[string]any)
	if !ok {
		return nil, false
	}
	out := make(map[string]bool, len(raw))
	for k, v := range raw {
		b, ok := v.(bool)
		if !ok {
			return nil, false
		}
		out[k] = b
	}
	return out, true
}

// A Func handles a call. The returned value is sent back to the caller as is.
type Func func(ctx context.Context, call *Call) (any, error)

// Method is a registered handler.
type Method struct {
	Func Func

	// Request fields the handler reads. Anything else is dropped before the call.
	Args []string

	// Permissions the caller must hold.
	Access []string
}

// A Set is a group of methods, usually defined together by one component.
type Set map[string]Method

// Authorizer decides whether a login holds the required permissions.
type Authorizer interface {
	CheckAccessLogin(ctx context.Context, login string, required ...string) bool
}

// Registry is the table of callable methods. Methods are added at startup and
// looked up on every request.
type Registry struct {
	mu      sync.RWMutex
	methods map[string]Method
	auth    Authorizer
	logger  *logger.Logger
}

// Creates an empty registry. If `auth` is nil, access requirements are not checked.
func NewRegistry(auth Authorizer, log *logger.Logger) *Registry {
	return &Registry{
		methods: make(map[string]Method),
		auth:    auth,
		logger:  log,
	}
}

// Adds a method under `name`. Fails if the name is taken or the method has no Func.
func (r *Registry) Add(name string, m Method) error {
	if name == "" || m.Func == nil {
		return fmt.Errorf("methods: Method '%v' needs a name and a function.", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.methods[name]; ok {
		return fmt.Errorf("%w: %v", ErrDuplicate, name)
	}
	r.methods[name] = m
	return nil
}

// Adds every method in `set`. Stops at the first failure.
func (r *Registry) AddSet(set Set) error {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.Add(name, set[name]); err != nil {
			return err
		}
	}
	return nil
}

// Returns the method registered under `name`.
func (r *Registry) Lookup(name string) (Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[name]
	return m, ok
}

// Returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the method named `name` for `login` with the request fields in
// `args`. Fields the method didn't declare are dropped.
//
// Dispatch never panics: unknown methods, denied access, handler errors and
// handler panics are logged and returned as an error with a nil result.
func (r *Registry) Dispatch(ctx context.Context, login string, name string, args map[string]any) (result any, err error) {
	m, ok := r.Lookup(name)
	if !ok {
		r.logger.Debugf("%v called unknown method '%v'.", login, name)
		return nil, fmt.Errorf("%w: %v", ErrNotFound, name)
	}
	if len(m.Access) > 0 && r.auth != nil && !r.auth.CheckAccessLogin(ctx, login, m.Access...) {
		r.logger.Infof("%v tried calling '%v' without permission.", login, name)
		return nil, fmt.Errorf("%w: %v", ErrAccessDenied, name)
	}

	call := &Call{
		Login:  login,
		Method: name,
		Args:   make(map[string]any, len(m.Args)),
	}
	for _, key := range m.Args {
		if v, ok := args[key]; ok {
			call.Args[key] = v
		}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Errorf("Method '%v' called by %v panicked (%v).\n%s", name, login, p, debug.Stack())
			result, err = nil, fmt.Errorf("%w: %v", ErrPanic, p)
		}
	}()
	result, err = m.Func(ctx, call)
	if err != nil {
		r.logger.Debugf("Method '%v' called by %v failed (%v).", name, login, err)
		return nil, err
	}
	return result, nil
}
