package plexcond

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/plexil-group/plexil-sub002/pkg/plexcache"
	"github.com/plexil-group/plexil-sub002/pkg/plexexpr"
	"github.com/plexil-group/plexil-sub002/pkg/plexval"
)

// compileEnv is the template environment every condition compiles
// against: identifiers are resolved dynamically at Run time (via
// expr.AllowUndefinedVariables), so one cached program serves any set of
// named bindings sharing the same condition text.
var compileEnv = map[string]any{}

// Condition wraps one compiled textual condition (e.g. `lookup("temp") >
// 100.0` or "count >= 3") as a plexexpr.Expression. Activation cascades to
// the bound source expressions first, compile-once happens at
// construction via the shared ConditionCache, and every recomputation
// calls expr.Run against the bindings' current values plus an optional
// lookup(name, ...) builtin backed by the state cache.
type Condition struct {
	*plexexpr.Base
	text     string
	bindings map[string]plexexpr.Expression
	cache    *plexcache.StateCache
	program  *vm.Program
}

// NewCondition compiles text (caching the compiled program in programs,
// keyed by text alone) and builds a Condition of the given result type,
// evaluating against bindings (identifier name -> source expression) and,
// if cache is non-nil, a lookup(name, ...) builtin reading from it.
func NewCondition(name string, typ plexval.Type, text string, bindings map[string]plexexpr.Expression, programs *ConditionCache, cache *plexcache.StateCache) (*Condition, error) {
	program, err := programs.compileAndCache(text, compileEnv)
	if err != nil {
		return nil, plexval.NewValidationError("plexcond.NewCondition", "compiling condition `"+text+"`: "+err.Error())
	}

	c := &Condition{text: text, bindings: bindings, cache: cache, program: program}
	c.Base = plexexpr.NewBase(name, typ, c.run)
	c.BindSelf(c)
	for _, b := range bindings {
		b.AddListener(c)
	}
	return c, nil
}

// Text returns the source condition text, for introspection/logging.
func (c *Condition) Text() string { return c.text }

// Notify implements plexexpr.Listener: any bound source changing
// recomputes this condition while active.
func (c *Condition) Notify(plexexpr.Expression) {
	if c.IsActive() {
		c.Recompute()
	}
}

// Activate cascades to every bound source before recomputing itself
// (spec §4.1's compound-expression activation order).
func (c *Condition) Activate() error {
	for _, b := range c.bindings {
		if err := b.Activate(); err != nil {
			return err
		}
	}
	return c.Base.Activate()
}

// Deactivate deactivates this expression, then cascades to every source.
func (c *Condition) Deactivate() error {
	if err := c.Base.Deactivate(); err != nil {
		return err
	}
	for _, b := range c.bindings {
		if err := b.Deactivate(); err != nil {
			return err
		}
	}
	return nil
}

// run evaluates the compiled program against the bindings' current
// values. Any binding reporting Unknown, or a runtime/type error from
// expr, yields Unknown for the whole condition rather than a panic.
func (c *Condition) run() plexval.Value {
	env := make(map[string]any, len(c.bindings)+1)
	for id, src := range c.bindings {
		native, ok := toNative(src.Value())
		if !ok {
			return plexval.Unknown
		}
		env[id] = native
	}
	if c.cache != nil {
		env["lookup"] = c.lookup
	}

	out, err := expr.Run(c.program, env)
	if err != nil {
		return plexval.Unknown
	}
	v, ok := fromNative(out, c.Type())
	if !ok {
		return plexval.Unknown
	}
	return v
}

// lookup implements the env-exposed lookup(name, ...) builtin: an ad hoc
// read through the state cache for states not bound to a named variable.
func (c *Condition) lookup(name string, params ...any) any {
	vals := make([]plexval.Value, len(params))
	for i, p := range params {
		v, _ := toPlexValParam(p)
		vals[i] = v
	}
	native, _ := toNative(c.cache.LookupNow(plexval.NewState(name, vals...)))
	return native
}

func toNative(v plexval.Value) (any, bool) {
	if !v.IsKnown() {
		return nil, false
	}
	switch v.Type() {
	case plexval.TypeBoolean:
		b, _ := v.AsBool()
		return b, true
	case plexval.TypeInteger:
		i, _ := v.AsInt()
		return i, true
	case plexval.TypeReal:
		r, _ := v.AsReal()
		return r, true
	case plexval.TypeString:
		s, _ := v.AsString()
		return s, true
	default:
		return nil, false
	}
}

func fromNative(out any, typ plexval.Type) (plexval.Value, bool) {
	switch x := out.(type) {
	case bool:
		return plexval.Boolean(x), true
	case int:
		return plexval.Integer(int64(x)), true
	case int64:
		return plexval.Integer(x), true
	case float64:
		if typ == plexval.TypeInteger {
			return plexval.Integer(int64(x)), true
		}
		return plexval.Real(x), true
	case string:
		return plexval.String(x), true
	default:
		return plexval.Unknown, false
	}
}

func toPlexValParam(p any) (plexval.Value, bool) {
	switch x := p.(type) {
	case bool:
		return plexval.Boolean(x), true
	case int:
		return plexval.Integer(int64(x)), true
	case int64:
		return plexval.Integer(x), true
	case float64:
		return plexval.Real(x), true
	case string:
		return plexval.String(x), true
	default:
		return plexval.Unknown, false
	}
}
