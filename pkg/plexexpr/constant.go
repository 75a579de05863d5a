package plexexpr

import "github.com/plexil-group/plexil-sub002/pkg/plexval"

// Constant is an Expression whose value never changes. Per spec §3, a
// constant's active-count never decreases below 1: it is active from
// construction, and Deactivate never drops the count below 1 and never
// returns an error (a constant is conceptually always needed).
type Constant struct {
	*Base
}

// NewConstant builds a Constant expression carrying v forever.
func NewConstant(name string, v plexval.Value) *Constant {
	c := &Constant{Base: NewBase(name, v.Type(), nil)}
	c.BindSelf(c)
	c.Base.SetValue(v)
	// A constant is active from construction: spec requires its
	// observable value never toggles back to Unknown.
	c.Base.active = 1
	return c
}

// Activate overrides Base.Activate: constants latch active forever, so
// repeated activation is harmless bookkeeping, not a true refcount.
func (c *Constant) Activate() error {
	c.mu.Lock()
	if c.active < 1 {
		c.active = 1
	} else {
		c.active++
	}
	c.mu.Unlock()
	return nil
}

// Deactivate never drops a Constant below active-count 1.
func (c *Constant) Deactivate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active > 1 {
		c.active--
	}
	return nil
}

// True and False build the singleton-style Boolean
// constants design note §9 calls out — built here as ordinary Value-typed
// constants rather than global interpreter singletons.
func True() *Constant  { return NewConstant("true", plexval.Boolean(true)) }
func False() *Constant { return NewConstant("false", plexval.Boolean(false)) }
