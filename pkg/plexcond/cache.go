// Package plexcond offers a textual condition language as an alternative
// to hand-built expression trees (spec §2's domain stack): a Condition
// compiles an github.com/expr-lang/expr expression once and wraps it as a
// plexexpr.Expression, so a plan builder can write `lookup("temp") > 100.0`
// instead of constructing Derived/operator nodes by hand.
package plexcond

import (
	"container/list"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ConditionCache is a thread-safe LRU cache of compiled expression
// programs, generalized from the teacher's condition_cache.go (originally
// scoped to caching edge-condition programs) to cache any textual
// Boolean/value condition a Condition compiles.
type ConditionCache struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
	mu       sync.RWMutex
}

type cacheEntry struct {
	key     string
	program *vm.Program
}

// NewConditionCache creates a condition cache with the given capacity (a
// non-positive capacity falls back to a default of 100 entries).
func NewConditionCache(capacity int) *ConditionCache {
	if capacity <= 0 {
		capacity = 100
	}
	return &ConditionCache{
		capacity: capacity,
		cache:    make(map[string]*list.Element),
		lruList:  list.New(),
	}
}

// Get retrieves a compiled program from cache.
func (cc *ConditionCache) Get(text string) (*vm.Program, bool) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if element, found := cc.cache[text]; found {
		cc.lruList.MoveToFront(element)
		return element.Value.(*cacheEntry).program, true
	}
	return nil, false
}

// Put stores a compiled program in cache, evicting the least recently
// used entry if the cache is over capacity.
func (cc *ConditionCache) Put(text string, program *vm.Program) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if element, found := cc.cache[text]; found {
		cc.lruList.MoveToFront(element)
		element.Value.(*cacheEntry).program = program
		return
	}
	entry := &cacheEntry{key: text, program: program}
	element := cc.lruList.PushFront(entry)
	cc.cache[text] = element
	if cc.lruList.Len() > cc.capacity {
		cc.evictOldest()
	}
}

func (cc *ConditionCache) evictOldest() {
	oldest := cc.lruList.Back()
	if oldest != nil {
		cc.lruList.Remove(oldest)
		delete(cc.cache, oldest.Value.(*cacheEntry).key)
	}
}

// Len returns the number of cached programs.
func (cc *ConditionCache) Len() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.lruList.Len()
}

// Clear discards every cached program.
func (cc *ConditionCache) Clear() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache = make(map[string]*list.Element)
	cc.lruList = list.New()
}

// compileAndCache compiles text against env, reusing a cached program for
// identical text rather than recompiling it.
func (cc *ConditionCache) compileAndCache(text string, env any) (*vm.Program, error) {
	if program, found := cc.Get(text); found {
		return program, nil
	}
	program, err := expr.Compile(text, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	cc.Put(text, program)
	return program, nil
}
