// Package expr evaluates the small condition language used by rule documents.
//
// Expressions are parsed into an AST and walked against an Env; nothing is
// ever compiled to code. Supported: number, string, boolean and null literals,
// identifiers, dot and bracket property access, unary ! and -, arithmetic,
// comparison, == != === !== and short-circuit && ||.
package expr

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrSyntax = errors.New("syntax error")
	ErrEval   = errors.New("evaluation error")
)

// Env binds top-level names such as counters, tracks, route and player.
type Env map[string]any

// Program is a parsed expression, safe for concurrent evaluation.
type Program struct {
	src  string
	root node
}

// Compile parses src.
func Compile(src string) (*Program, error) {
	root, err := parse(src)
	if err != nil {
		return nil, fmt.Errorf("expression %q: %w", src, err)
	}
	return &Program{src: src, root: root}, nil
}

func (p *Program) String() string { return p.src }

// Eval returns the raw value of the expression.
func (p *Program) Eval(env Env) (any, error) {
	v, err := eval(p.root, env)
	if err != nil {
		return nil, fmt.Errorf("expression %q: %w", p.src, err)
	}
	return v, nil
}

// EvalBool evaluates the expression and applies truthiness to the result.
func (p *Program) EvalBool(env Env) (bool, error) {
	v, err := p.Eval(env)
	if err != nil {
		return false, err
	}
	return Truthy(v), nil
}

// Eval compiles and evaluates src in one step.
func Eval(src string, env Env) (bool, error) {
	p, err := Compile(src)
	if err != nil {
		return false, err
	}
	return p.EvalBool(env)
}

// Cache memoizes compiled programs, including compile failures.
type Cache struct {
	mu       sync.RWMutex
	programs map[string]cached
}

type cached struct {
	prog *Program
	err  error
}

func NewCache() *Cache {
	return &Cache{programs: make(map[string]cached)}
}

// Compile returns the cached program for src, parsing it on first use.
func (c *Cache) Compile(src string) (*Program, error) {
	c.mu.RLock()
	entry, ok := c.programs[src]
	c.mu.RUnlock()
	if ok {
		return entry.prog, entry.err
	}

	prog, err := Compile(src)
	c.mu.Lock()
	c.programs[src] = cached{prog: prog, err: err}
	c.mu.Unlock()
	return prog, err
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.programs)
}
