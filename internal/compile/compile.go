// Package compile turns query text into documents ready for execution:
// parsed, validated against the observer schema, and with @all expanded.
package compile

import (
	"fmt"

	"github.com/Yiling-J/theine-go"

	"github.com/unboundedsystems/adapt/internal/language"
	"github.com/unboundedsystems/adapt/internal/schema"
	"github.com/unboundedsystems/adapt/internal/transform"
)

const DefaultCacheSize = 1024

// Compiler compiles queries for one schema. Compiled documents are cached by
// query text and shared between callers, who must not modify them.
type Compiler struct {
	schema    *schema.Schema
	cacheSize int64
	limits    transform.Limits
	cache     *theine.Cache[string, *language.QueryDocument]
}

type Option func(*Compiler)

func WithCacheSize(n int64) Option { return func(c *Compiler) { c.cacheSize = n } }

// WithAllLimits bounds @all expansion. The default is transform.DefaultLimits.
func WithAllLimits(lim transform.Limits) Option { return func(c *Compiler) { c.limits = lim } }

func New(sch *schema.Schema, opts ...Option) (*Compiler, error) {
	c := &Compiler{schema: sch, cacheSize: DefaultCacheSize, limits: transform.DefaultLimits}
	for _, o := range opts {
		o(c)
	}
	cache, err := theine.NewBuilder[string, *language.QueryDocument](c.cacheSize).Build()
	if err != nil {
		return nil, fmt.Errorf("build query cache: %w", err)
	}
	c.cache = cache
	return c, nil
}

// Compile parses and validates query, then applies transforms.
func (c *Compiler) Compile(query string) (*language.QueryDocument, error) {
	if doc, ok := c.cache.Get(query); ok {
		return doc, nil
	}
	doc, err := language.ParseQuery(query)
	if err != nil {
		return nil, fmt.Errorf("parse query: %w", err)
	}
	if errs := transform.Validate(c.schema, doc, c.limits); len(errs) > 0 {
		return nil, fmt.Errorf("validate query: %w", errs)
	}
	out := transform.ApplyAll(c.schema, doc)
	c.cache.Set(query, out, 1)
	return out, nil
}

func (c *Compiler) Close() {
	c.cache.Close()
}
