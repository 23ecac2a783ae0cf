// Package mock is an observer plugin that observes nothing external. Objects
// are invented on demand from the ids queries ask for, which makes it useful
// for exercising the needs-data cycle end to end.
package mock

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/unboundedsystems/adapt/internal/observer"
	"github.com/unboundedsystems/adapt/internal/resolver"
)

const Name = "mock"

const SDL = `
type Query {
  mockById(id: ID!): MockObj
  mockObjects: [MockObj!]!
}

type MockObj {
  id: ID!
  numericId: Int!
}
`

var executable = resolver.MustExecutable(SDL, resolver.Map{
	"Query.mockById":    mockByID,
	"Query.mockObjects": mockObjects,
})

// Observer implements observer.Plugin.
type Observer struct {
	mu       sync.Mutex
	observed int
}

var _ observer.Plugin = (*Observer)(nil)

func New() *Observer { return &Observer{} }

func (o *Observer) Schema() *resolver.Executable { return executable }

// Observe runs queries in collect mode to learn the ids they ask for and
// returns a context holding one object per id.
func (o *Observer) Observe(ctx context.Context, queries []observer.ExecutedQuery) (observer.ObserverResponse, error) {
	c := &collector{ids: make(map[string]struct{})}
	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return observer.ObserverResponse{}, err
		}
		executable.Execute(ctx, q.Query, q.Variables, nil, c)
	}

	objects := make(map[string]any, len(c.ids))
	for id := range c.ids {
		objects[id] = newObject(id)
	}

	o.mu.Lock()
	o.observed++
	o.mu.Unlock()
	return observer.ObserverResponse{Context: objects}, nil
}

// Observed counts completed Observe calls.
func (o *Observer) Observed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.observed
}

func newObject(id string) map[string]any {
	n, err := strconv.Atoi(id)
	if err != nil {
		n = 0
	}
	return map[string]any{"id": id, "numericId": n}
}

type collector struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func (c *collector) add(id string) {
	c.mu.Lock()
	c.ids[id] = struct{}{}
	c.mu.Unlock()
}

func mockByID(ctx context.Context, p resolver.Params) (any, error) {
	id := fmt.Sprint(p.Args["id"])
	switch c := p.Context.(type) {
	case *collector:
		c.add(id)
		return nil, observer.NeedsData("collecting mock object %s", id)
	case map[string]any:
		if obj, ok := c[id]; ok {
			return obj, nil
		}
	}
	return nil, observer.NeedsData("no mock object with id %s", id)
}

func mockObjects(ctx context.Context, p resolver.Params) (any, error) {
	objects, _ := p.Context.(map[string]any)
	ids := make([]string, 0, len(objects))
	for id := range objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = objects[id]
	}
	return out, nil
}
