// Package component connects observer queries to build-tree construction.
// A node asks a query of an observer through the Manager of the current
// build pass and hands the outcome to a continuation, which distinguishes
// three cases: data is available, data is not observed yet, or the query is
// broken.
package component

import (
	"context"
	"errors"

	"github.com/hashicorp/go-multierror"

	"github.com/unboundedsystems/adapt/internal/language"
	"github.com/unboundedsystems/adapt/internal/observer"
)

// ErrNoManager is passed to continuations when the context does not carry an
// observer Manager.
var ErrNoManager = errors.New("no observer manager in context")

// Continuation receives the outcome of an observer query. A nil error with a
// nil data map means the data has not been observed yet.
type Continuation[T any] func(err error, data map[string]any) T

// Observe executes doc against the named observer and calls then with the
// outcome:
//   - execution failure: then(err, nil)
//   - only needs-data errors: then(nil, nil)
//   - any other error: then(errs, nil), the non needs-data errors combined
//   - success: then(nil, data)
func Observe[T any](ctx context.Context, name observer.NameHolder, doc *language.QueryDocument, variables map[string]any, then Continuation[T]) T {
	m, ok := observer.ManagerFromContext(ctx)
	if !ok {
		return then(ErrNoManager, nil)
	}
	res, err := m.ExecuteQuery(ctx, name, doc, variables)
	if err != nil {
		return then(err, nil)
	}

	var (
		genuine   error
		needsData bool
	)
	for _, e := range res.Errors {
		if observer.IsNeedsData(e) {
			needsData = true
			continue
		}
		genuine = multierror.Append(genuine, e)
	}
	if genuine != nil {
		return then(genuine, nil)
	}
	if needsData {
		return then(nil, nil)
	}
	data, _ := res.Data.(map[string]any)
	return then(nil, data)
}

// Observer is a build-tree node whose output depends on an observer query.
type Observer[T any] struct {
	Name      observer.NameHolder
	Query     *language.QueryDocument
	Variables map[string]any
	Then      Continuation[T]
}

// Build runs the query with the Manager carried by ctx.
func (o Observer[T]) Build(ctx context.Context) T {
	return Observe(ctx, o.Name, o.Query, o.Variables, o.Then)
}
