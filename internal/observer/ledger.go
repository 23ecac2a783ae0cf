package observer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/unboundedsystems/adapt/internal/language"
)

// ExecutedQuery is a query document with the variables it ran with. A nil
// Variables map and an empty one are distinct bindings.
type ExecutedQuery struct {
	Query     *language.QueryDocument
	Variables map[string]any
}

// queryLedger is a set of executed queries keyed by printed document and by
// the canonical JSON form of the variables. Entries keep first-seen order.
type queryLedger struct {
	mu    sync.Mutex
	order []string
	docs  map[string]*ledgerEntry
}

type ledgerEntry struct {
	doc   *language.QueryDocument
	vars  []binding
	index map[uint64][]int
}

type binding struct {
	canonical []byte
	value     map[string]any
}

func newQueryLedger() *queryLedger {
	return &queryLedger{docs: make(map[string]*ledgerEntry)}
}

// add records q under printed, its canonical document text, and canonical,
// its canonical variables. It reports whether the pair was new.
func (l *queryLedger) add(printed string, canonical []byte, q ExecutedQuery) bool {
	sum := xxhash.Sum64(canonical)

	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.docs[printed]
	if !ok {
		e = &ledgerEntry{doc: q.Query, index: make(map[uint64][]int)}
		l.docs[printed] = e
		l.order = append(l.order, printed)
	}
	for _, i := range e.index[sum] {
		if bytes.Equal(e.vars[i].canonical, canonical) {
			return false
		}
	}
	e.index[sum] = append(e.index[sum], len(e.vars))
	e.vars = append(e.vars, binding{canonical: canonical, value: q.Variables})
	return true
}

// list flattens the ledger to one ExecutedQuery per document and binding.
func (l *queryLedger) list() []ExecutedQuery {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []ExecutedQuery{}
	for _, printed := range l.order {
		e := l.docs[printed]
		for _, b := range e.vars {
			out = append(out, ExecutedQuery{Query: e.doc, Variables: b.value})
		}
	}
	return out
}

func (l *queryLedger) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.docs {
		n += len(e.vars)
	}
	return n
}

// canonicalVariables renders vars so that structurally equal maps render the
// same: encoding/json sorts map keys. Variables are persisted as JSON, so
// values JSON cannot encode are rejected.
func canonicalVariables(vars map[string]any) ([]byte, error) {
	b, err := json.Marshal(vars)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVariables, err)
	}
	return b, nil
}
