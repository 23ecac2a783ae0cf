package observer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unboundedsystems/adapt/internal/eventbus"
	"github.com/unboundedsystems/adapt/internal/events"
	"github.com/unboundedsystems/adapt/internal/executor"
	"github.com/unboundedsystems/adapt/internal/language"
	"github.com/unboundedsystems/adapt/internal/logger"
	"github.com/unboundedsystems/adapt/internal/reqid"
	"github.com/unboundedsystems/adapt/internal/resolver"
)

// ObserverResponse is what a plugin fetched: data becomes the root value of
// queries and context is handed to every resolver.
type ObserverResponse struct {
	Data    any `json:"data,omitempty"`
	Context any `json:"context,omitempty"`
}

type observable struct {
	schema   *resolver.Executable
	response ObserverResponse
	queries  *queryLedger
}

// Manager executes observer queries for one build pass and keeps two
// ledgers: every distinct query executed per observer, and the subset whose
// execution needed data. Registered data and context are used by reference
// and must not be modified while queries run.
type Manager struct {
	mu          sync.RWMutex
	observables map[string]*observable
	needsData   map[string]*queryLedger

	logger logger.Logger
	bus    *eventbus.Bus
}

type ManagerOption func(*Manager)

func WithLogger(l logger.Logger) ManagerOption { return func(m *Manager) { m.logger = l } }
func WithBus(b *eventbus.Bus) ManagerOption    { return func(m *Manager) { m.bus = b } }

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		observables: make(map[string]*observable),
		needsData:   make(map[string]*queryLedger),
		logger:      logger.NewNoopLogger(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// NewManagerFromRegistry registers the schema of every plugin in reg, with
// the data and context obs holds for it.
func NewManagerFromRegistry(reg *Registry, obs Observations, opts ...ManagerOption) (*Manager, error) {
	m := NewManager(opts...)
	for _, name := range reg.Names() {
		p, err := reg.Lookup(name)
		if err != nil {
			return nil, err
		}
		if err := m.RegisterSchema(Name(name), p.Schema(), obs[name].Observations); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RegisterSchema makes an observer available for queries. Each name can be
// registered once.
func (m *Manager) RegisterSchema(name NameHolder, sch *resolver.Executable, resp ObserverResponse) error {
	n := name.ObserverName()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.observables[n]; ok {
		m.logger.Debug("duplicate observer registration", zap.String("observer", n))
		return fmt.Errorf("observer %q: %w", n, ErrDuplicateRegistration)
	}
	m.observables[n] = &observable{schema: sch, response: resp, queries: newQueryLedger()}
	return nil
}

func (m *Manager) lookup(n string) (*observable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.observables[n]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownObserver, n)
	}
	return o, nil
}

// ExecuteQuery records doc and variables for the observer and executes doc
// against its schema. The returned error is non-nil only when the observer
// is unknown or variables cannot be encoded as JSON. Needs-data conditions stay in the result errors; when there is
// at least one, the query is also recorded as having needed data.
func (m *Manager) ExecuteQuery(ctx context.Context, name NameHolder, doc *language.QueryDocument, variables map[string]any) (*executor.ExecutionResult, error) {
	n := name.ObserverName()
	o, err := m.lookup(n)
	if err != nil {
		return nil, err
	}
	canonical, err := canonicalVariables(variables)
	if err != nil {
		return nil, err
	}
	printed := language.Print(doc)
	q := ExecutedQuery{Query: doc, Variables: variables}
	if o.queries.add(printed, canonical, q) {
		m.logger.DebugWithContext(ctx, "new observer query", zap.String("observer", n), zap.String("query", printed))
	}
	queriesCounter.WithLabelValues(n).Inc()

	ctx, _ = reqid.NewContext(ctx)
	start := time.Now()
	eventbus.Publish(ctx, m.bus, events.QueryStart{Observer: n, Query: printed})

	res := o.schema.Execute(ctx, doc, variables, o.response.Data, o.response.Context)

	needs := false
	errs := make([]error, len(res.Errors))
	for i, e := range res.Errors {
		errs[i] = e
		if IsNeedsData(e) {
			needs = true
		}
	}
	if needs {
		m.needsLedger(n).add(printed, canonical, q)
		needsDataCounter.WithLabelValues(n).Inc()
		m.logger.DebugWithContext(ctx, "query needs data", zap.String("observer", n), zap.String("query", printed))
	}
	eventbus.Publish(ctx, m.bus, events.QueryFinish{
		Observer:  n,
		Query:     printed,
		NeedsData: needs,
		Errors:    errs,
		Duration:  time.Since(start),
	})
	return res, nil
}

func (m *Manager) needsLedger(n string) *queryLedger {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.needsData[n]
	if !ok {
		l = newQueryLedger()
		m.needsData[n] = l
	}
	return l
}

// ExecutedQueries lists, for every registered observer, each distinct
// query and variables pair executed so far.
func (m *Manager) ExecutedQueries() map[string][]ExecutedQuery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]ExecutedQuery, len(m.observables))
	for n, o := range m.observables {
		out[n] = o.queries.list()
	}
	return out
}

// ExecutedQueriesThatNeededData lists the executed queries whose results
// carried a needs-data error. Observers without such queries are absent.
func (m *Manager) ExecutedQueriesThatNeededData() map[string][]ExecutedQuery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]ExecutedQuery, len(m.needsData))
	for n, l := range m.needsData {
		if l.len() > 0 {
			out[n] = l.list()
		}
	}
	return out
}

// ResetNeedsData forgets which queries needed data. The executed query
// ledgers are kept.
func (m *Manager) ResetNeedsData() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.needsData = make(map[string]*queryLedger)
}

// Names returns the registered observer names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.observables))
	for n := range m.observables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Observations snapshots the registered data and context of every observer
// together with the queries executed against it.
func (m *Manager) Observations() Observations {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(Observations, len(m.observables))
	for n, o := range m.observables {
		out[n] = ObserverObservations{Observations: o.response, Queries: o.queries.list()}
	}
	return out
}
