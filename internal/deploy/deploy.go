// Package deploy runs build passes until every observer query a build asks
// has the data it needs. Between passes it asks observer plugins to fetch
// data for the queries that lacked it.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/unboundedsystems/adapt/internal/eventbus"
	"github.com/unboundedsystems/adapt/internal/events"
	"github.com/unboundedsystems/adapt/internal/logger"
	"github.com/unboundedsystems/adapt/internal/observer"
	"github.com/unboundedsystems/adapt/internal/reqid"
)

const (
	DefaultMaxPasses      = 5
	DefaultMaxRetries     = 3
	DefaultMaxConcurrency = 8
)

// ErrTooManyPasses is returned when observers still need data after the last
// allowed pass.
var ErrTooManyPasses = errors.New("observers still need data")

// BuildFunc performs one build pass. The context carries the pass Manager,
// see observer.ManagerFromContext.
type BuildFunc func(ctx context.Context) error

// Result describes a converged run.
type Result struct {
	Passes       int
	Observations observer.Observations
}

// Loop drives build passes. The zero value of every field but Registry is
// usable.
type Loop struct {
	Registry  *observer.Registry
	Logger    logger.Logger
	Bus       *eventbus.Bus
	MaxPasses int
	// MaxRetries bounds retries of a failed Observe call. Negative disables
	// retries.
	MaxRetries     int
	MaxConcurrency int

	// NewBackOff returns the retry policy for one plugin Observe call.
	NewBackOff func() backoff.BackOff
}

func (l *Loop) logger() logger.Logger {
	if l.Logger == nil {
		return logger.NewNoopLogger()
	}
	return l.Logger
}

func (l *Loop) maxPasses() int {
	if l.MaxPasses > 0 {
		return l.MaxPasses
	}
	return DefaultMaxPasses
}

func (l *Loop) maxRetries() uint64 {
	switch {
	case l.MaxRetries > 0:
		return uint64(l.MaxRetries)
	case l.MaxRetries < 0:
		return 0
	}
	return DefaultMaxRetries
}

func (l *Loop) newBackOff() backoff.BackOff {
	if l.NewBackOff != nil {
		return l.NewBackOff()
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second
	return policy
}

// Run performs build passes starting from prev. Each pass gets a fresh
// Manager holding the observations gathered so far. When a pass leaves
// queries that needed data, the plugins of those observers are asked to
// observe them and their responses are merged in before the next pass.
func (l *Loop) Run(ctx context.Context, prev observer.Observations, build BuildFunc) (*Result, error) {
	log := l.logger()
	obs := make(observer.Observations, len(prev))
	for name, o := range prev {
		obs[name] = o
	}

	for pass := 1; ; pass++ {
		passCtx, _ := reqid.NewContext(ctx)
		start := time.Now()
		eventbus.Publish(passCtx, l.Bus, events.PassStart{Pass: pass})
		log.InfoWithContext(passCtx, "build pass started", zap.Int("pass", pass))

		m, err := observer.NewManagerFromRegistry(l.Registry, obs, observer.WithLogger(log), observer.WithBus(l.Bus))
		if err != nil {
			return nil, err
		}
		err = build(observer.WithManager(passCtx, m))
		needs := m.ExecutedQueriesThatNeededData()
		names := sortedNames(needs)

		eventbus.Publish(passCtx, l.Bus, events.PassFinish{Pass: pass, NeedsData: names, Err: err, Duration: time.Since(start)})
		log.InfoWithContext(passCtx, "build pass finished",
			zap.Int("pass", pass),
			zap.Strings("needs_data", names),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		if err != nil {
			return nil, fmt.Errorf("build pass %d: %w", pass, err)
		}

		if len(needs) == 0 {
			return &Result{Passes: pass, Observations: m.Observations()}, nil
		}
		if pass >= l.maxPasses() {
			return nil, fmt.Errorf("%w after %d passes: %s", ErrTooManyPasses, pass, strings.Join(names, ", "))
		}

		fresh, err := l.observe(passCtx, needs)
		if err != nil {
			return nil, err
		}
		for name, resp := range fresh {
			o := obs[name]
			o.Observations = Merge(o.Observations, resp)
			obs[name] = o
		}
	}
}

// ObserveAll asks every plugin to observe all the queries recorded for it in
// obs and returns obs with fresh data. Observers without recorded queries are
// left as they are.
func (l *Loop) ObserveAll(ctx context.Context, obs observer.Observations) (observer.Observations, error) {
	ctx, _ = reqid.NewContext(ctx)
	queries := make(map[string][]observer.ExecutedQuery)
	for name, o := range obs {
		if len(o.Queries) > 0 {
			queries[name] = o.Queries
		}
	}
	fresh, err := l.observe(ctx, queries)
	if err != nil {
		return nil, err
	}
	out := make(observer.Observations, len(obs))
	for name, o := range obs {
		if resp, ok := fresh[name]; ok {
			o.Observations = resp
		}
		out[name] = o
	}
	return out, nil
}

// observe calls the plugins of all observers in queries concurrently. Every
// failure is reported.
func (l *Loop) observe(ctx context.Context, queries map[string][]observer.ExecutedQuery) (map[string]observer.ObserverResponse, error) {
	var (
		mu   sync.Mutex
		errs error
		out  = make(map[string]observer.ObserverResponse, len(queries))
	)
	maxConcurrency := l.MaxConcurrency
	if maxConcurrency < 1 {
		maxConcurrency = DefaultMaxConcurrency
	}

	p := pool.New().WithMaxGoroutines(maxConcurrency)
	for _, name := range sortedNames(queries) {
		qs := queries[name]
		p.Go(func() {
			resp, err := l.observeOne(ctx, name, qs)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, fmt.Errorf("observe %s: %w", name, err))
				return
			}
			out[name] = resp
		})
	}
	p.Wait()
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

func (l *Loop) observeOne(ctx context.Context, name string, queries []observer.ExecutedQuery) (observer.ObserverResponse, error) {
	plugin, err := l.Registry.Lookup(name)
	if err != nil {
		return observer.ObserverResponse{}, err
	}
	log := l.logger()

	var (
		resp    observer.ObserverResponse
		attempt int
	)
	op := func() error {
		attempt++
		start := time.Now()
		eventbus.Publish(ctx, l.Bus, events.ObserveStart{Observer: name, Queries: len(queries), Attempt: attempt})

		var err error
		resp, err = plugin.Observe(ctx, queries)

		elapsed := time.Since(start)
		observeDurationHistogram.WithLabelValues(name).Observe(float64(elapsed.Milliseconds()))
		eventbus.Publish(ctx, l.Bus, events.ObserveFinish{Observer: name, Queries: len(queries), Attempt: attempt, Err: err, Duration: elapsed})
		if err != nil {
			log.WarnWithContext(ctx, "observe failed", zap.String("observer", name), zap.Int("attempt", attempt), zap.Error(err))
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		log.InfoWithContext(ctx, "observed", zap.String("observer", name), zap.Int("queries", len(queries)), zap.Duration("duration", elapsed))
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(l.newBackOff(), l.maxRetries()), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return observer.ObserverResponse{}, err
	}
	return resp, nil
}

// Merge overlays fresh on prev. Data and context maps are merged key by key
// with fresh entries winning; any other fresh value replaces the previous
// one.
func Merge(prev, fresh observer.ObserverResponse) observer.ObserverResponse {
	return observer.ObserverResponse{
		Data:    mergeValue(prev.Data, fresh.Data),
		Context: mergeValue(prev.Context, fresh.Context),
	}
}

func mergeValue(prev, fresh any) any {
	if fresh == nil {
		return prev
	}
	pm, ok := prev.(map[string]any)
	if !ok {
		return fresh
	}
	fm, ok := fresh.(map[string]any)
	if !ok {
		return fresh
	}
	out := make(map[string]any, len(pm)+len(fm))
	for k, v := range pm {
		out[k] = v
	}
	for k, v := range fm {
		out[k] = v
	}
	return out
}

func sortedNames(m map[string][]observer.ExecutedQuery) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
