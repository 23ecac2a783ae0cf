// Package server exposes registered observers over HTTP. Each observer has
// its own GraphQL endpoint at /observers/{name}/graphql. Every request
// executes with a fresh Manager over the current observations, and the
// response reports whether any query needed data that has not been observed.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"go.uber.org/zap"

	"github.com/unboundedsystems/adapt/internal/compile"
	"github.com/unboundedsystems/adapt/internal/eventbus"
	"github.com/unboundedsystems/adapt/internal/events"
	"github.com/unboundedsystems/adapt/internal/executor"
	"github.com/unboundedsystems/adapt/internal/logger"
	"github.com/unboundedsystems/adapt/internal/observer"
	"github.com/unboundedsystems/adapt/internal/reqid"
	"github.com/unboundedsystems/adapt/internal/transform"
)

// Source supplies the observations requests execute against.
type Source func(ctx context.Context) (observer.Observations, error)

// Static serves obs for every request.
func Static(obs observer.Observations) Source {
	return func(context.Context) (observer.Observations, error) { return obs, nil }
}

// Handler is an http.Handler that serves the observer endpoints.
type Handler struct {
	registry  *observer.Registry
	source    Source
	compilers map[string]*compile.Compiler
	opt       Options
	handler   http.Handler
}

type Options struct {
	// Timeout sets a default timeout if the incoming request context has none.
	// 0 means no default timeout.
	Timeout time.Duration

	// Pretty enables indented JSON responses (useful for dev).
	Pretty bool

	// MaxBodyBytes limits the size of the request body. 0 means unlimited.
	MaxBodyBytes int64

	// CORSOrigins lists allowed origins. If empty, CORS is disabled.
	CORSOrigins []string

	// AllLimits bound @all expansion in client queries.
	AllLimits transform.Limits

	Logger logger.Logger
	Bus    *eventbus.Bus
}

type Option func(*Options)

func WithTimeout(d time.Duration) Option { return func(o *Options) { o.Timeout = d } }
func WithPretty() Option                 { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option    { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option  { return func(o *Options) { o.CORSOrigins = origins } }
func WithLogger(l logger.Logger) Option  { return func(o *Options) { o.Logger = l } }
func WithBus(b *eventbus.Bus) Option     { return func(o *Options) { o.Bus = b } }

func WithAllLimits(lim transform.Limits) Option { return func(o *Options) { o.AllLimits = lim } }

// New creates a handler for every plugin in reg.
func New(reg *observer.Registry, source Source, opts ...Option) (*Handler, error) {
	op := Options{Timeout: 10 * time.Second, Logger: logger.NewNoopLogger(), AllLimits: transform.DefaultLimits}
	for _, f := range opts {
		f(&op)
	}
	h := &Handler{registry: reg, source: source, compilers: make(map[string]*compile.Compiler), opt: op}
	for _, name := range reg.Names() {
		p, err := reg.Lookup(name)
		if err != nil {
			return nil, err
		}
		c, err := compile.New(p.Schema().Schema, compile.WithAllLimits(op.AllLimits))
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("observer %s: %w", name, err)
		}
		h.compilers[name] = c
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/observers/{name}/graphql", h.serveGraphQL)
	h.handler = mux
	if len(op.CORSOrigins) > 0 {
		h.handler = cors.New(cors.Options{
			AllowedOrigins: op.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"*"},
		}).Handler(mux)
	}
	return h, nil
}

// Close releases the query caches.
func (h *Handler) Close() {
	for _, c := range h.compilers {
		c.Close()
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

func (h *Handler) serveGraphQL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := ctx.Deadline(); !ok && h.opt.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opt.Timeout)
		defer cancel()
	}

	ctx, _ = reqid.NewContext(ctx)
	name := r.PathValue("name")
	status := http.StatusOK
	needsData := false
	start := time.Now()
	eventbus.Publish(ctx, h.opt.Bus, events.RequestStart{Observer: name, Method: r.Method, Target: r.URL.Path})
	defer func() {
		eventbus.Publish(ctx, h.opt.Bus, events.RequestFinish{Observer: name, Status: status, NeedsData: needsData, Duration: time.Since(start)})
	}()

	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		status = http.StatusMethodNotAllowed
		writeJSON(w, status, errorResponse(&gqlerror.Error{Message: "method not allowed"}), h.opt.Pretty)
		return
	}

	compiler, ok := h.compilers[name]
	if !ok {
		status = http.StatusNotFound
		writeJSON(w, status, errorResponse(&gqlerror.Error{Message: fmt.Sprintf("unknown observer %q", name)}), h.opt.Pretty)
		return
	}

	reqs, batched, rerr := readRequests(w, r, h.opt.MaxBodyBytes)
	if rerr != nil {
		status = rerr.status
		writeJSON(w, status, errorResponse(&gqlerror.Error{Message: rerr.msg}), h.opt.Pretty)
		return
	}

	obs, err := h.source(ctx)
	if err != nil {
		h.opt.Logger.ErrorWithContext(ctx, "load observations", zap.Error(err))
		status = http.StatusInternalServerError
		writeJSON(w, status, errorResponse(&gqlerror.Error{Message: "observations unavailable"}), h.opt.Pretty)
		return
	}
	m, err := observer.NewManagerFromRegistry(h.registry, obs, observer.WithLogger(h.opt.Logger), observer.WithBus(h.opt.Bus))
	if err != nil {
		status = http.StatusInternalServerError
		writeJSON(w, status, errorResponse(&gqlerror.Error{Message: err.Error()}), h.opt.Pretty)
		return
	}

	out := make([]wireResult, len(reqs))
	for i, req := range reqs {
		out[i] = h.executeOne(ctx, m, name, compiler, req)
		needsData = needsData || out[i].needsData()
	}
	if batched {
		writeJSON(w, status, out, h.opt.Pretty)
		return
	}
	writeJSON(w, status, out[0], h.opt.Pretty)
}

func (h *Handler) executeOne(ctx context.Context, m *observer.Manager, name string, c *compile.Compiler, req Request) wireResult {
	if req.Query == "" {
		return errorResponse(&gqlerror.Error{Message: "missing 'query'"})
	}
	if req.OperationName != "" {
		return errorResponse(&gqlerror.Error{Message: "operationName is not supported; send a single operation"})
	}
	doc, err := c.Compile(req.Query)
	if err != nil {
		return compileErrorResponse(err)
	}
	if len(doc.Operations) != 1 {
		return errorResponse(&gqlerror.Error{Message: "query must contain exactly one operation"})
	}
	res, err := m.ExecuteQuery(ctx, observer.Name(name), doc, req.Variables)
	if err != nil {
		return errorResponse(&gqlerror.Error{Message: err.Error()})
	}
	return toWireResult(res)
}

type wireLocation struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

type wireError struct {
	Message    string         `json:"message"`
	Locations  []wireLocation `json:"locations,omitempty"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type wireExtensions struct {
	NeedsData bool `json:"needsData"`
}

type wireResult struct {
	Data       any             `json:"data"`
	Errors     []wireError     `json:"errors,omitempty"`
	Extensions *wireExtensions `json:"extensions,omitempty"`
}

func (r wireResult) needsData() bool {
	return r.Extensions != nil && r.Extensions.NeedsData
}

func errorResponse(errs ...*gqlerror.Error) wireResult {
	out := wireResult{Errors: make([]wireError, len(errs))}
	for i, err := range errs {
		se := wireError{Message: err.Message, Extensions: err.Extensions}
		for _, loc := range err.Locations {
			se.Locations = append(se.Locations, wireLocation{Line: loc.Line, Column: loc.Column})
		}
		out.Errors[i] = se
	}
	return out
}

func compileErrorResponse(err error) wireResult {
	var list gqlerror.List
	if errors.As(err, &list) {
		return errorResponse(list...)
	}
	var ge *gqlerror.Error
	if errors.As(err, &ge) {
		return errorResponse(ge)
	}
	return errorResponse(&gqlerror.Error{Message: err.Error()})
}

func toWireResult(res *executor.ExecutionResult) wireResult {
	out := wireResult{Data: res.Data, Extensions: &wireExtensions{}}
	if len(res.Errors) == 0 {
		return out
	}
	out.Errors = make([]wireError, len(res.Errors))
	for i, e := range res.Errors {
		se := wireError{Message: e.Message, Extensions: e.Extensions}
		if len(e.Path) > 0 {
			se.Path = []any(e.Path)
		}
		if observer.IsNeedsData(e) {
			out.Extensions.NeedsData = true
		}
		out.Errors[i] = se
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any, pretty bool) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	_ = enc.Encode(v)
}
