// Package httpjson is an observer plugin over JSON documents served by HTTP
// endpoints. Queries name a URL and an optional gjson path; Observe fetches
// every URL the queries ask for.
package httpjson

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sourcegraph/conc/pool"
	"github.com/tidwall/gjson"

	"github.com/unboundedsystems/adapt/internal/observer"
	"github.com/unboundedsystems/adapt/internal/resolver"
)

const Name = "httpjson"

const SDL = `
type Query {
  json(url: String!, path: String = ""): JSONValue
}

type JSONValue {
  raw: String
  exists: Boolean!
  string: String
  int: Int
  float: Float
  bool: Boolean
}
`

const (
	DefaultTimeout        = 10 * time.Second
	DefaultMaxConcurrency = 4
	defaultMaxBody        = 8 << 20
)

var executable = resolver.MustExecutable(SDL, resolver.Map{
	"Query.json":    resolveJSON,
	"JSONValue.raw": jsonField(func(r gjson.Result) any { return r.Raw }),
	"JSONValue.exists": func(ctx context.Context, p resolver.Params) (any, error) {
		return p.Source.(gjson.Result).Exists(), nil
	},
	"JSONValue.string": jsonField(func(r gjson.Result) any { return r.String() }),
	"JSONValue.int":    jsonField(func(r gjson.Result) any { return int(r.Int()) }),
	"JSONValue.float":  jsonField(func(r gjson.Result) any { return r.Float() }),
	"JSONValue.bool":   jsonField(func(r gjson.Result) any { return r.Bool() }),
})

// Observer implements observer.Plugin.
type Observer struct {
	client         *retryablehttp.Client
	maxConcurrency int
}

var _ observer.Plugin = (*Observer)(nil)

type Option func(*Observer)

// WithClient replaces the default retrying client.
func WithClient(c *retryablehttp.Client) Option { return func(o *Observer) { o.client = c } }

func WithTimeout(d time.Duration) Option {
	return func(o *Observer) { o.client.HTTPClient.Timeout = d }
}

func WithRetryMax(n int) Option { return func(o *Observer) { o.client.RetryMax = n } }

func WithMaxConcurrency(n int) Option {
	return func(o *Observer) {
		if n > 0 {
			o.maxConcurrency = n
		}
	}
}

func New(opts ...Option) *Observer {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.HTTPClient.Timeout = DefaultTimeout
	o := &Observer{client: client, maxConcurrency: DefaultMaxConcurrency}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Observer) Schema() *resolver.Executable { return executable }

// Observe fetches the URLs queries ask for. The returned context maps each URL
// to its response body. Any failed fetch fails the whole call.
func (o *Observer) Observe(ctx context.Context, queries []observer.ExecutedQuery) (observer.ObserverResponse, error) {
	c := &collector{urls: make(map[string]struct{})}
	for _, q := range queries {
		executable.Execute(ctx, q.Query, q.Variables, nil, c)
	}

	var mu sync.Mutex
	bodies := make(map[string]any, len(c.urls))
	p := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(o.maxConcurrency)
	for _, u := range c.sorted() {
		p.Go(func(ctx context.Context) error {
			body, err := o.fetch(ctx, u)
			if err != nil {
				return err
			}
			mu.Lock()
			bodies[u] = body
			mu.Unlock()
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return observer.ObserverResponse{}, err
	}
	return observer.ObserverResponse{Context: bodies}, nil
}

func (o *Observer) fetch(ctx context.Context, url string) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBody))
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("fetch %s: response is not JSON", url)
	}
	return string(body), nil
}

type collector struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

func (c *collector) add(url string) {
	c.mu.Lock()
	c.urls[url] = struct{}{}
	c.mu.Unlock()
}

func (c *collector) sorted() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.urls))
	for u := range c.urls {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func resolveJSON(ctx context.Context, p resolver.Params) (any, error) {
	url, _ := p.Args["url"].(string)
	path, _ := p.Args["path"].(string)

	var body string
	switch c := p.Context.(type) {
	case *collector:
		c.add(url)
		return nil, observer.NeedsData("collecting %s", url)
	case map[string]any:
		b, ok := c[url].(string)
		if !ok {
			return nil, observer.NeedsData("no response for %s", url)
		}
		body = b
	default:
		return nil, observer.NeedsData("no response for %s", url)
	}
	if path == "" {
		return gjson.Parse(body), nil
	}
	return gjson.Get(body, path), nil
}

func jsonField(get func(gjson.Result) any) resolver.FieldFunc {
	return func(ctx context.Context, p resolver.Params) (any, error) {
		r := p.Source.(gjson.Result)
		if !r.Exists() {
			return nil, nil
		}
		return get(r), nil
	}
}
