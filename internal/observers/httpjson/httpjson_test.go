package httpjson

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/unboundedsystems/adapt/internal/language"
	"github.com/unboundedsystems/adapt/internal/observer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var query = language.MustParseQuery(`query($url: String!) {
  name: json(url: $url, path: "name") { string exists }
  replicas: json(url: $url, path: "replicas") { int float }
  ready: json(url: $url, path: "ready") { bool }
  missing: json(url: $url, path: "nope") { raw exists }
  all: json(url: $url) { raw }
}`)

func newServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/deployment", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"web","replicas":3,"ready":true}`))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func newTestObserver(srv *httptest.Server) *Observer {
	o := New(WithRetryMax(0))
	o.client.HTTPClient = srv.Client()
	return o
}

func TestObserveCycle(t *testing.T) {
	ctx := context.Background()
	srv, hits := newServer(t)
	obs := newTestObserver(srv)
	vars := map[string]any{"url": srv.URL + "/deployment"}

	m := observer.NewManager()
	require.NoError(t, m.RegisterSchema(observer.Name(Name), obs.Schema(), observer.ObserverResponse{}))
	res, err := m.ExecuteQuery(ctx, observer.Name(Name), query, vars)
	require.NoError(t, err)
	require.NotEmpty(t, res.Errors)
	for _, e := range res.Errors {
		require.True(t, observer.IsNeedsData(e))
	}

	resp, err := obs.Observe(ctx, m.ExecutedQueriesThatNeededData()[Name])
	require.NoError(t, err)
	require.EqualValues(t, 1, hits.Load())

	next := observer.NewManager()
	require.NoError(t, next.RegisterSchema(observer.Name(Name), obs.Schema(), resp))
	res, err = next.ExecuteQuery(ctx, observer.Name(Name), query, vars)
	require.NoError(t, err)
	require.Empty(t, res.Errors)
	require.Equal(t, map[string]any{
		"name":     map[string]any{"string": "web", "exists": true},
		"replicas": map[string]any{"int": 3, "float": 3.0},
		"ready":    map[string]any{"bool": true},
		"missing":  map[string]any{"raw": nil, "exists": false},
		"all":      map[string]any{"raw": `{"name":"web","replicas":3,"ready":true}`},
	}, res.Data)
}

func TestObserveErrors(t *testing.T) {
	ctx := context.Background()
	srv, _ := newServer(t)
	obs := newTestObserver(srv)

	for path, msg := range map[string]string{
		"/broken": "unexpected status 404",
		"/text":   "response is not JSON",
	} {
		t.Run(path, func(t *testing.T) {
			_, err := obs.Observe(ctx, []observer.ExecutedQuery{{Query: query, Variables: map[string]any{"url": srv.URL + path}}})
			require.ErrorContains(t, err, msg)
		})
	}
}

func TestObserveNothingNeeded(t *testing.T) {
	resp, err := New().Observe(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, resp.Context)
}
