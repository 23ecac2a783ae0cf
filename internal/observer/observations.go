package observer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/unboundedsystems/adapt/internal/language"
)

// ObserverObservations is the fetched data of one observer along with the
// queries asked of it.
type ObserverObservations struct {
	Observations ObserverResponse
	Queries      []ExecutedQuery
}

// Observations holds ObserverObservations by observer name.
type Observations map[string]ObserverObservations

// FullObservations adds the opaque deploy-plugin state that travels with
// observer data.
type FullObservations struct {
	Plugin   json.RawMessage
	Observer Observations
}

// PreparedQuery is the persisted form of an ExecutedQuery.
type PreparedQuery struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// PreparedObserverObservations is the persisted form of ObserverObservations.
type PreparedObserverObservations struct {
	Observations ObserverResponse `json:"observations"`
	Queries      []PreparedQuery  `json:"queries"`
}

// PreparedFullObservations is the persisted form of FullObservations.
type PreparedFullObservations struct {
	Plugin   json.RawMessage                         `json:"plugin,omitempty"`
	Observer map[string]PreparedObserverObservations `json:"observer,omitempty"`
}

// Prepare converts obs to its persisted form, printing every query.
func Prepare(obs FullObservations) PreparedFullObservations {
	out := PreparedFullObservations{Plugin: obs.Plugin}
	if obs.Observer == nil {
		return out
	}
	out.Observer = make(map[string]PreparedObserverObservations, len(obs.Observer))
	for name, o := range obs.Observer {
		queries := make([]PreparedQuery, len(o.Queries))
		for i, q := range o.Queries {
			queries[i] = PreparedQuery{Query: language.Print(q.Query), Variables: q.Variables}
		}
		out.Observer[name] = PreparedObserverObservations{Observations: o.Observations, Queries: queries}
	}
	return out
}

// Reconstitute parses persisted observations. Unknown keys, a query that is
// not a parseable string, and variables that are not an object are all
// reported as ErrMalformedObservations naming the observer and the check.
func Reconstitute(data []byte) (FullObservations, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return FullObservations{}, fmt.Errorf("%w: %v", ErrMalformedObservations, err)
	}
	var out FullObservations
	for _, k := range sortedKeys(top) {
		switch k {
		case "plugin":
			if !isNull(top[k]) {
				out.Plugin = top[k]
			}
		case "observer":
			obs, err := reconstituteObservers(top[k])
			if err != nil {
				return FullObservations{}, err
			}
			out.Observer = obs
		default:
			return FullObservations{}, fmt.Errorf("%w: unexpected top-level key %q", ErrMalformedObservations, k)
		}
	}
	return out, nil
}

func reconstituteObservers(raw json.RawMessage) (Observations, error) {
	var byName map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byName); err != nil {
		return nil, fmt.Errorf("%w: observer: %v", ErrMalformedObservations, err)
	}
	out := make(Observations, len(byName))
	for _, name := range sortedKeys(byName) {
		o, err := reconstituteObserver(name, byName[name])
		if err != nil {
			return nil, err
		}
		out[name] = o
	}
	return out, nil
}

func reconstituteObserver(name string, fields map[string]json.RawMessage) (ObserverObservations, error) {
	malformed := func(format string, args ...any) error {
		return fmt.Errorf("%w: observer %q: %s", ErrMalformedObservations, name, fmt.Sprintf(format, args...))
	}
	var out ObserverObservations
	for _, k := range sortedKeys(fields) {
		switch k {
		case "observations":
			resp, err := reconstituteResponse(fields[k])
			if err != nil {
				return out, malformed("%v", err)
			}
			out.Observations = resp
		case "queries":
			var entries []map[string]json.RawMessage
			if err := json.Unmarshal(fields[k], &entries); err != nil {
				return out, malformed("queries is not a list of objects")
			}
			out.Queries = make([]ExecutedQuery, len(entries))
			for i, entry := range entries {
				q, err := reconstituteQuery(entry)
				if err != nil {
					return out, malformed("query %d: %v", i, err)
				}
				out.Queries[i] = q
			}
		default:
			return out, malformed("unexpected key %q", k)
		}
	}
	return out, nil
}

func reconstituteResponse(raw json.RawMessage) (ObserverResponse, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ObserverResponse{}, fmt.Errorf("observations is not an object")
	}
	var resp ObserverResponse
	for _, k := range sortedKeys(fields) {
		var v any
		if err := json.Unmarshal(fields[k], &v); err != nil {
			return ObserverResponse{}, fmt.Errorf("observations %s: %v", k, err)
		}
		switch k {
		case "data":
			resp.Data = v
		case "context":
			resp.Context = v
		default:
			return ObserverResponse{}, fmt.Errorf("observations has unexpected key %q", k)
		}
	}
	return resp, nil
}

func reconstituteQuery(entry map[string]json.RawMessage) (ExecutedQuery, error) {
	var q ExecutedQuery
	raw, ok := entry["query"]
	if !ok {
		return q, fmt.Errorf("missing query")
	}
	for _, k := range sortedKeys(entry) {
		if k != "query" && k != "variables" {
			return q, fmt.Errorf("unexpected key %q", k)
		}
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return q, fmt.Errorf("query is not a string")
	}
	doc, err := language.ParseQuery(text)
	if err != nil {
		return q, fmt.Errorf("query does not parse: %w", err)
	}
	q.Query = doc

	if rawVars, ok := entry["variables"]; ok && !isNull(rawVars) {
		switch bytes.TrimSpace(rawVars)[0] {
		case '[':
			return q, fmt.Errorf("variables is an array")
		case '{':
		default:
			return q, fmt.Errorf("variables is not an object")
		}
		if err := json.Unmarshal(rawVars, &q.Variables); err != nil {
			return q, fmt.Errorf("variables: %v", err)
		}
	}
	return q, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WriteFile persists obs as indented JSON.
func WriteFile(path string, obs FullObservations) error {
	b, err := json.MarshalIndent(Prepare(obs), "", "  ")
	if err != nil {
		return fmt.Errorf("encode observations: %w", err)
	}
	if err := os.WriteFile(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write observations: %w", err)
	}
	return nil
}

// ReadFile loads observations written by WriteFile. A missing file yields
// empty observations.
func ReadFile(path string) (FullObservations, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return FullObservations{Observer: Observations{}}, nil
	}
	if err != nil {
		return FullObservations{}, fmt.Errorf("read observations: %w", err)
	}
	obs, err := Reconstitute(b)
	if err != nil {
		return FullObservations{}, fmt.Errorf("%s: %w", path, err)
	}
	if obs.Observer == nil {
		obs.Observer = Observations{}
	}
	return obs, nil
}
