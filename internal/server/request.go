package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
)

// Request is one GraphQL request, from a POST body or a GET query string.
// A POST body may also hold a JSON array of them.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// requestError rejects a whole HTTP request.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) *requestError {
	return &requestError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

// readRequests decodes the GraphQL requests carried by r. batched is set for
// array bodies, which are answered with an array.
func readRequests(w http.ResponseWriter, r *http.Request, maxBody int64) (reqs []Request, batched bool, rerr *requestError) {
	if r.Method == http.MethodGet {
		req, rerr := queryRequest(r.URL.Query())
		if rerr != nil {
			return nil, false, rerr
		}
		return []Request{req}, false, nil
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			return nil, false, &requestError{status: http.StatusUnsupportedMediaType, msg: "unsupported Content-Type " + ct}
		}
	}
	body := r.Body
	if maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, maxBody)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, false, &requestError{status: http.StatusRequestEntityTooLarge, msg: fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit)}
		}
		return nil, false, badRequest("read body: %v", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, false, badRequest("invalid JSON")
	}

	if gjson.ParseBytes(data).IsArray() {
		if err := json.Unmarshal(data, &reqs); err != nil {
			return nil, false, badRequest("invalid batch: %v", err)
		}
		if len(reqs) == 0 {
			return nil, false, badRequest("empty batch")
		}
		return reqs, true, nil
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, false, badRequest("invalid request: %v", err)
	}
	if req.Query == "" {
		return nil, false, badRequest("missing 'query'")
	}
	return []Request{req}, false, nil
}

func queryRequest(v url.Values) (Request, *requestError) {
	req := Request{Query: v.Get("query"), OperationName: v.Get("operationName")}
	if req.Query == "" {
		return req, badRequest("missing 'query'")
	}
	if raw := v.Get("variables"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
			return req, badRequest("invalid 'variables' JSON")
		}
	}
	return req, nil
}
