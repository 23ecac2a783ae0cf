package executor

import (
	"errors"
	"strconv"
	"strings"
)

// Path locates a value in the response: field response names and list
// indexes.
type Path []any

// String renders p as "a.b[1].c".
func (p Path) String() string {
	var b strings.Builder
	for _, elem := range p {
		switch v := elem.(type) {
		case int:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(v))
			b.WriteByte(']')
		case string:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(v)
		}
	}
	return b.String()
}

func (p Path) append(elem any) Path {
	out := make(Path, len(p)+1)
	copy(out, p)
	out[len(p)] = elem
	return out
}

// hasPrefix reports whether prefix is p or one of its ancestors.
func (p Path) hasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// GraphQLError is an error located in the response.
type GraphQLError struct {
	Message    string         `json:"message"`
	Path       Path           `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`

	// Err is the error a resolver returned, kept so callers can match on
	// structured error kinds with errors.As. It is not serialized.
	Err error `json:"-"`
}

func (e GraphQLError) Error() string {
	return e.Message
}

func (e GraphQLError) Unwrap() error {
	return e.Err
}

// ExtendedError is implemented by resolver errors that carry GraphQL error
// extensions, such as a machine-readable code.
type ExtendedError interface {
	error
	Extensions() map[string]any
}

func newError(err error, path Path) GraphQLError {
	out := GraphQLError{Message: err.Error(), Path: path, Err: err}
	var ext ExtendedError
	if errors.As(err, &ext) {
		out.Extensions = ext.Extensions()
	}
	return out
}

// ExecutionResult is the outcome of one operation.
type ExecutionResult struct {
	Data   any            `json:"data"`
	Errors []GraphQLError `json:"errors,omitempty"`
}
