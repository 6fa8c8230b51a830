package graphql

import (
	"errors"

	language "github.com/hanpama/gqlcoalesce/internal/language"
)

// ResultKind discriminates the shapes a downstream executor may answer with.
type ResultKind int

const (
	// KindSingle is one complete {data, errors, extensions} result.
	KindSingle ResultKind = iota
	// KindStream is an incremental (multipart or event-stream) response.
	KindStream
	// KindBatch is a list of results answering a batched request.
	KindBatch
)

func (k ResultKind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindStream:
		return "stream"
	case KindBatch:
		return "batch"
	default:
		return "unknown"
	}
}

// Response is anything a downstream executor can return.
type Response interface {
	Kind() ResultKind
}

// Result is a single GraphQL result.
type Result struct {
	Data       map[string]any     `json:"data"`
	Errors     language.ErrorList `json:"errors,omitempty"`
	Extensions map[string]any     `json:"extensions,omitempty"`
}

func (*Result) Kind() ResultKind { return KindSingle }

// Stream is an incremental response. Its payload is kept opaque.
type Stream struct {
	ContentType string
	Payload     []byte
}

func (*Stream) Kind() ResultKind { return KindStream }

// Batch is a list of results.
type Batch []*Result

func (Batch) Kind() ResultKind { return KindBatch }

// ErrorResult wraps err into a result without data.
func ErrorResult(err error) *Result {
	var ge *language.Error
	if errors.As(err, &ge) {
		return &Result{Errors: language.ErrorList{CloneError(ge)}}
	}
	return &Result{Errors: language.ErrorList{{Message: err.Error()}}}
}

// CloneError returns a copy of e that shares no slices or maps with it.
func CloneError(e *language.Error) *language.Error {
	if e == nil {
		return nil
	}
	out := &language.Error{
		Err:     e.Err,
		Message: e.Message,
		Rule:    e.Rule,
	}
	if e.Path != nil {
		out.Path = append(language.Path(nil), e.Path...)
	}
	if e.Locations != nil {
		out.Locations = append([]language.Location(nil), e.Locations...)
	}
	if e.Extensions != nil {
		out.Extensions = make(map[string]any, len(e.Extensions))
		for k, v := range e.Extensions {
			out.Extensions[k] = v
		}
	}
	return out
}
