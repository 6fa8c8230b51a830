// Package graphql holds the request and response shapes exchanged between the
// front end, the coalescer and downstream executors. Documents are already
// parsed; nothing here owns a wire format.
package graphql

import (
	"fmt"

	language "github.com/hanpama/gqlcoalesce/internal/language"
)

// Request is a single GraphQL request.
type Request struct {
	// Query is the source text the Document was parsed from. It is empty for
	// synthesized documents; executors then print Document.
	Query         string
	Document      *language.QueryDocument
	OperationName string
	Variables     map[string]any
	Extensions    map[string]any
}

// NewRequest parses query and returns a request for it.
func NewRequest(query, operationName string, variables map[string]any) (*Request, error) {
	doc, err := language.ParseQuery(query)
	if err != nil {
		return nil, err
	}
	return &Request{Query: query, Document: doc, OperationName: operationName, Variables: variables}, nil
}

// Operation returns the operation selected by OperationName, or nil.
func (r *Request) Operation() *language.OperationDefinition {
	if r == nil {
		return nil
	}
	return language.GetOperation(r.Document, r.OperationName)
}

// Source returns the text to send over the wire.
func (r *Request) Source() string {
	if r.Query != "" {
		return r.Query
	}
	return language.Print(r.Document)
}

func (r *Request) String() string {
	op := r.Operation()
	if op == nil {
		return fmt.Sprintf("request(%q)", r.OperationName)
	}
	return fmt.Sprintf("%s(%q)", op.Operation, op.Name)
}
