package remote

import (
	"context"
	"sync"

	graphql "github.com/hanpama/gqlcoalesce/internal/graphql"
	language "github.com/hanpama/gqlcoalesce/internal/language"
)

// MockResolver resolves one root field from its coerced arguments.
type MockResolver func(ctx context.Context, args map[string]any) (any, error)

// NewMockValueResolver returns a MockResolver that always returns val.
func NewMockValueResolver(val any) MockResolver {
	return func(context.Context, map[string]any) (any, error) { return val, nil }
}

// NewMockErrorResolver returns a MockResolver that always returns err.
func NewMockErrorResolver(err error) MockResolver {
	return func(context.Context, map[string]any) (any, error) { return nil, err }
}

// Call records one Execute invocation.
type Call struct {
	Operation language.Operation
	Document  string
	Variables map[string]any
	// Keys are the root response keys in document order.
	Keys []string
}

// MockDownstream implements Downstream by resolving root fields with
// MockResolvers. Nested selections are ignored; resolvers return the whole
// subtree. Root fields without a resolver resolve to nil.
type MockDownstream struct {
	mu        sync.Mutex
	resolvers map[string]MockResolver
	calls     []Call
	handler   DownstreamFunc
	closed    bool
}

// NewMockDownstream creates a MockDownstream. Keys of resolvers are root field
// names.
func NewMockDownstream(resolvers map[string]MockResolver) *MockDownstream {
	if resolvers == nil {
		resolvers = map[string]MockResolver{}
	}
	return &MockDownstream{resolvers: resolvers}
}

// WithHandler makes Execute answer with h after recording the call.
func (m *MockDownstream) WithHandler(h DownstreamFunc) *MockDownstream {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
	return m
}

func (m *MockDownstream) Execute(ctx context.Context, req *graphql.Request) (graphql.Response, error) {
	op := req.Operation()
	var fields []*language.Field
	if op != nil {
		fields = collectRootFields(req.Document, op.SelectionSet, nil)
	}
	call := Call{Document: req.Source(), Variables: req.Variables}
	if op != nil {
		call.Operation = op.Operation
	}
	for _, f := range fields {
		call.Keys = append(call.Keys, f.Alias)
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	handler := m.handler
	m.mu.Unlock()

	if handler != nil {
		return handler(ctx, req)
	}

	res := &graphql.Result{Data: map[string]any{}}
	for _, f := range fields {
		m.mu.Lock()
		resolver := m.resolvers[f.Name]
		m.mu.Unlock()
		if resolver == nil {
			res.Data[f.Alias] = nil
			continue
		}
		args := make(map[string]any, len(f.Arguments))
		for _, a := range f.Arguments {
			args[a.Name], _ = a.Value.Value(req.Variables)
		}
		v, err := resolver(ctx, args)
		if err != nil {
			res.Data[f.Alias] = nil
			res.Errors = append(res.Errors, &language.Error{
				Err:     err,
				Message: err.Error(),
				Path:    language.Path{language.PathName(f.Alias)},
			})
			continue
		}
		res.Data[f.Alias] = v
	}
	return res, nil
}

// Calls returns a copy of the call log.
func (m *MockDownstream) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Close marks the downstream closed.
func (m *MockDownstream) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (m *MockDownstream) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func collectRootFields(doc *language.QueryDocument, set language.SelectionSet, out []*language.Field) []*language.Field {
	for _, sel := range set {
		switch s := sel.(type) {
		case *language.Field:
			out = append(out, s)
		case *language.InlineFragment:
			out = collectRootFields(doc, s.SelectionSet, out)
		case *language.FragmentSpread:
			if def := doc.Fragments.ForName(s.Name); def != nil {
				out = collectRootFields(doc, def.SelectionSet, out)
			}
		}
	}
	return out
}
