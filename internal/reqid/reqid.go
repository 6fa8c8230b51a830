package reqid

import (
	"context"

	"github.com/google/uuid"
)

// Header carries a request ID across process boundaries.
const Header = "X-Request-Id"

// key is the context key for the request ID.
type key struct{}

// NewContext returns a copy of parent with a new random request ID stored.
// It also returns the generated ID.
func NewContext(parent context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(parent, key{}, id), id
}

// WithID stores id in parent, generating one when id is empty.
func WithID(parent context.Context, id string) (context.Context, string) {
	if id == "" {
		return NewContext(parent)
	}
	return context.WithValue(parent, key{}, id), id
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(key{}).(string)
	return id, ok
}
