package httptp

import (
	"context"
	"sync"
)

// EndpointProvider lists the URLs serving the remote schema. Implementations
// should be safe for concurrent use.
type EndpointProvider interface {
	Endpoints(ctx context.Context) ([]string, error)
}

// StaticEndpoints is a fixed list of endpoint URLs.
type StaticEndpoints struct {
	mu   sync.RWMutex
	urls []string
}

func NewStaticEndpoints(urls ...string) *StaticEndpoints {
	return &StaticEndpoints{urls: append([]string(nil), urls...)}
}

// Set replaces the endpoint list.
func (s *StaticEndpoints) Set(urls ...string) {
	s.mu.Lock()
	s.urls = append([]string(nil), urls...)
	s.mu.Unlock()
}

func (s *StaticEndpoints) Endpoints(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.urls) == 0 {
		return nil, ErrNoEndpoints
	}
	return append([]string(nil), s.urls...), nil
}
