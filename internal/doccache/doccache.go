// Package doccache keeps parsed query documents keyed by their source text so
// repeated queries skip parsing and validation.
package doccache

import (
	"errors"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	language "github.com/hanpama/gqlcoalesce/internal/language"
)

// Cache parses, and validates when a schema is set, query documents. Cached
// documents are shared between requests and must be treated as read-only.
type Cache struct {
	docs   *lru.Cache[string, *language.QueryDocument]
	schema *language.Schema

	hits   atomic.Uint64
	misses atomic.Uint64
}

// New returns a cache holding up to size documents. size <= 0 disables
// caching. With a non-nil schema, documents are validated against it.
func New(size int, schema *language.Schema) (*Cache, error) {
	c := &Cache{schema: schema}
	if size > 0 {
		docs, err := lru.New[string, *language.QueryDocument](size)
		if err != nil {
			return nil, err
		}
		c.docs = docs
	}
	return c, nil
}

// Load returns the document for query. Failed documents are not cached.
func (c *Cache) Load(query string) (*language.QueryDocument, language.ErrorList) {
	if c.docs != nil {
		if doc, ok := c.docs.Get(query); ok {
			c.hits.Add(1)
			return doc, nil
		}
	}
	c.misses.Add(1)

	doc, errs := c.parse(query)
	if len(errs) > 0 {
		return nil, errs
	}
	if c.docs != nil {
		c.docs.Add(query, doc)
	}
	return doc, nil
}

func (c *Cache) parse(query string) (*language.QueryDocument, language.ErrorList) {
	if c.schema != nil {
		return language.LoadQuery(c.schema, query)
	}
	doc, err := language.ParseQuery(query)
	if err != nil {
		var ge *language.Error
		if errors.As(err, &ge) {
			return nil, language.ErrorList{ge}
		}
		return nil, language.ErrorList{{Message: err.Error()}}
	}
	return doc, nil
}

// Validating reports whether documents are checked against a schema.
func (c *Cache) Validating() bool { return c.schema != nil }

// Len reports the number of cached documents.
func (c *Cache) Len() int {
	if c.docs == nil {
		return 0
	}
	return c.docs.Len()
}

// Stats reports cache hits and misses since creation.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}
