package doccache

import (
	"testing"

	"github.com/stretchr/testify/require"

	language "github.com/hanpama/gqlcoalesce/internal/language"
)

const sdl = `
type Query {
  user(id: ID!): User
}
type User {
  id: ID!
  name: String
}
`

func TestCache_ParsesAndCaches(t *testing.T) {
	c, err := New(2, nil)
	require.NoError(t, err)

	first, errs := c.Load(`{ user(id: 1) { id } }`)
	require.Empty(t, errs)
	again, errs := c.Load(`{ user(id: 1) { id } }`)
	require.Empty(t, errs)
	require.Same(t, first, again)

	hits, misses := c.Stats()
	require.Equal(t, uint64(1), hits)
	require.Equal(t, uint64(1), misses)
	require.Equal(t, 1, c.Len())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(2, nil)
	require.NoError(t, err)

	a, _ := c.Load(`{ a }`)
	c.Load(`{ b }`)
	c.Load(`{ a }`)
	c.Load(`{ c }`)
	require.Equal(t, 2, c.Len())

	again, _ := c.Load(`{ a }`)
	require.Same(t, a, again)
	_, misses := c.Stats()
	require.Equal(t, uint64(3), misses)
}

func TestCache_SyntaxErrorsAreNotCached(t *testing.T) {
	c, err := New(4, nil)
	require.NoError(t, err)

	doc, errs := c.Load(`{ user(`)
	require.Nil(t, doc)
	require.Len(t, errs, 1)
	require.NotEmpty(t, errs[0].Locations)
	require.Zero(t, c.Len())
}

func TestCache_ValidatesAgainstSchema(t *testing.T) {
	sch, err := language.LoadSchema("remote.graphql", sdl)
	require.NoError(t, err)
	c, err := New(4, sch)
	require.NoError(t, err)
	require.True(t, c.Validating())

	doc, errs := c.Load(`{ user(id: "1") { id name } }`)
	require.Empty(t, errs)
	require.NotNil(t, doc)

	_, errs = c.Load(`{ user(id: "1") { email } }`)
	require.NotEmpty(t, errs)
	require.Contains(t, errs.Error(), "email")
}

func TestCache_Disabled(t *testing.T) {
	c, err := New(0, nil)
	require.NoError(t, err)
	a, _ := c.Load(`{ a }`)
	b, _ := c.Load(`{ a }`)
	require.NotSame(t, a, b)
	require.Zero(t, c.Len())
}
