package merge

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	graphql "github.com/hanpama/gqlcoalesce/internal/graphql"
	language "github.com/hanpama/gqlcoalesce/internal/language"
)

const testSDL = `
type Query {
  user(id: ID!): User
  users(first: Int = 10): [User!]!
  viewer: User
}
type User {
  id: ID!
  name: String
  friends(first: Int): [User!]!
}
type Mutation {
  rename(id: ID!, name: String!): User
}
type Subscription {
  userChanged: User
}
`

func mustRequest(t *testing.T, query, opName string, vars map[string]any) *graphql.Request {
	t.Helper()
	r, err := graphql.NewRequest(query, opName, vars)
	require.NoError(t, err)
	return r
}

// requireValid checks the composite against the test schema after printing it.
func requireValid(t *testing.T, c *Composite) {
	t.Helper()
	sch, err := language.LoadSchema("test.graphql", testSDL)
	require.NoError(t, err)
	_, errs := language.LoadQuery(sch, language.Print(c.Request.Document))
	require.Empty(t, errs, "composite document:\n%s", language.Print(c.Request.Document))
}

func TestMerge_NamespacesFieldsAndVariables(t *testing.T) {
	a := mustRequest(t, `query A($id: ID!) { user(id: $id) { name } }`, "", map[string]any{"id": "1"})
	b := mustRequest(t, `query B($id: ID!) { u: user(id: $id) { ...F } } fragment F on User { id name }`, "B", map[string]any{"id": "2"})

	c, err := Merge([]*graphql.Request{a, b})
	require.NoError(t, err)
	require.Equal(t, language.Query, c.Operation)
	require.Equal(t, 2, c.Size)
	requireValid(t, c)

	op := c.Request.Document.Operations[0]
	require.Len(t, op.SelectionSet, 2)
	f0 := op.SelectionSet[0].(*language.Field)
	require.Equal(t, "__r0_user", f0.Alias)
	require.Equal(t, "user", f0.Name)
	require.Equal(t, language.Variable, f0.Arguments[0].Value.Kind)
	require.Equal(t, "__r0_id", f0.Arguments[0].Value.Raw)

	f1 := op.SelectionSet[1].(*language.Field)
	require.Equal(t, "__r1_u", f1.Alias)
	require.Equal(t, "__r1_id", f1.Arguments[0].Value.Raw)
	spread := f1.SelectionSet[0].(*language.FragmentSpread)
	require.Equal(t, "__r1_F", spread.Name)

	require.Len(t, c.Request.Document.Fragments, 1)
	require.Equal(t, "__r1_F", c.Request.Document.Fragments[0].Name)

	wantVars := map[string]any{"__r0_id": "1", "__r1_id": "2"}
	if diff := cmp.Diff(wantVars, c.Request.Variables); diff != "" {
		t.Fatalf("variables mismatch (-want +got):\n%s", diff)
	}
	wantRemap := Table{
		"__r0_user": {Member: 0, Key: "user"},
		"__r1_u":    {Member: 1, Key: "u"},
	}
	if diff := cmp.Diff(wantRemap, c.Remap); diff != "" {
		t.Fatalf("remap mismatch (-want +got):\n%s", diff)
	}
}

func TestMerge_IdenticalMembersDoNotCollide(t *testing.T) {
	q := `query($first: Int) { users(first: $first) { id friends(first: $first) { ...Names } } } fragment Names on User { name }`
	a := mustRequest(t, q, "", map[string]any{"first": 1})
	b := mustRequest(t, q, "", map[string]any{"first": 2})
	c := mustRequest(t, q, "", map[string]any{"first": 3})

	comp, err := Merge([]*graphql.Request{a, b, c})
	require.NoError(t, err)
	requireValid(t, comp)
	require.Len(t, comp.Request.Document.Fragments, 3)
	require.Equal(t, map[string]any{"__r0_first": 1, "__r1_first": 2, "__r2_first": 3}, comp.Request.Variables)
	require.Equal(t, Table{
		"__r0_users": {Member: 0, Key: "users"},
		"__r1_users": {Member: 1, Key: "users"},
		"__r2_users": {Member: 2, Key: "users"},
	}, comp.Remap)
}

func TestMerge_IsDeterministic(t *testing.T) {
	build := func() []*graphql.Request {
		return []*graphql.Request{
			mustRequest(t, `query($id: ID!) { user(id: $id) { id } viewer { name } }`, "", map[string]any{"id": "7"}),
			mustRequest(t, `{ ...Root } fragment Root on Query { viewer { ...U } } fragment U on User { id }`, "", nil),
		}
	}
	first, err := Merge(build())
	require.NoError(t, err)
	second, err := Merge(build())
	require.NoError(t, err)

	if diff := cmp.Diff(language.Print(first.Request.Document), language.Print(second.Request.Document)); diff != "" {
		t.Fatalf("document mismatch (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Request.Variables, second.Request.Variables); diff != "" {
		t.Fatalf("variables mismatch (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Remap, second.Remap); diff != "" {
		t.Fatalf("remap mismatch (-first +second):\n%s", diff)
	}
}

func TestMerge_DoesNotMutateMembers(t *testing.T) {
	a := mustRequest(t, `query($id: ID!) { user(id: $id) { ...F } } fragment F on User { id }`, "", map[string]any{"id": "1"})
	b := mustRequest(t, `{ viewer { name } }`, "", nil)
	before := []string{language.Print(a.Document), language.Print(b.Document)}

	_, err := Merge([]*graphql.Request{a, b})
	require.NoError(t, err)

	after := []string{language.Print(a.Document), language.Print(b.Document)}
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("member documents changed (-before +after):\n%s", diff)
	}
	require.Equal(t, map[string]any{"id": "1"}, a.Variables)
}

func TestMerge_InlinesRootFragmentSpreads(t *testing.T) {
	a := mustRequest(t, `{ ...Root @include(if: true) } fragment Root on Query { me: viewer { id } }`, "", nil)
	b := mustRequest(t, `{ viewer { id } }`, "", nil)

	c, err := Merge([]*graphql.Request{a, b})
	require.NoError(t, err)
	requireValid(t, c)

	op := c.Request.Document.Operations[0]
	inline, ok := op.SelectionSet[0].(*language.InlineFragment)
	require.True(t, ok, "root spread should become an inline fragment")
	require.Equal(t, "Query", inline.TypeCondition)
	require.Equal(t, "include", inline.Directives[0].Name)
	require.Equal(t, "__r0_me", inline.SelectionSet[0].(*language.Field).Alias)
	require.Empty(t, c.Request.Document.Fragments, "root-only fragments are not carried")
	require.Equal(t, Target{Member: 0, Key: "me"}, c.Remap["__r0_me"])
	require.Equal(t, Target{Member: 1, Key: "viewer"}, c.Remap["__r1_viewer"])
}

func TestMerge_VariableDefaultsAndUndeclaredValues(t *testing.T) {
	a := mustRequest(t, `query($first: Int = 5) { users(first: $first) { id } }`, "", map[string]any{"stray": true})
	b := mustRequest(t, `{ viewer { id } }`, "", nil)

	c, err := Merge([]*graphql.Request{a, b})
	require.NoError(t, err)
	requireValid(t, c)

	vd := c.Request.Document.Operations[0].VariableDefinitions
	require.Len(t, vd, 1)
	require.Equal(t, "__r0_first", vd[0].Variable)
	require.Equal(t, "5", vd[0].DefaultValue.Raw)
	require.Empty(t, c.Request.Variables, "undeclared and absent values are not forwarded")
}

func TestMerge_Mutations(t *testing.T) {
	a := mustRequest(t, `mutation($id: ID!, $n: String!) { rename(id: $id, name: $n) { name } }`, "", map[string]any{"id": "1", "n": "x"})
	b := mustRequest(t, `mutation { rename(id: "2", name: "y") { id } }`, "", nil)

	c, err := Merge([]*graphql.Request{a, b})
	require.NoError(t, err)
	require.Equal(t, language.Mutation, c.Operation)
	requireValid(t, c)
}

func TestMerge_Errors(t *testing.T) {
	_, err := Merge(nil)
	require.ErrorIs(t, err, ErrNoMembers)

	q := mustRequest(t, `{ viewer { id } }`, "", nil)
	m := mustRequest(t, `mutation { rename(id: "1", name: "x") { id } }`, "", nil)
	_, err = Merge([]*graphql.Request{q, m})
	require.ErrorIs(t, err, ErrMixedOperations)

	named := mustRequest(t, `query A { viewer { id } } query B { viewer { name } }`, "C", nil)
	_, err = Merge([]*graphql.Request{q, named})
	require.ErrorIs(t, err, ErrOperationNotFound)

	missing := mustRequest(t, `{ viewer { ...Nope } }`, "", nil)
	_, err = Merge([]*graphql.Request{q, missing})
	require.ErrorIs(t, err, ErrUnknownFragment)
}

func TestGroupByOperation(t *testing.T) {
	reqs := []*graphql.Request{
		mustRequest(t, `{ viewer { id } }`, "", nil),
		mustRequest(t, `mutation { rename(id: "1", name: "x") { id } }`, "", nil),
		mustRequest(t, `query A { viewer { id } } query B { viewer { id } }`, "", nil),
		mustRequest(t, `query Q { viewer { name } }`, "Q", nil),
	}
	got := GroupByOperation(reqs)
	want := []Group{
		{Operation: language.Query, Members: []int{0, 3}},
		{Operation: language.Mutation, Members: []int{1}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("groups mismatch (-want +got):\n%s", diff)
	}
}
