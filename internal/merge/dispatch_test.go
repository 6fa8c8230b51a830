package merge

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	graphql "github.com/hanpama/gqlcoalesce/internal/graphql"
	language "github.com/hanpama/gqlcoalesce/internal/language"
)

var testRemap = Table{
	"__r0_user":   {Member: 0, Key: "user"},
	"__r0_viewer": {Member: 0, Key: "viewer"},
	"__r1_me":     {Member: 1, Key: "me"},
}

func TestDispatch_RoutesDataByKey(t *testing.T) {
	res := &graphql.Result{Data: map[string]any{
		"__r0_user":   map[string]any{"name": "a"},
		"__r0_viewer": map[string]any{"id": "v"},
		"__r1_me":     map[string]any{"id": "m"},
		"__typename":  "Query",
	}}

	got := Dispatch(res, testRemap, 2)
	want := []*graphql.Result{
		{Data: map[string]any{"user": map[string]any{"name": "a"}, "viewer": map[string]any{"id": "v"}}},
		{Data: map[string]any{"me": map[string]any{"id": "m"}}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("dispatch mismatch (-want +got):\n%s", diff)
	}
}

func TestDispatch_RoutesErrorsByPathRoot(t *testing.T) {
	res := &graphql.Result{
		Data: map[string]any{"__r0_user": nil, "__r1_me": map[string]any{"id": "m"}},
		Errors: language.ErrorList{{
			Message:   "boom",
			Path:      language.Path{language.PathName("__r0_user"), language.PathName("friends"), language.PathIndex(2)},
			Locations: []language.Location{{Line: 3, Column: 5}},
		}},
	}

	got := Dispatch(res, testRemap, 2)
	require.Len(t, got[0].Errors, 1)
	require.Empty(t, got[1].Errors)
	e := got[0].Errors[0]
	require.Equal(t, "boom", e.Message)
	require.Equal(t, language.Path{language.PathName("user"), language.PathName("friends"), language.PathIndex(2)}, e.Path)
	require.Nil(t, e.Locations)

	require.Equal(t, language.PathName("__r0_user"), res.Errors[0].Path[0], "composite result is left untouched")
}

func TestDispatch_BroadcastsUnrootedErrors(t *testing.T) {
	res := &graphql.Result{
		Data: nil,
		Errors: language.ErrorList{
			{Message: "document invalid", Extensions: map[string]any{"code": "GRAPHQL_VALIDATION_FAILED"}},
			{Message: "unknown root", Path: language.Path{language.PathName("__r9_x")}},
			{Message: "index root", Path: language.Path{language.PathIndex(0)}},
		},
		Extensions: map[string]any{"cost": 3},
	}

	got := Dispatch(res, testRemap, 2)
	for i, r := range got {
		require.Nil(t, r.Data, "member %d", i)
		require.Len(t, r.Errors, 3, "member %d", i)
		require.Equal(t, "document invalid", r.Errors[0].Message)
		require.Equal(t, map[string]any{"cost": 3}, r.Extensions)
	}

	got[0].Errors[0].Extensions["code"] = "CHANGED"
	got[0].Extensions["cost"] = 0
	require.Equal(t, "GRAPHQL_VALIDATION_FAILED", got[1].Errors[0].Extensions["code"])
	require.Equal(t, 3, got[1].Extensions["cost"])
}

func TestDispatch_NullDataReachesEveryMember(t *testing.T) {
	res := &graphql.Result{
		Data: nil,
		Errors: language.ErrorList{{
			Message: "boom",
			Path:    language.Path{language.PathName("__r0_user")},
		}},
	}

	got := Dispatch(res, testRemap, 3)
	require.Len(t, got[0].Errors, 1)
	require.Equal(t, "boom", got[0].Errors[0].Message)
	require.Equal(t, language.Path{language.PathName("user")}, got[0].Errors[0].Path)

	for _, i := range []int{1, 2} {
		require.Nil(t, got[i].Data, "member %d", i)
		require.Len(t, got[i].Errors, 1, "member %d", i)
		require.Equal(t, NulledResultMessage, got[i].Errors[0].Message)
		require.Empty(t, got[i].Errors[0].Path, "sibling paths are not leaked")
	}

	got[1].Errors[0].Extensions["code"] = "CHANGED"
	require.Equal(t, "COALESCED_RESULT_NULL", got[2].Errors[0].Extensions["code"])
}

func TestDispatch_NullDataWithoutErrors(t *testing.T) {
	got := Dispatch(&graphql.Result{}, testRemap, 2)
	for i, r := range got {
		require.Nil(t, r.Data, "member %d", i)
		require.Len(t, r.Errors, 1, "member %d", i)
		require.Equal(t, NulledResultMessage, r.Errors[0].Message)
	}
}

func TestDispatch_MemberWithoutKeysGetsEmptyData(t *testing.T) {
	res := &graphql.Result{Data: map[string]any{"__r0_user": "u"}}

	got := Dispatch(res, testRemap, 3)
	require.Equal(t, map[string]any{"user": "u"}, got[0].Data)
	require.Equal(t, map[string]any{}, got[1].Data)
	require.Equal(t, map[string]any{}, got[2].Data)
}

func TestMergeDispatch_RoundTrip(t *testing.T) {
	a := mustRequest(t, `query($id: ID!) { user(id: $id) { name } }`, "", map[string]any{"id": "1"})
	b := mustRequest(t, `{ user: viewer { name } }`, "", nil)

	c, err := Merge([]*graphql.Request{a, b})
	require.NoError(t, err)

	// Answer exactly the keys the composite asked for.
	data := map[string]any{}
	for _, sel := range c.Request.Document.Operations[0].SelectionSet {
		f := sel.(*language.Field)
		data[f.Alias] = map[string]any{"name": f.Alias}
	}
	got := Dispatch(&graphql.Result{Data: data}, c.Remap, c.Size)

	require.Equal(t, map[string]any{"user": map[string]any{"name": "__r0_user"}}, got[0].Data)
	require.Equal(t, map[string]any{"user": map[string]any{"name": "__r1_user"}}, got[1].Data)
}
