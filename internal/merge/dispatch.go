package merge

import (
	graphql "github.com/hanpama/gqlcoalesce/internal/graphql"
	language "github.com/hanpama/gqlcoalesce/internal/language"
)

// Dispatch splits the result of a composite built for size members into one
// result per member, indexed like the members passed to Merge.
//
// Locations are dropped from routed errors since they point into the
// synthesized document, which no member has seen.
//
// A composite without data was nulled as a whole, so every member lost its
// data. Members that did not receive an error of their own get one carrying
// NulledResultMessage instead of the errors that belong to their siblings.
func Dispatch(res *graphql.Result, remap Table, size int) []*graphql.Result {
	out := make([]*graphql.Result, size)
	for i := range out {
		out[i] = &graphql.Result{}
		if res.Data != nil {
			out[i].Data = map[string]any{}
		}
		if res.Extensions != nil {
			out[i].Extensions = make(map[string]any, len(res.Extensions))
			for k, v := range res.Extensions {
				out[i].Extensions[k] = v
			}
		}
	}

	for key, value := range res.Data {
		t, ok := lookup(remap, key, size)
		if !ok {
			continue
		}
		out[t.Member].Data[t.Key] = value
	}

	for _, e := range res.Errors {
		if e == nil {
			continue
		}
		if t, ok := errorTarget(e, remap, size); ok {
			routed := graphql.CloneError(e)
			routed.Path[0] = language.PathName(t.Key)
			routed.Locations = nil
			out[t.Member].Errors = append(out[t.Member].Errors, routed)
			continue
		}
		for i := range out {
			copied := graphql.CloneError(e)
			copied.Locations = nil
			out[i].Errors = append(out[i].Errors, copied)
		}
	}

	if res.Data == nil {
		for i := range out {
			if len(out[i].Errors) == 0 {
				out[i].Errors = language.ErrorList{nulledError()}
			}
		}
	}
	return out
}

// NulledResultMessage is the error message given to members whose data was lost
// because the shared result came back as null.
const NulledResultMessage = "merge: shared result was null and carried no error for this request"

func nulledError() *language.Error {
	return &language.Error{
		Message:    NulledResultMessage,
		Extensions: map[string]any{"code": "COALESCED_RESULT_NULL"},
	}
}

func errorTarget(e *language.Error, remap Table, size int) (Target, bool) {
	if len(e.Path) == 0 {
		return Target{}, false
	}
	root, ok := e.Path[0].(language.PathName)
	if !ok {
		return Target{}, false
	}
	return lookup(remap, string(root), size)
}

func lookup(remap Table, key string, size int) (Target, bool) {
	t, ok := remap[key]
	if !ok || t.Member < 0 || t.Member >= size {
		return Target{}, false
	}
	return t, true
}
