package merge

import (
	"errors"
	"fmt"
	"strconv"

	graphql "github.com/hanpama/gqlcoalesce/internal/graphql"
	language "github.com/hanpama/gqlcoalesce/internal/language"
)

var (
	// ErrNoMembers is returned when Merge is called with an empty list.
	ErrNoMembers = errors.New("merge: no members")
	// ErrOperationNotFound is returned when a member has no selectable operation.
	ErrOperationNotFound = errors.New("merge: operation not found")
	// ErrMixedOperations is returned when members differ in operation kind.
	ErrMixedOperations = errors.New("merge: members have different operation kinds")
	// ErrUnknownFragment is returned when a member spreads an undefined fragment.
	ErrUnknownFragment = errors.New("merge: unknown fragment")
)

// Target locates a composite response key inside one member's result.
type Target struct {
	Member int
	Key    string
}

// Table maps namespaced top-level keys to their owners.
type Table map[string]Target

// Composite is the merged form of a group of requests.
type Composite struct {
	Operation language.Operation
	Request   *graphql.Request
	Remap     Table
	Size      int
}

// Group is a set of request indices sharing one operation kind.
type Group struct {
	Operation language.Operation
	Members   []int
}

// Prefix returns the namespace of the member at position i.
func Prefix(i int) string {
	return "__r" + strconv.Itoa(i) + "_"
}

// GroupByOperation partitions reqs by operation kind. Groups appear in order of
// their first member and keep submission order. Requests without a selectable
// operation are left out.
func GroupByOperation(reqs []*graphql.Request) []Group {
	var groups []Group
	index := map[language.Operation]int{}
	for i, r := range reqs {
		op := r.Operation()
		if op == nil {
			continue
		}
		gi, ok := index[op.Operation]
		if !ok {
			gi = len(groups)
			index[op.Operation] = gi
			groups = append(groups, Group{Operation: op.Operation})
		}
		groups[gi].Members = append(groups[gi].Members, i)
	}
	return groups
}

// Merge builds the composite request for members, which must share one
// operation kind. Member i of the list gets Prefix(i).
func Merge(members []*graphql.Request) (*Composite, error) {
	if len(members) == 0 {
		return nil, ErrNoMembers
	}

	var kind language.Operation
	composite := &language.OperationDefinition{}
	var fragments language.FragmentDefinitionList
	variables := map[string]any{}
	remap := Table{}

	for i, m := range members {
		op := m.Operation()
		if op == nil {
			return nil, fmt.Errorf("%w: member %d (%q)", ErrOperationNotFound, i, m.OperationName)
		}
		if i == 0 {
			kind = op.Operation
		} else if op.Operation != kind {
			return nil, fmt.Errorf("%w: member %d is %s, expected %s", ErrMixedOperations, i, op.Operation, kind)
		}

		rw := newRewriter(Prefix(i), m.Document.Fragments)
		sel, err := rw.rootSelectionSet(op.SelectionSet, i, remap, nil)
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		composite.SelectionSet = append(composite.SelectionSet, sel...)

		for _, vd := range op.VariableDefinitions {
			composite.VariableDefinitions = append(composite.VariableDefinitions, rw.variableDefinition(vd))
			if v, ok := m.Variables[vd.Variable]; ok {
				variables[rw.prefix+vd.Variable] = v
			}
		}

		defs, err := rw.fragmentDefinitions()
		if err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		fragments = append(fragments, defs...)
	}
	composite.Operation = kind

	return &Composite{
		Operation: kind,
		Request: &graphql.Request{
			Document:  &language.QueryDocument{Operations: language.OperationList{composite}, Fragments: fragments},
			Variables: variables,
		},
		Remap: remap,
		Size:  len(members),
	}, nil
}

// rewriter copies one member's AST under its prefix.
type rewriter struct {
	prefix    string
	source    language.FragmentDefinitionList
	used      []string
	usedIndex map[string]struct{}
}

func newRewriter(prefix string, fragments language.FragmentDefinitionList) *rewriter {
	return &rewriter{prefix: prefix, source: fragments, usedIndex: map[string]struct{}{}}
}

func (rw *rewriter) rootSelectionSet(set language.SelectionSet, member int, remap Table, inlining []string) (language.SelectionSet, error) {
	out := make(language.SelectionSet, 0, len(set))
	for _, sel := range set {
		switch s := sel.(type) {
		case *language.Field:
			key := responseName(s)
			f := rw.field(s)
			f.Alias = rw.prefix + key
			remap[f.Alias] = Target{Member: member, Key: key}
			out = append(out, f)
		case *language.InlineFragment:
			inner, err := rw.rootSelectionSet(s.SelectionSet, member, remap, inlining)
			if err != nil {
				return nil, err
			}
			out = append(out, &language.InlineFragment{
				TypeCondition: s.TypeCondition,
				Directives:    rw.directives(s.Directives),
				SelectionSet:  inner,
				Position:      s.Position,
			})
		case *language.FragmentSpread:
			def := rw.source.ForName(s.Name)
			if def == nil {
				return nil, fmt.Errorf("%w %q", ErrUnknownFragment, s.Name)
			}
			for _, name := range inlining {
				if name == s.Name {
					return nil, fmt.Errorf("merge: fragment %q spreads itself", s.Name)
				}
			}
			inner, err := rw.rootSelectionSet(def.SelectionSet, member, remap, append(inlining, s.Name))
			if err != nil {
				return nil, err
			}
			out = append(out, &language.InlineFragment{
				TypeCondition: def.TypeCondition,
				Directives:    rw.directives(s.Directives),
				SelectionSet:  inner,
				Position:      s.Position,
			})
		}
	}
	return out, nil
}

func (rw *rewriter) selectionSet(set language.SelectionSet) language.SelectionSet {
	if set == nil {
		return nil
	}
	out := make(language.SelectionSet, 0, len(set))
	for _, sel := range set {
		switch s := sel.(type) {
		case *language.Field:
			out = append(out, rw.field(s))
		case *language.InlineFragment:
			out = append(out, &language.InlineFragment{
				TypeCondition: s.TypeCondition,
				Directives:    rw.directives(s.Directives),
				SelectionSet:  rw.selectionSet(s.SelectionSet),
				Position:      s.Position,
			})
		case *language.FragmentSpread:
			rw.use(s.Name)
			out = append(out, &language.FragmentSpread{
				Name:       rw.prefix + s.Name,
				Directives: rw.directives(s.Directives),
				Position:   s.Position,
			})
		}
	}
	return out
}

func (rw *rewriter) field(f *language.Field) *language.Field {
	return &language.Field{
		Alias:        f.Alias,
		Name:         f.Name,
		Arguments:    rw.arguments(f.Arguments),
		Directives:   rw.directives(f.Directives),
		SelectionSet: rw.selectionSet(f.SelectionSet),
		Position:     f.Position,
	}
}

func (rw *rewriter) arguments(args language.ArgumentList) language.ArgumentList {
	if args == nil {
		return nil
	}
	out := make(language.ArgumentList, len(args))
	for i, a := range args {
		out[i] = &language.Argument{Name: a.Name, Value: rw.value(a.Value), Position: a.Position}
	}
	return out
}

func (rw *rewriter) directives(dirs language.DirectiveList) language.DirectiveList {
	if dirs == nil {
		return nil
	}
	out := make(language.DirectiveList, len(dirs))
	for i, d := range dirs {
		out[i] = &language.Directive{
			Name:      d.Name,
			Arguments: rw.arguments(d.Arguments),
			Position:  d.Position,
			Location:  d.Location,
		}
	}
	return out
}

func (rw *rewriter) value(v *language.Value) *language.Value {
	if v == nil {
		return nil
	}
	out := &language.Value{Raw: v.Raw, Kind: v.Kind, Position: v.Position}
	if v.Kind == language.Variable {
		out.Raw = rw.prefix + v.Raw
	}
	if v.Children != nil {
		out.Children = make(language.ChildValueList, len(v.Children))
		for i, c := range v.Children {
			out.Children[i] = &language.ChildValue{Name: c.Name, Value: rw.value(c.Value), Position: c.Position}
		}
	}
	return out
}

func (rw *rewriter) variableDefinition(vd *language.VariableDefinition) *language.VariableDefinition {
	return &language.VariableDefinition{
		Variable:     rw.prefix + vd.Variable,
		Type:         vd.Type,
		DefaultValue: rw.value(vd.DefaultValue),
		Directives:   rw.directives(vd.Directives),
		Position:     vd.Position,
	}
}

func (rw *rewriter) use(name string) {
	if _, ok := rw.usedIndex[name]; ok {
		return
	}
	rw.usedIndex[name] = struct{}{}
	rw.used = append(rw.used, name)
}

// fragmentDefinitions copies every fragment reached from a nested spread, in
// order of first use. Copying may reach further fragments.
func (rw *rewriter) fragmentDefinitions() (language.FragmentDefinitionList, error) {
	var out language.FragmentDefinitionList
	for i := 0; i < len(rw.used); i++ {
		name := rw.used[i]
		def := rw.source.ForName(name)
		if def == nil {
			return nil, fmt.Errorf("%w %q", ErrUnknownFragment, name)
		}
		out = append(out, &language.FragmentDefinition{
			Name:          rw.prefix + def.Name,
			TypeCondition: def.TypeCondition,
			Directives:    rw.directives(def.Directives),
			SelectionSet:  rw.selectionSet(def.SelectionSet),
			Position:      def.Position,
		})
	}
	return out, nil
}

func responseName(f *language.Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}
