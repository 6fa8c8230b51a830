package language

import (
	"bytes"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
)

// ParseQuery parses a query document without validating it against a schema.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadSchema parses and validates an SDL document.
func LoadSchema(name, source string) (*Schema, error) {
	sch, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return sch, nil
}

// LoadQuery parses source and validates it against sch.
func LoadQuery(sch *Schema, source string) (*QueryDocument, ErrorList) {
	return gqlparser.LoadQuery(sch, source)
}

// Print renders doc back to GraphQL source text.
func Print(doc *QueryDocument) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(doc)
	return buf.String()
}

// GetOperation selects the operation to execute: the named one, or the only one
// when name is empty.
func GetOperation(doc *QueryDocument, name string) *OperationDefinition {
	if doc == nil {
		return nil
	}
	if name == "" {
		if len(doc.Operations) == 1 {
			return doc.Operations[0]
		}
		return nil
	}
	for _, op := range doc.Operations {
		if op.Name == name {
			return op
		}
	}
	return nil
}
