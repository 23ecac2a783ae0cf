// Package language wraps the gqlparser query language so the rest of the module
// deals with one set of names for documents, selections and their printed form.
package language

import (
	"bytes"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"
)

func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// MustParseQuery is ParseQuery for documents known at compile time.
func MustParseQuery(source string) *QueryDocument {
	doc, err := ParseQuery(source)
	if err != nil {
		panic(err)
	}
	return doc
}

func ParseSchema(name, source string) (*SchemaDocument, error) {
	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Print renders doc in canonical form. Two documents with the same printed
// form are the same query for bookkeeping purposes.
func Print(doc *QueryDocument) string {
	if doc == nil {
		return ""
	}
	var buf bytes.Buffer
	formatter.NewFormatter(&buf, formatter.WithIndent("  ")).FormatQueryDocument(doc)
	return buf.String()
}

// ResponseName is the key a field occupies in a result: its alias when one
// is set, otherwise its name.
func ResponseName(f *Field) string {
	if f.Alias != "" {
		return f.Alias
	}
	return f.Name
}
