/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package schema

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/botobag/artemis/graphql"
)

// Print renders object types reachable from the root operation types of s in schema definition
// language. Root types come first followed by the other object types in lexical order. Fields and
// arguments are sorted by name.
func Print(s graphql.Schema) string {
	var buf strings.Builder
	FPrint(&buf, s)
	return buf.String()
}

// FPrint writes the output of Print to out.
func FPrint(out io.StringWriter, s graphql.Schema) {
	p := &printer{
		StringWriter: out,
		visited:      map[string]bool{},
	}

	var roots []graphql.Object
	for _, root := range []graphql.Object{s.Query(), s.Mutation(), s.Subscription()} {
		if root != nil {
			roots = append(roots, root)
			p.visited[root.Name()] = true
		}
	}

	// Collect object types referred by fields of root types.
	var others []graphql.Object
	queue := append([]graphql.Object{}, roots...)
	for len(queue) > 0 {
		object := queue[0]
		queue = queue[1:]
		for _, field := range object.Fields() {
			if fieldObject, ok := namedType(field.Type()).(graphql.Object); ok && !p.visited[fieldObject.Name()] {
				p.visited[fieldObject.Name()] = true
				others = append(others, fieldObject)
				queue = append(queue, fieldObject)
			}
		}
	}
	sort.Slice(others, func(i, j int) bool {
		return others[i].Name() < others[j].Name()
	})

	for i, object := range append(roots, others...) {
		if i > 0 {
			p.WriteString("\n")
		}
		p.printObject(object)
	}
}

type printer struct {
	io.StringWriter
	visited map[string]bool
}

func (p *printer) printDescription(description string, indent string) {
	if len(description) == 0 {
		return
	}
	p.WriteString(fmt.Sprintf("%s\"\"\"%s\"\"\"\n", indent, description))
}

func (p *printer) printObject(object graphql.Object) {
	p.printDescription(object.Description(), "")
	p.WriteString("type ")
	p.WriteString(object.Name())
	p.WriteString(" {\n")

	fields := object.Fields()
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		field := fields[name]
		p.printDescription(field.Description(), "  ")
		p.WriteString("  ")
		p.WriteString(name)
		p.printArgs(field.Args())
		p.WriteString(": ")
		p.WriteString(typeString(field.Type()))
		p.WriteString("\n")
	}

	p.WriteString("}\n")
}

func (p *printer) printArgs(args []graphql.Argument) {
	if len(args) == 0 {
		return
	}

	sorted := make([]*graphql.Argument, len(args))
	for i := range args {
		sorted[i] = &args[i]
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name() < sorted[j].Name()
	})

	p.WriteString("(")
	for i, arg := range sorted {
		if i > 0 {
			p.WriteString(", ")
		}
		p.WriteString(arg.Name())
		p.WriteString(": ")
		p.WriteString(typeString(arg.Type()))
	}
	p.WriteString(")")
}

// typeString returns the type reference notation of t such as "[Animal]" and "ID!".
func typeString(t graphql.Type) string {
	switch t := t.(type) {
	case graphql.NonNull:
		return typeString(t.InnerType()) + "!"
	case graphql.List:
		return "[" + typeString(t.ElementType()) + "]"
	case graphql.TypeWithName:
		return t.Name()
	}
	return fmt.Sprintf("%v", t)
}

// namedType unwraps t from List and NonNull.
func namedType(t graphql.Type) graphql.Type {
	for {
		switch wrapped := t.(type) {
		case graphql.NonNull:
			t = wrapped.InnerType()
		case graphql.List:
			t = wrapped.ElementType()
		default:
			return t
		}
	}
}
