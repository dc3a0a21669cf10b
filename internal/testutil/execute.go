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

package testutil

import (
	"context"

	"github.com/botobag/artemis/graphql"
	"github.com/botobag/artemis/graphql/executor"
	"github.com/botobag/artemis/graphql/parser"
	"github.com/botobag/artemis/graphql/token"
)

// Execute parses query, prepares it against schema and executes it with the given options. Syntax
// and validation errors are returned in the Errors of the result like a GraphQL server would do.
func Execute(schema graphql.Schema, query string, opts ...executor.ExecuteOption) *executor.ExecutionResult {
	document, err := parser.Parse(token.NewSource(query))
	if err != nil {
		return &executor.ExecutionResult{
			Errors: graphql.ErrorsOf(graphql.NewError(err.Error(), err)),
		}
	}

	operation, errs := executor.Prepare(schema, document)
	if errs.HaveOccurred() {
		return &executor.ExecutionResult{
			Errors: errs,
		}
	}

	return operation.Execute(context.Background(), opts...)
}

// ExecuteJSON is like Execute but returns the result serialized in JSON.
func ExecuteJSON(schema graphql.Schema, query string, opts ...executor.ExecuteOption) string {
	result := Execute(schema, query, opts...)
	data, err := result.MarshalJSON()
	if err != nil {
		panic(err)
	}
	return string(data)
}
