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

package gateway

import (
	"net/http"

	"github.com/botobag/artemis-zoo/schema"
	"github.com/botobag/artemis-zoo/store"
	"github.com/botobag/artemis/concurrent"
	"github.com/botobag/artemis/graphql"
	"github.com/botobag/artemis/graphql/executor"
	"github.com/botobag/artemis/graphql/handler"
	"github.com/botobag/artemis/graphql/parser"
	"github.com/botobag/artemis/graphql/token"
)

// requestBuilder implements handler.RequestBuilder. It prepares operations like
// handler.DefaultRequestBuilder and additionally attaches a schema.LoaderManager and the
// RequestInfo to each execution.
type requestBuilder struct {
	parseOptions handler.ParseHTTPRequestOptions

	// Source of the data loaders; No LoaderManager is attached when it's nil.
	store *store.Store

	// Runner for loading batches; Batches are loaded inline if it's nil.
	runner concurrent.Executor

	// Observer of the batches
	observer schema.BatchObserver
}

var _ handler.RequestBuilder = (*requestBuilder)(nil)

// Build implements handler.RequestBuilder.
func (builder *requestBuilder) Build(r *http.Request, h handler.HTTPHandler) (*handler.Request, error) {
	// Parse query from request parameters.
	parsedReq, err := handler.ParseHTTPRequest(r, &builder.parseOptions)
	if err != nil {
		return nil, err
	}

	// Empty query is an error.
	if len(parsedReq.Query) == 0 {
		return nil, handler.ErrEmptyQuery{
			Request: r,
		}
	}

	// Cache is nil when it was disabled by handler.NopOperationCache.
	var (
		operation *executor.PreparedOperation
		cached    bool
		cache     = h.OperationCache()
		cacheKey  = operationCacheKey(parsedReq.Query, parsedReq.OperationName)
	)
	if cache != nil {
		operation, cached = cache.Get(cacheKey)
	}

	if !cached {
		document, err := parser.Parse(token.NewSource(parsedReq.Query))
		if err != nil {
			return nil, &handler.ErrParseQuery{
				Request:       r,
				ParsedRequest: parsedReq,
				Err:           err,
			}
		}

		var errs graphql.Errors
		operation, errs = executor.Prepare(
			h.Schema(),
			document,
			executor.OperationName(parsedReq.OperationName),
		)
		if errs.HaveOccurred() {
			return nil, &handler.ErrPrepare{
				Request:       r,
				ParsedRequest: parsedReq,
				Document:      document,
				Errs:          errs,
			}
		}

		if cache != nil {
			cache.Add(cacheKey, operation)
		}
	}

	executeOpts := []executor.ExecuteOption{
		executor.VariableValues(parsedReq.Variables),
	}

	if info := RequestInfoFromContext(r.Context()); info != nil {
		executeOpts = append(executeOpts, executor.AppContext(info))
	}

	if builder.store != nil {
		var opts []schema.LoaderOption
		if builder.observer != nil {
			opts = append(opts, schema.WithBatchObserver(builder.observer))
		}
		manager, err := schema.NewLoaderManager(builder.store, builder.runner, opts...)
		if err != nil {
			return nil, err
		}
		executeOpts = append(executeOpts, executor.DataLoaderManager(manager))
	}

	return &handler.Request{
		Ctx:         r.Context(),
		Operation:   operation,
		ExecuteOpts: executeOpts,
	}, nil
}

// operationCacheKey returns the key of the prepared operation selected by operationName from the
// document in query. A document may define several operations so the name is part of the key.
func operationCacheKey(query string, operationName string) string {
	if len(operationName) == 0 {
		return query
	}
	return query + "\x00" + operationName
}
