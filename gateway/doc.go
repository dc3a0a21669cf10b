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

// Package gateway serves a GraphQL schema over HTTP.
//
// It is built on the Artemis HTTP handler with its own request builder, presenters and operation
// cache. A Gateway routes three endpoints on its own mux:
//
//	/graphql   GraphQL queries in GET or POST requests
//	/graphiql  GraphiQL explorer (optional)
//	metrics    Prometheus metrics (disabled unless a path is given)
//
// Every request is tagged with a request id which is echoed in the X-Request-Id header and
// available to resolvers through RequestInfo in the AppContext.
package gateway
