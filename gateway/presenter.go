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
	"time"

	"github.com/botobag/artemis/graphql"
	"github.com/botobag/artemis/graphql/executor"
	"github.com/botobag/artemis/graphql/handler"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// errorLocation is the JSON form of graphql.ErrorLocation.
type errorLocation struct {
	Line   uint `json:"line"`
	Column uint `json:"column"`
}

type errorEntry struct {
	Message   string          `json:"message"`
	Locations []errorLocation `json:"locations,omitempty"`
}

// errorResponse is the body of responses for requests that failed before execution.
type errorResponse struct {
	Errors []errorEntry `json:"errors"`
}

// writeErrorResponse writes a GraphQL response that contains a single error with the given status.
func writeErrorResponse(w http.ResponseWriter, status int, message string, locations []graphql.ErrorLocation) {
	entry := errorEntry{
		Message: message,
	}
	for _, location := range locations {
		entry.Locations = append(entry.Locations, errorLocation{
			Line:   location.Line,
			Column: location.Column,
		})
	}

	body, err := json.Marshal(errorResponse{
		Errors: []errorEntry{entry},
	})
	if err != nil {
		http.Error(w, message, status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	w.Write(body)
	w.Write([]byte{'\n'})
}

// errorPresenter implements handler.ErrorPresenter. Errors in HTTP request or in query syntax are
// answered with 400. Validation errors are presented with resultPresenter like the errors occurred
// in execution.
type errorPresenter struct {
	gateway         *Gateway
	resultPresenter handler.ResultPresenter
}

// Write implements handler.ErrorPresenter.
func (presenter errorPresenter) Write(w http.ResponseWriter, err error) {
	switch err := err.(type) {
	case handler.ErrEmptyQuery:
		presenter.gateway.observe(err.Request, operationUnknown, outcomeRejected, err.Error())
		writeErrorResponse(w, http.StatusBadRequest, err.Error(), nil)

	case *handler.HTTPRequestParseError:
		presenter.gateway.observe(err.Request, operationUnknown, outcomeRejected, err.Error())
		writeErrorResponse(w, http.StatusBadRequest, err.Error(), nil)

	case *handler.ErrParseQuery:
		var locations []graphql.ErrorLocation
		if e, ok := err.Err.(*graphql.Error); ok {
			locations = e.Locations
		}
		presenter.gateway.observe(err.Request, operationUnknown, outcomeRejected, err.Error())
		writeErrorResponse(w, http.StatusBadRequest, err.Error(), locations)

	case *handler.ErrPrepare:
		presenter.resultPresenter.Write(w, err.Request, nil, &executor.ExecutionResult{
			Errors: err.Errs,
		})

	default:
		presenter.gateway.logger.Error("failed to build GraphQL request", zap.Error(err))
		presenter.gateway.metrics.requests.WithLabelValues(operationUnknown, outcomeRejected).Inc()
		writeErrorResponse(w, http.StatusInternalServerError, "internal server error", nil)
	}
}

// resultPresenter implements handler.ResultPresenter. It records the outcome of the request and
// writes result with handler.DefaultResultPresenter.
type resultPresenter struct {
	gateway *Gateway
}

// Write implements handler.ResultPresenter.
func (presenter resultPresenter) Write(
	w http.ResponseWriter,
	httpRequest *http.Request,
	graphqlRequest *handler.Request,
	result *executor.ExecutionResult) {

	var (
		operation = operationUnknown
		outcome   = outcomeSuccess
	)
	if graphqlRequest == nil {
		// Request that failed validation
		outcome = outcomeInvalid
	} else {
		operation = string(graphqlRequest.Operation.Type())
		if result.Errors.HaveOccurred() {
			outcome = outcomeFieldError
		}
	}

	messages := make([]string, len(result.Errors.Errors))
	for i, e := range result.Errors.Errors {
		messages[i] = e.Message
	}
	presenter.gateway.observe(httpRequest, operation, outcome, messages...)

	handler.DefaultResultPresenter{}.Write(w, httpRequest, graphqlRequest, result)
}

// observe reports a served request to metrics and log. errors contains messages of the errors
// included in the response.
func (g *Gateway) observe(r *http.Request, operation string, outcome string, errors ...string) {
	g.metrics.requests.WithLabelValues(operation, outcome).Inc()

	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("outcome", outcome),
	}

	if r != nil {
		if info := RequestInfoFromContext(r.Context()); info != nil {
			elapsed := time.Since(info.Start)
			g.metrics.duration.WithLabelValues(operation).Observe(elapsed.Seconds())
			fields = append(fields,
				zap.String("request_id", info.ID),
				zap.Duration("elapsed", elapsed))
		}
	}

	if len(errors) > 0 {
		fields = append(fields, zap.Strings("errors", errors))
	}

	switch outcome {
	case outcomeSuccess:
		g.logger.Debug("served GraphQL request", fields...)
	default:
		g.logger.Info("served GraphQL request with errors", fields...)
	}
}
