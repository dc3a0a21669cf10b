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
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/botobag/artemis-zoo/store"
	"github.com/botobag/artemis/concurrent"
	"github.com/botobag/artemis/graphql"
	"github.com/botobag/artemis/graphql/handler"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Defaults of the Options
const (
	DefaultGraphQLPath        = "/graphql"
	DefaultGraphiQLPath       = "/graphiql"
	DefaultMaxBodySize        = 10 << 20 // 10MB
	DefaultOperationCacheSize = 512
)

var errMissingGatherer = errors.New("artemis-zoo/gateway: metrics path is set but the registerer " +
	"doesn't gather metrics; Specify one with Gatherer")

// config contains settings to create a Gateway.
type config struct {
	graphqlPath        string
	graphiqlPath       string
	disableGraphiQL    bool
	metricsPath        string
	maxBodySize        uint
	operationCacheSize int

	logger     *zap.Logger
	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	store  *store.Store
	runner concurrent.Executor
}

// Option configures a Gateway.
type Option func(config *config)

// GraphQLPath sets the path of the GraphQL endpoint.
func GraphQLPath(path string) Option {
	return func(config *config) {
		config.graphqlPath = path
	}
}

// GraphiQLPath sets the path that serves GraphiQL.
func GraphiQLPath(path string) Option {
	return func(config *config) {
		config.graphiqlPath = path
	}
}

// DisableGraphiQL stops serving GraphiQL.
func DisableGraphiQL() Option {
	return func(config *config) {
		config.disableGraphiQL = true
	}
}

// MetricsPath sets the path that exposes metrics in Prometheus text format. Metrics are not exposed
// when it is empty (the default).
func MetricsPath(path string) Option {
	return func(config *config) {
		config.metricsPath = path
	}
}

// MaxBodySize sets the maximum number of bytes to be read from request body.
func MaxBodySize(size uint) Option {
	return func(config *config) {
		config.maxBodySize = size
	}
}

// OperationCacheSize sets the number of prepared operations to be cached. 0 disables the cache.
func OperationCacheSize(size int) Option {
	return func(config *config) {
		config.operationCacheSize = size
	}
}

// Logger sets the logger for requests.
func Logger(logger *zap.Logger) Option {
	return func(config *config) {
		config.logger = logger
	}
}

// Registerer sets the registry to register metrics. A new registry is created if not given.
func Registerer(registerer prometheus.Registerer) Option {
	return func(config *config) {
		config.registerer = registerer
	}
}

// Gatherer sets the source of the metrics exposed at MetricsPath. It defaults to the Registerer
// if that implements prometheus.Gatherer.
func Gatherer(gatherer prometheus.Gatherer) Option {
	return func(config *config) {
		config.gatherer = gatherer
	}
}

// LoaderSource enables cached lookups of animals within a request by attaching a
// schema.LoaderManager reading from s to every execution. It also reports the number of animals
// in s to metrics.
func LoaderSource(s *store.Store) Option {
	return func(config *config) {
		config.store = s
	}
}

// LoaderRunner sets the executor for running loads from the store. Loads run inline in the goroutine
// executing the query if not set.
func LoaderRunner(runner concurrent.Executor) Option {
	return func(config *config) {
		config.runner = runner
	}
}

// Gateway is a http.Handler that serves a GraphQL schema over HTTP together with the GraphiQL
// explorer and metrics.
type Gateway struct {
	config  config
	logger  *zap.Logger
	metrics *metrics

	// nil if cache is disabled
	operationCache *OperationCache

	handler http.Handler
}

var _ http.Handler = (*Gateway)(nil)

// New creates a Gateway that serves queries against s.
func New(s graphql.Schema, opts ...Option) (*Gateway, error) {
	config := config{
		graphqlPath:        DefaultGraphQLPath,
		graphiqlPath:       DefaultGraphiQLPath,
		maxBodySize:        DefaultMaxBodySize,
		operationCacheSize: DefaultOperationCacheSize,
	}
	for _, opt := range opts {
		opt(&config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	if config.logger == nil {
		config.logger = zap.NewNop()
	}

	if config.registerer == nil {
		registry := prometheus.NewRegistry()
		config.registerer = registry
		if config.gatherer == nil {
			config.gatherer = registry
		}
	} else if config.gatherer == nil {
		if gatherer, ok := config.registerer.(prometheus.Gatherer); ok {
			config.gatherer = gatherer
		}
	}
	if len(config.metricsPath) > 0 && config.gatherer == nil {
		return nil, errMissingGatherer
	}

	metrics, err := newMetrics(config.registerer, config.store)
	if err != nil {
		return nil, err
	}

	g := &Gateway{
		config:  config,
		logger:  config.logger,
		metrics: metrics,
	}

	var operationCache handler.OperationCache = handler.NopOperationCache{}
	if config.operationCacheSize > 0 {
		g.operationCache, err = NewOperationCache(config.operationCacheSize, metrics.operationCache)
		if err != nil {
			return nil, err
		}
		operationCache = g.operationCache
	}

	results := resultPresenter{
		gateway: g,
	}
	graphqlHandler, err := handler.New(s,
		handler.OverrideOperationCache(operationCache),
		handler.OverrideRequestBuilder(&requestBuilder{
			parseOptions: handler.ParseHTTPRequestOptions{
				MaxBodySize: config.maxBodySize,
			},
			store:    config.store,
			runner:   config.runner,
			observer: metrics.observeBatch,
		}),
		handler.OverrideResultPresenter(results),
		handler.OverrideErrorPresenter(errorPresenter{
			gateway:         g,
			resultPresenter: results,
		}),
	)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle(config.graphqlPath, g.allowMethods(graphqlHandler, http.MethodGet, http.MethodPost))

	if !config.disableGraphiQL {
		graphiql, err := newGraphiQLHandler(config.graphqlPath)
		if err != nil {
			return nil, err
		}
		mux.Handle(config.graphiqlPath, graphiql)
	}

	if len(config.metricsPath) > 0 {
		mux.Handle(config.metricsPath, promhttp.HandlerFor(config.gatherer, promhttp.HandlerOpts{
			ErrorLog: zap.NewStdLog(config.logger),
		}))
	}

	g.handler = withRequestInfo(g.recoverPanic(mux))

	return g, nil
}

// validate checks paths in config.
func (config *config) validate() error {
	type namedPath struct {
		name string
		path string
	}

	paths := []namedPath{
		{"GraphQL", config.graphqlPath},
	}
	if !config.disableGraphiQL {
		paths = append(paths, namedPath{"GraphiQL", config.graphiqlPath})
	}
	if len(config.metricsPath) > 0 {
		paths = append(paths, namedPath{"metrics", config.metricsPath})
	}

	seen := map[string]string{}
	for _, p := range paths {
		if !strings.HasPrefix(p.path, "/") {
			return fmt.Errorf(`artemis-zoo/gateway: %s path "%s" must start with "/"`, p.name, p.path)
		}
		if other, exists := seen[p.path]; exists {
			return fmt.Errorf(`artemis-zoo/gateway: %s path "%s" is already used by %s`, p.name, p.path, other)
		}
		seen[p.path] = p.name
	}

	if config.operationCacheSize < 0 {
		return fmt.Errorf("artemis-zoo/gateway: invalid operation cache size %d", config.operationCacheSize)
	}

	return nil
}

// GraphQLPath returns the path of the GraphQL endpoint.
func (g *Gateway) GraphQLPath() string {
	return g.config.graphqlPath
}

// OperationCache returns the cache of prepared operations or nil if it is disabled.
func (g *Gateway) OperationCache() *OperationCache {
	return g.operationCache
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.handler.ServeHTTP(w, r)
}

// allowMethods answers 405 to the requests whose method is not one of the given methods.
func (g *Gateway) allowMethods(next http.Handler, methods ...string) http.Handler {
	allow := strings.Join(methods, ", ")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, method := range methods {
			if r.Method == method {
				next.ServeHTTP(w, r)
				return
			}
		}
		g.observe(r, operationUnknown, outcomeRejected)
		w.Header().Set("Allow", allow)
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})
}

// recoverPanic recovers a panic raised while serving a request. The panic is logged with stack trace
// and the request is answered with 500.
func (g *Gateway) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				g.logger.Error("panic while serving request",
					zap.String("request_id", RequestID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", err),
					zap.Stack("stack"))
				g.metrics.requests.WithLabelValues(operationUnknown, outcomePanic).Inc()
				writeErrorResponse(w, http.StatusInternalServerError, "internal server error", nil)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
