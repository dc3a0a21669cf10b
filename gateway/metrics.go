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
	"github.com/botobag/artemis-zoo/store"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "zoo"

// Values of the "outcome" label on requests counter
const (
	// The operation executed without errors.
	outcomeSuccess = "success"

	// The operation executed but reported field errors.
	outcomeFieldError = "field_error"

	// The query failed validation.
	outcomeInvalid = "invalid"

	// The request was rejected before a query could be prepared.
	outcomeRejected = "rejected"

	// Panic was recovered while serving the request.
	outcomePanic = "panic"
)

// Value of the "operation" label when the type of operation is unknown
const operationUnknown = "unknown"

// metrics holds the Prometheus collectors reported by a Gateway.
type metrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	operationCache *prometheus.CounterVec
	animalLoads    prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer, s *store.Store) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "graphql_requests_total",
			Help:      "Number of GraphQL requests by operation type and outcome.",
		}, []string{"operation", "outcome"}),

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "graphql_request_duration_seconds",
			Help:      "Time taken to serve GraphQL requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),

		operationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operation_cache_lookups_total",
			Help:      "Lookups of prepared operations in cache by result.",
		}, []string{"result"}),

		animalLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "loader_animal_reads_total",
			Help:      "Number of ids read from the store by data loaders.",
		}),
	}

	collectors := []prometheus.Collector{
		m.requests,
		m.duration,
		m.operationCache,
		m.animalLoads,
	}

	if s != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "animals",
			Help:      "Number of animals in the store.",
		}, func() float64 {
			return float64(s.Len())
		}))
	}

	for _, collector := range collectors {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *metrics) observeBatch(ids []string) {
	m.animalLoads.Add(float64(len(ids)))
}
