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

package gateway_test

import (
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	"github.com/botobag/artemis-zoo/gateway"
	"github.com/botobag/artemis-zoo/schema"
	"github.com/botobag/artemis-zoo/store"
	"github.com/botobag/artemis/graphql"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// response is a GraphQL response decoded from the body.
type response struct {
	Data   map[string]interface{} `json:"data"`
	Errors []struct {
		Message    string                   `json:"message"`
		Locations  []map[string]interface{} `json:"locations"`
		Path       []interface{}            `json:"path"`
		Extensions map[string]interface{}   `json:"extensions"`
	} `json:"errors"`
}

func decodeResponse(recorder *httptest.ResponseRecorder) *response {
	var resp response
	Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).Should(Succeed())
	return &resp
}

func serve(handler http.Handler, r *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, r)
	return recorder
}

func getQuery(path string, query string) *http.Request {
	return httptest.NewRequest("GET", path+"?"+url.Values{"query": {query}}.Encode(), nil)
}

func postJSON(path string, body string) *http.Request {
	r := httptest.NewRequest("POST", path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

var _ = Describe("Gateway", func() {
	var (
		s  *store.Store
		gw *gateway.Gateway
	)

	BeforeEach(func() {
		s = store.New(store.WithSeed(
			store.Animal{Name: "Fluffy", Race: "Abyssinian", Type: "Cat"},
			store.Animal{Name: "Fluflu", Race: "Alaskan", Type: "Dog"},
		))
	})

	newGateway := func(opts ...gateway.Option) *gateway.Gateway {
		g, err := gateway.New(schema.MustNew(s), append([]gateway.Option{gateway.LoaderSource(s)}, opts...)...)
		Expect(err).ShouldNot(HaveOccurred())
		return g
	}

	Describe("GraphQL endpoint", func() {
		BeforeEach(func() {
			gw = newGateway()
		})

		It("serves query in GET request", func() {
			recorder := serve(gw, getQuery("/graphql", "{ getAnimals { id name } }"))
			Expect(recorder.Code).Should(Equal(http.StatusOK))
			Expect(recorder.Header().Get("Content-Type")).Should(Equal("application/json"))
			Expect(recorder.Body.String()).Should(MatchJSON(`{
				"data": {
					"getAnimals": [
						{ "id": "1", "name": "Fluffy" },
						{ "id": "2", "name": "Fluflu" }
					]
				}
			}`))
		})

		It("serves mutation in POST request with variables", func() {
			recorder := serve(gw, postJSON("/graphql", `{
				"query": "mutation Create($name: String!) { createAnimal(name: $name, race: \"Boxer\", type: \"Dog\") { id name race type } }",
				"operationName": "Create",
				"variables": { "name": "Rex" }
			}`))
			Expect(recorder.Code).Should(Equal(http.StatusOK))
			Expect(recorder.Body.String()).Should(MatchJSON(`{
				"data": {
					"createAnimal": { "id": "3", "name": "Rex", "race": "Boxer", "type": "Dog" }
				}
			}`))
			Expect(s.Len()).Should(Equal(3))
		})

		It("accepts query in application/graphql body", func() {
			r := httptest.NewRequest("POST", "/graphql", strings.NewReader(`{ getAnimal(id: "2") { name } }`))
			r.Header.Set("Content-Type", "application/graphql")
			recorder := serve(gw, r)
			Expect(recorder.Code).Should(Equal(http.StatusOK))
			Expect(recorder.Body.String()).Should(MatchJSON(`{"data": {"getAnimal": {"name": "Fluflu"}}}`))
		})

		It("accepts query in form body", func() {
			form := url.Values{"query": {`mutation { deleteAnimal(name: "Fluffy") { id } }`}}
			r := httptest.NewRequest("POST", "/graphql", strings.NewReader(form.Encode()))
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			recorder := serve(gw, r)
			Expect(recorder.Code).Should(Equal(http.StatusOK))
			Expect(recorder.Body.String()).Should(MatchJSON(`{"data": {"deleteAnimal": [{"id": "2"}]}}`))
		})

		It("returns field errors with extensions", func() {
			recorder := serve(gw, postJSON("/graphql",
				`{"query": "mutation { modifyAnimal(name: \"DoesNotExist\", race: \"x\") { id } }"}`))
			Expect(recorder.Code).Should(Equal(http.StatusOK))

			resp := decodeResponse(recorder)
			Expect(resp.Data).Should(HaveKeyWithValue("modifyAnimal", BeNil()))
			Expect(resp.Errors).Should(HaveLen(1))
			Expect(resp.Errors[0].Message).Should(Equal(`animal "DoesNotExist" not found`))
			Expect(resp.Errors[0].Path).Should(Equal([]interface{}{"modifyAnimal"}))
			Expect(resp.Errors[0].Extensions).Should(Equal(map[string]interface{}{"code": "NOT_FOUND"}))
		})

		It("answers 400 to an empty query", func() {
			recorder := serve(gw, httptest.NewRequest("GET", "/graphql", nil))
			Expect(recorder.Code).Should(Equal(http.StatusBadRequest))
			Expect(recorder.Body.String()).Should(MatchJSON(`{"errors": [{"message": "empty query"}]}`))
		})

		It("answers 400 to a malformed request body", func() {
			recorder := serve(gw, postJSON("/graphql", `{"query": `))
			Expect(recorder.Code).Should(Equal(http.StatusBadRequest))
			Expect(decodeResponse(recorder).Errors).Should(HaveLen(1))
		})

		It("answers 400 to a request body that is too large", func() {
			gw, err := gateway.New(schema.MustNew(s), gateway.MaxBodySize(16))
			Expect(err).ShouldNot(HaveOccurred())

			recorder := serve(gw, postJSON("/graphql", `{"query": "{ getAnimals { id name race type } }"}`))
			Expect(recorder.Code).Should(Equal(http.StatusBadRequest))
			Expect(recorder.Body.String()).Should(MatchJSON(`{"errors": [{"message": "request body is too large"}]}`))
		})

		It("answers 400 to a query with syntax error", func() {
			recorder := serve(gw, getQuery("/graphql", "{ getAnimals { id "))
			Expect(recorder.Code).Should(Equal(http.StatusBadRequest))

			resp := decodeResponse(recorder)
			Expect(resp.Data).Should(BeNil())
			Expect(resp.Errors).Should(HaveLen(1))
			Expect(resp.Errors[0].Message).Should(HavePrefix("invalid query: Syntax Error"))
			Expect(resp.Errors[0].Locations).Should(HaveLen(1))
		})

		It("reports validation errors without data", func() {
			recorder := serve(gw, getQuery("/graphql", "{ getZebras { id } }"))
			Expect(recorder.Code).Should(Equal(http.StatusOK))

			resp := decodeResponse(recorder)
			Expect(resp.Data).Should(BeNil())
			Expect(resp.Errors).Should(HaveLen(1))
			Expect(resp.Errors[0].Message).Should(HavePrefix(`Cannot query field "getZebras" on type "Query".`))
		})

		It("answers 405 to unsupported methods", func() {
			recorder := serve(gw, httptest.NewRequest("PUT", "/graphql", strings.NewReader(`{}`)))
			Expect(recorder.Code).Should(Equal(http.StatusMethodNotAllowed))
			Expect(recorder.Header().Get("Allow")).Should(Equal("GET, POST"))
			Expect(recorder.Body.String()).Should(MatchJSON(`{"errors": [{"message": "method not allowed"}]}`))
		})

		It("answers 404 to unknown paths", func() {
			recorder := serve(gw, getQuery("/graphql/extra", "{ getAnimals { id } }"))
			Expect(recorder.Code).Should(Equal(http.StatusNotFound))
		})

		It("serves the endpoint at a custom path", func() {
			gw = newGateway(gateway.GraphQLPath("/api"))
			Expect(gw.GraphQLPath()).Should(Equal("/api"))

			Expect(serve(gw, getQuery("/api", "{ getAnimal(id: \"1\") { id } }")).Code).Should(Equal(http.StatusOK))
			Expect(serve(gw, getQuery("/graphql", "{ getAnimal(id: \"1\") { id } }")).Code).Should(Equal(http.StatusNotFound))
		})

		It("handles concurrent creates over HTTP", func() {
			server := ghttp.NewServer()
			defer server.Close()
			server.RouteToHandler("POST", "/graphql", gw.ServeHTTP)

			const N = 32
			var (
				wg    sync.WaitGroup
				mutex sync.Mutex
				ids   = map[string]bool{}
			)
			for i := 0; i < N; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()

					body := fmt.Sprintf(`{"query": "mutation { createAnimal(name: \"Animal%d\", race: \"Race\", type: \"Type\") { id } }"}`, i)
					resp, err := http.Post(server.URL()+"/graphql", "application/json", strings.NewReader(body))
					Expect(err).ShouldNot(HaveOccurred())
					defer resp.Body.Close()
					Expect(resp.StatusCode).Should(Equal(http.StatusOK))

					data, err := ioutil.ReadAll(resp.Body)
					Expect(err).ShouldNot(HaveOccurred())

					var result struct {
						Data struct {
							CreateAnimal struct {
								ID string `json:"id"`
							} `json:"createAnimal"`
						} `json:"data"`
					}
					Expect(json.Unmarshal(data, &result)).Should(Succeed())

					mutex.Lock()
					ids[result.Data.CreateAnimal.ID] = true
					mutex.Unlock()
				}(i)
			}
			wg.Wait()

			Expect(ids).Should(HaveLen(N))
			Expect(ids).ShouldNot(HaveKey("1"))
			Expect(ids).ShouldNot(HaveKey("2"))
			Expect(s.Len()).Should(Equal(N + 2))
		})
	})

	Describe("request id", func() {
		var requestIDSchema graphql.Schema

		BeforeEach(func() {
			requestIDSchema = graphql.MustNewSchema(&graphql.SchemaConfig{
				Query: graphql.MustNewObject(&graphql.ObjectConfig{
					Name: "Query",
					Fields: graphql.Fields{
						"requestId": {
							Type: graphql.T(graphql.String()),
							Resolver: graphql.FieldResolverFunc(func(ctx context.Context, source interface{}, info graphql.ResolveInfo) (interface{}, error) {
								return info.AppContext().(*gateway.RequestInfo).ID, nil
							}),
						},
						"contextRequestId": {
							Type: graphql.T(graphql.String()),
							Resolver: graphql.FieldResolverFunc(func(ctx context.Context, source interface{}, info graphql.ResolveInfo) (interface{}, error) {
								return gateway.RequestID(ctx), nil
							}),
						},
					},
				}),
			})

			var err error
			gw, err = gateway.New(requestIDSchema)
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("generates a request id", func() {
			recorder := serve(gw, getQuery("/graphql", "{ requestId contextRequestId }"))
			Expect(recorder.Code).Should(Equal(http.StatusOK))

			id := recorder.Header().Get(gateway.RequestIDHeader)
			_, err := uuid.Parse(id)
			Expect(err).ShouldNot(HaveOccurred())
			Expect(recorder.Body.String()).Should(MatchJSON(fmt.Sprintf(`{
				"data": { "requestId": "%s", "contextRequestId": "%s" }
			}`, id, id)))
		})

		It("reuses the request id given by client", func() {
			r := getQuery("/graphql", "{ requestId }")
			r.Header.Set(gateway.RequestIDHeader, "my-request")
			recorder := serve(gw, r)
			Expect(recorder.Header().Get(gateway.RequestIDHeader)).Should(Equal("my-request"))
			Expect(recorder.Body.String()).Should(MatchJSON(`{"data": {"requestId": "my-request"}}`))
		})

		It("replaces an overlong request id", func() {
			r := getQuery("/graphql", "{ requestId }")
			r.Header.Set(gateway.RequestIDHeader, strings.Repeat("x", 129))
			recorder := serve(gw, r)
			_, err := uuid.Parse(recorder.Header().Get(gateway.RequestIDHeader))
			Expect(err).ShouldNot(HaveOccurred())
		})
	})

	Describe("panic recovery", func() {
		var (
			logs  *observer.ObservedLogs
			calls int
		)

		BeforeEach(func() {
			calls = 0
			panicSchema := graphql.MustNewSchema(&graphql.SchemaConfig{
				Query: graphql.MustNewObject(&graphql.ObjectConfig{
					Name: "Query",
					Fields: graphql.Fields{
						"boom": {
							Type: graphql.T(graphql.String()),
							Resolver: graphql.FieldResolverFunc(func(ctx context.Context, source interface{}, info graphql.ResolveInfo) (interface{}, error) {
								calls++
								if calls == 1 {
									panic("resolver exploded")
								}
								return "fine", nil
							}),
						},
					},
				}),
			})

			var core zapcore.Core
			core, logs = observer.New(zapcore.InfoLevel)

			var err error
			gw, err = gateway.New(panicSchema, gateway.Logger(zap.New(core)))
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("answers 500 and keeps serving", func() {
			r := getQuery("/graphql", "{ boom }")
			r.Header.Set(gateway.RequestIDHeader, "panicking-request")
			recorder := serve(gw, r)
			Expect(recorder.Code).Should(Equal(http.StatusInternalServerError))
			Expect(recorder.Body.String()).Should(MatchJSON(`{"errors": [{"message": "internal server error"}]}`))

			entries := logs.FilterMessage("panic while serving request").All()
			Expect(entries).Should(HaveLen(1))
			Expect(entries[0].ContextMap()).Should(HaveKeyWithValue("request_id", "panicking-request"))
			Expect(entries[0].ContextMap()).Should(HaveKeyWithValue("panic", "resolver exploded"))

			recorder = serve(gw, getQuery("/graphql", "{ boom }"))
			Expect(recorder.Code).Should(Equal(http.StatusOK))
			Expect(recorder.Body.String()).Should(MatchJSON(`{"data": {"boom": "fine"}}`))
		})
	})

	Describe("GraphiQL", func() {
		It("serves the explorer pointed at the GraphQL endpoint", func() {
			gw = newGateway(gateway.GraphQLPath("/api"))

			recorder := serve(gw, httptest.NewRequest("GET", "/graphiql", nil))
			Expect(recorder.Code).Should(Equal(http.StatusOK))
			Expect(recorder.Header().Get("Content-Type")).Should(HavePrefix("text/html"))
			Expect(recorder.Body.String()).Should(ContainSubstring("GraphiQL"))
			Expect(recorder.Body.String()).Should(ContainSubstring(`api`))

			recorder = serve(gw, httptest.NewRequest("HEAD", "/graphiql", nil))
			Expect(recorder.Code).Should(Equal(http.StatusOK))
			Expect(recorder.Body.Len()).Should(Equal(0))
		})

		It("answers 405 to methods other than GET and HEAD", func() {
			gw = newGateway()
			recorder := serve(gw, httptest.NewRequest("POST", "/graphiql", nil))
			Expect(recorder.Code).Should(Equal(http.StatusMethodNotAllowed))
			Expect(recorder.Header().Get("Allow")).Should(Equal("GET, HEAD"))
		})

		It("can be disabled", func() {
			gw = newGateway(gateway.DisableGraphiQL())
			Expect(serve(gw, httptest.NewRequest("GET", "/graphiql", nil)).Code).Should(Equal(http.StatusNotFound))
		})

		It("is served at a custom path", func() {
			gw = newGateway(gateway.GraphiQLPath("/explorer"))
			Expect(serve(gw, httptest.NewRequest("GET", "/explorer", nil)).Code).Should(Equal(http.StatusOK))
		})
	})

	Describe("metrics", func() {
		metricsBody := func() string {
			recorder := serve(gw, httptest.NewRequest("GET", "/metrics", nil))
			Expect(recorder.Code).Should(Equal(http.StatusOK))
			return recorder.Body.String()
		}

		It("is not served by default", func() {
			gw = newGateway()
			Expect(serve(gw, httptest.NewRequest("GET", "/metrics", nil)).Code).Should(Equal(http.StatusNotFound))
		})

		It("counts requests by operation and outcome", func() {
			gw = newGateway(gateway.MetricsPath("/metrics"))

			serve(gw, getQuery("/graphql", "{ getAnimals { id } }"))
			serve(gw, postJSON("/graphql", `{"query": "mutation { modifyAnimal(name: \"Nobody\", race: \"x\") { id } }"}`))
			serve(gw, getQuery("/graphql", "{ getZebras { id } }"))
			serve(gw, httptest.NewRequest("GET", "/graphql", nil))

			body := metricsBody()
			Expect(body).Should(ContainSubstring(`zoo_graphql_requests_total{operation="query",outcome="success"} 1`))
			Expect(body).Should(ContainSubstring(`zoo_graphql_requests_total{operation="mutation",outcome="field_error"} 1`))
			Expect(body).Should(ContainSubstring(`zoo_graphql_requests_total{operation="unknown",outcome="invalid"} 1`))
			Expect(body).Should(ContainSubstring(`zoo_graphql_requests_total{operation="unknown",outcome="rejected"} 1`))
			Expect(body).Should(ContainSubstring(`zoo_graphql_request_duration_seconds_count{operation="query"} 1`))
			Expect(body).Should(ContainSubstring("zoo_animals 2"))
		})

		It("reads each id looked up by getAnimal once per request", func() {
			gw = newGateway(gateway.MetricsPath("/metrics"))

			query := `{
				a: getAnimal(id: "1") { name }
				b: getAnimal(id: "2") { name }
				c: getAnimal(id: "3") { name }
				d: getAnimal(id: "1") { race }
				e: getAnimal(id: "3") { race }
			}`
			recorder := serve(gw, getQuery("/graphql", query))
			Expect(recorder.Body.String()).Should(MatchJSON(`{
				"data": {
					"a": { "name": "Fluffy" },
					"b": { "name": "Fluflu" },
					"c": null,
					"d": { "race": "Abyssinian" },
					"e": null
				}
			}`))
			Expect(metricsBody()).Should(ContainSubstring("zoo_loader_animal_reads_total 3"))

			// Cached ids don't outlive the request.
			serve(gw, getQuery("/graphql", query))
			Expect(metricsBody()).Should(ContainSubstring("zoo_loader_animal_reads_total 6"))
		})

		It("exposes metrics of a given registry", func() {
			registry := prometheus.NewRegistry()
			gw = newGateway(gateway.Registerer(registry), gateway.MetricsPath("/metrics"))
			serve(gw, getQuery("/graphql", "{ getAnimals { id } }"))

			families, err := registry.Gather()
			Expect(err).ShouldNot(HaveOccurred())

			names := []string{}
			for _, family := range families {
				names = append(names, family.GetName())
			}
			Expect(names).Should(ContainElement("zoo_graphql_requests_total"))
			Expect(metricsBody()).Should(ContainSubstring("zoo_graphql_requests_total"))
		})
	})

	Describe("operation cache", func() {
		It("reuses prepared operations", func() {
			gw = newGateway(gateway.MetricsPath("/metrics"))
			Expect(gw.OperationCache()).ShouldNot(BeNil())

			for i := 0; i < 3; i++ {
				Expect(serve(gw, getQuery("/graphql", "{ getAnimals { id } }")).Code).Should(Equal(http.StatusOK))
			}
			Expect(gw.OperationCache().Len()).Should(Equal(1))

			body := serve(gw, httptest.NewRequest("GET", "/metrics", nil)).Body.String()
			Expect(body).Should(ContainSubstring(`zoo_operation_cache_lookups_total{result="hit"} 2`))
			Expect(body).Should(ContainSubstring(`zoo_operation_cache_lookups_total{result="miss"} 1`))
		})

		It("prepares the operation selected by operationName", func() {
			gw = newGateway()

			document := `
				query A { getAnimals { name } }
				query B { getAnimal(id: "1") { race } }
				mutation C { createAnimal(name: "Rex", race: "Boxer", type: "Dog") { id } }
			`
			post := func(operationName string) string {
				body, err := json.Marshal(map[string]interface{}{
					"query":         document,
					"operationName": operationName,
				})
				Expect(err).ShouldNot(HaveOccurred())
				recorder := serve(gw, postJSON("/graphql", string(body)))
				Expect(recorder.Code).Should(Equal(http.StatusOK))
				return recorder.Body.String()
			}

			Expect(post("A")).Should(MatchJSON(`{
				"data": { "getAnimals": [{ "name": "Fluffy" }, { "name": "Fluflu" }] }
			}`))
			Expect(post("B")).Should(MatchJSON(`{"data": {"getAnimal": {"race": "Abyssinian"}}}`))
			Expect(s.Len()).Should(Equal(2))

			Expect(post("C")).Should(MatchJSON(`{"data": {"createAnimal": {"id": "3"}}}`))
			Expect(post("B")).Should(MatchJSON(`{"data": {"getAnimal": {"race": "Abyssinian"}}}`))
			Expect(s.Len()).Should(Equal(3))

			Expect(gw.OperationCache().Len()).Should(Equal(3))
		})

		It("doesn't cache invalid queries", func() {
			gw = newGateway()
			serve(gw, getQuery("/graphql", "{ getZebras { id } }"))
			Expect(gw.OperationCache().Len()).Should(Equal(0))
		})

		It("can be disabled", func() {
			gw = newGateway(gateway.OperationCacheSize(0))
			Expect(gw.OperationCache()).Should(BeNil())

			for i := 0; i < 2; i++ {
				recorder := serve(gw, getQuery("/graphql", `{ getAnimal(id: "1") { name } }`))
				Expect(recorder.Body.String()).Should(MatchJSON(`{"data": {"getAnimal": {"name": "Fluffy"}}}`))
			}
		})
	})

	Describe("New", func() {
		It("rejects a path that doesn't start with a slash", func() {
			_, err := gateway.New(schema.MustNew(s), gateway.GraphQLPath("graphql"))
			Expect(err).Should(MatchError(`artemis-zoo/gateway: GraphQL path "graphql" must start with "/"`))
		})

		It("rejects paths that collide", func() {
			_, err := gateway.New(schema.MustNew(s), gateway.MetricsPath("/graphiql"))
			Expect(err).Should(MatchError(`artemis-zoo/gateway: metrics path "/graphiql" is already used by GraphiQL`))
		})

		It("allows GraphiQL path to collide when it is disabled", func() {
			_, err := gateway.New(schema.MustNew(s),
				gateway.DisableGraphiQL(),
				gateway.GraphiQLPath("/graphql"))
			Expect(err).ShouldNot(HaveOccurred())
		})

		It("rejects a negative operation cache size", func() {
			_, err := gateway.New(schema.MustNew(s), gateway.OperationCacheSize(-1))
			Expect(err).Should(HaveOccurred())
		})

		It("requires a schema", func() {
			_, err := gateway.New(nil)
			Expect(err).Should(HaveOccurred())
		})
	})
})
