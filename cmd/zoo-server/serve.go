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

package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/botobag/artemis-zoo/config"
	"github.com/botobag/artemis-zoo/gateway"
	"github.com/botobag/artemis-zoo/internal/logging"
	"github.com/botobag/artemis-zoo/schema"
	"github.com/botobag/artemis-zoo/store"
	"github.com/botobag/artemis/concurrent"
	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// Records inserted with --seed
var sampleAnimals = []store.Animal{
	{Name: "Fluffy", Race: "Abyssinian", Type: "Cat"},
	{Name: "Fluflu", Race: "Alaskan", Type: "Dog"},
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the GraphQL API over HTTP",
		Long: `
Serve the GraphQL API over HTTP until the process is interrupted. Settings are read from flags,
environment variables prefixed with ` + config.EnvPrefix + `_ and the configuration file given in
--config in order of precedence.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.NewViper(cmd.Flags())
			if err != nil {
				return err
			}
			c, err := config.Load(v)
			if err != nil {
				return err
			}

			logger, err := logging.New(c.LogLevel, c.LogFormat, zapcore.AddSync(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer logger.Sync()

			s, err := newServer(c, logger)
			if err != nil {
				return err
			}

			listener, err := net.Listen("tcp", c.Listen)
			if err != nil {
				return errors.Wrapf(err, "listen on %s", c.Listen)
			}

			return s.Run(cmd.Context(), listener)
		},
	}

	config.RegisterFlags(cmd.Flags())

	return cmd
}

// server wires the store, the schema and the gateway together for serving HTTP requests.
type server struct {
	config *config.Config
	logger *zap.Logger
	store  *store.Store

	// Runner for loading batches; nil if batches are loaded in the request goroutine.
	pool *concurrent.WorkerPoolExecutor

	gateway *gateway.Gateway
}

func newServer(c *config.Config, logger *zap.Logger) (*server, error) {
	var storeOpts []store.Option
	if c.Seed {
		storeOpts = append(storeOpts, store.WithSeed(sampleAnimals...))
	}
	s := &server{
		config: c,
		logger: logger,
		store:  store.New(storeOpts...),
	}

	animalSchema, err := schema.New(s.store)
	if err != nil {
		return nil, errors.Wrap(err, "build schema")
	}

	opts := []gateway.Option{
		gateway.GraphQLPath(c.GraphQLPath),
		gateway.MaxBodySize(uint(c.MaxBodySize)),
		gateway.OperationCacheSize(c.OperationCacheSize),
		gateway.Logger(logger),
		gateway.LoaderSource(s.store),
	}

	if c.GraphiQL {
		opts = append(opts, gateway.GraphiQLPath(c.GraphiQLPath))
	} else {
		opts = append(opts, gateway.DisableGraphiQL())
	}

	if len(c.MetricsPath) > 0 {
		registry := prometheus.NewRegistry()
		if err := registry.Register(collectors.NewGoCollector()); err != nil {
			return nil, errors.Wrap(err, "register Go collector")
		}
		if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, errors.Wrap(err, "register process collector")
		}
		opts = append(opts,
			gateway.MetricsPath(c.MetricsPath),
			gateway.Registerer(registry),
			gateway.Gatherer(registry))
	}

	if c.LoaderWorkers > 0 {
		s.pool, err = concurrent.NewWorkerPoolExecutor(concurrent.WorkerPoolExecutorConfig{
			MaxPoolSize:   uint32(c.LoaderWorkers),
			KeepAliveTime: time.Minute,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create loader workers")
		}
		opts = append(opts, gateway.LoaderRunner(s.pool))
	}

	s.gateway, err = gateway.New(animalSchema, opts...)
	if err != nil {
		s.shutdownPool()
		return nil, errors.Wrap(err, "create gateway")
	}

	return s, nil
}

// Run serves HTTP requests accepted from listener until ctx is done. In-flight requests are given
// config.ShutdownTimeout to complete.
func (s *server) Run(ctx context.Context, listener net.Listener) error {
	defer s.shutdownPool()

	httpServer := &http.Server{
		Handler:  s.gateway,
		ErrorLog: zap.NewStdLog(s.logger),
	}

	s.logger.Info("serving GraphQL API",
		zap.Stringer("address", listener.Addr()),
		zap.String("graphql_path", s.gateway.GraphQLPath()),
		zap.Bool("graphiql", s.config.GraphiQL),
		zap.String("max_body_size", humanize.Bytes(s.config.MaxBodySize)),
		zap.Int("operation_cache_size", s.config.OperationCacheSize),
		zap.Int("loader_workers", s.config.LoaderWorkers),
		zap.Int("animals", s.store.Len()))

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := httpServer.Serve(listener); err != http.ErrServerClosed {
			return errors.Wrap(err, "serve")
		}
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down", zap.Duration("timeout", s.config.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return errors.Wrap(httpServer.Shutdown(shutdownCtx), "shutdown")
	})

	if err := group.Wait(); err != nil {
		s.logger.Error("server stopped", zap.Error(err))
		return err
	}

	s.logger.Info("server stopped")
	return nil
}

func (s *server) shutdownPool() {
	if s.pool == nil {
		return
	}

	terminated, err := s.pool.Shutdown()
	if err != nil {
		s.logger.Warn("failed to shut down loader workers", zap.Error(err))
		return
	}

	select {
	case <-terminated:
	case <-time.After(s.config.ShutdownTimeout):
		s.logger.Warn("loader workers did not terminate in time")
	}
	s.pool = nil
}
