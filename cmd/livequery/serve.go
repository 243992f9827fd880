package main

import (
	"context"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/fleetdm/livequery/server/campaigns"
	"github.com/fleetdm/livequery/server/config"
	"github.com/fleetdm/livequery/server/health"
	"github.com/fleetdm/livequery/server/pubsub"
	"github.com/fleetdm/livequery/server/service"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

func createServeCmd(configManager config.Manager) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Launch the livequery server",
		Long: `
Launch the livequery server

Use livequery serve to run the server that aggregates live query campaigns.
Frames are published over HTTP and streamed to consumers over websockets.
`,
		Run: func(cmd *cobra.Command, args []string) {
			config := configManager.LoadConfig()
			if err := config.Validate(); err != nil {
				initFatal(err, "validating config")
			}
			logger := initLogger(config.Logging, os.Stderr)

			frameStore, err := pubsub.NewFrameStore(config.PubSub, config.Redis)
			if err != nil {
				initFatal(err, "initializing frame store")
			}
			if err := frameStore.HealthCheck(); err != nil {
				initFatal(err, "checking frame store")
			}

			tracker := campaigns.NewTracker(kitlog.With(logger, "component", "tracker"))

			var svc service.CampaignService
			svc = service.NewService(tracker, frameStore, kitlog.With(logger, "component", "service"), config.Server, clock.C)

			fieldKeys := []string{"method", "error"}
			requestCount := kitprometheus.NewCounterFrom(prometheus.CounterOpts{
				Namespace: "livequery",
				Subsystem: "service",
				Name:      "request_count",
				Help:      "Number of requests received.",
			}, fieldKeys)
			requestLatency := kitprometheus.NewSummaryFrom(prometheus.SummaryOpts{
				Namespace: "livequery",
				Subsystem: "service",
				Name:      "request_latency_seconds",
				Help:      "Total duration of requests in seconds.",
			}, fieldKeys)

			svc = service.NewLoggingService(svc, kitlog.With(logger, "component", "service"))
			svc = service.NewMetricsService(svc, requestCount, requestLatency)

			handler := service.MakeHandler(svc, config.Server, kitlog.With(logger, "component", "http"), map[string]health.Checker{
				"pubsub": frameStore,
			})

			srv := &http.Server{
				Addr:              config.Server.Address,
				Handler:           handler,
				ReadHeaderTimeout: 10 * time.Second,
			}

			var g run.Group
			g.Add(func() error {
				if !config.Server.TLS {
					level.Info(logger).Log("transport", "http", "address", config.Server.Address, "msg", "listening")
					return srv.ListenAndServe()
				}
				level.Info(logger).Log("transport", "https", "address", config.Server.Address, "msg", "listening")
				return srv.ListenAndServeTLS(config.Server.Cert, config.Server.Key)
			}, func(error) {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := srv.Shutdown(ctx); err != nil {
					level.Info(logger).Log("msg", "shutting down http server", "err", err)
				}
			})
			g.Add(run.SignalHandler(context.Background(), os.Interrupt, syscall.SIGTERM))

			// block until an actor returns
			logger.Log("terminated", g.Run())
		},
	}

	return serveCmd
}
