package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/classerp/go/internal/bus"
	"github.com/mcdev12/classerp/go/internal/controlapi"
	"github.com/mcdev12/classerp/go/internal/health"
)

func setupServer(config *Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	registerServices(mux, services)
	setupHealthCheck(mux, services)
	mux.Handle("GET /metrics", promhttp.HandlerFor(services.Registry, promhttp.HandlerOpts{}))

	handler := c.Handler(mux)

	// Setup HTTP/2 server
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", config.Server.Port),
		Handler:           h2c.NewHandler(handler, &http2.Server{}),
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderTimeoutMs) * time.Millisecond,
	}
}

func registerServices(mux *http.ServeMux, services *Services) {
	// Realtime channel
	services.Gateway.RegisterRoutes(mux)

	// REST control surface
	controlapi.NewHandler(services.Control).RegisterRoutes(mux)

	// RPC control surface
	mux.Handle(controlapi.NewSimulationServiceHandler(controlapi.NewService(services.Control)))
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	var opts []health.Option
	if services.Database != nil {
		opts = append(opts, health.WithDatabase(services.Database))
	}
	if services.Publisher != nil {
		opts = append(opts, health.WithBus(services.Publisher, bus.DefaultJetStreamConfig().MaxPending))
	}

	checker := health.NewChecker(
		func() int { return len(services.Engine.Running()) },
		func() int { return services.Gateway.Stats().TotalConnections },
		opts...,
	)
	mux.Handle("GET /health", checker)
}
