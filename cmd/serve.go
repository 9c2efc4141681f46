// Copyright (c) 2025 Querypilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"querypilot/cli/internal/bridge"
	"querypilot/cli/internal/logging"
	"querypilot/cli/internal/metrics"
	"querypilot/cli/internal/pipeline"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
)

var (
	listenAddr  string
	metricsAddr string
	sessionTTL  time.Duration
)

// serveCmd exposes assistant sessions to remote clients over gRPC.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve assistant sessions over gRPC",
	Long: `The serve command listens for remote clients (for example 'querypilot ask --remote')
that start questions, answer clarification requests and fetch results. Each
client session keeps its own clarification channel and expires after
--session-ttl of inactivity. Prometheus metrics are exposed on --metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, r, err := newAssistant()
		if err != nil {
			return err
		}
		log := logger.With("component", "serve")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		metrics.BuildInfo.WithLabelValues(Version, Commit, Date).Set(1)
		if metricsAddr != "" {
			ml, err := net.Listen("tcp", metricsAddr)
			if err != nil {
				return fmt.Errorf("failed to listen for metrics: %w", err)
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			httpSrv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			log.Info("prometheus metrics server listening", "address", ml.Addr().String())
			go func() {
				if err := httpSrv.Serve(ml); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server failed", "error", err)
				}
			}()
			defer func() { _ = httpSrv.Close() }()
		}

		srv := bridge.NewServer(func() *pipeline.Session {
			return pipeline.NewSession(a, sessionOptions()...)
		}, sessionTTL, log)
		go srv.Start()
		defer srv.Stop()

		lis, err := net.Listen("tcp", listenAddr)
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
		g := grpc.NewServer()
		srv.Register(g)

		go func() {
			<-ctx.Done()
			log.Info("shutting down")
			g.GracefulStop()
		}()

		log.Info("serving assistant sessions",
			"address", lis.Addr().String(),
			"database", logging.Mask(r.DSN),
			"tables", a.Tables)
		if err := g.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":7070", "gRPC listen address")
	serveCmd.Flags().StringVar(&metricsAddr, "metrics", ":9090", "Prometheus metrics address (empty disables)")
	serveCmd.Flags().DurationVar(&sessionTTL, "session-ttl", bridge.DefaultSessionTTL, "How long an idle session is kept")
}
