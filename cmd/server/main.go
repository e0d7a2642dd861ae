package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"github.com/cartridge/prioreplay/internal/admin"
	"github.com/cartridge/prioreplay/internal/config"
	"github.com/cartridge/prioreplay/internal/metrics"
	"github.com/cartridge/prioreplay/internal/per"
	"github.com/cartridge/prioreplay/internal/replaypb"
	"github.com/cartridge/prioreplay/internal/service"
	"github.com/cartridge/prioreplay/internal/storage"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "replay",
	Short: "Cartridge prioritized replay service",
	Long: `Replay service holding a fixed-capacity prioritized experience buffer.

Actors store transitions over gRPC; learners sample prioritized batches with
importance-sampling weights and send observed errors back as new priorities.`,
	RunE: runServer,
}

// flag name -> config key
var flagKeys = map[string]string{
	"grpc-addr":      "grpc_addr",
	"admin-addr":     "admin_addr",
	"capacity":       "capacity",
	"alpha":          "alpha",
	"beta":           "beta",
	"beta-increment": "beta_increment",
	"epsilon":        "epsilon",
	"abs-error-cap":  "abs_error_cap",
	"seed":           "seed",
	"log-level":      "log_level",
}

func init() {
	cfg = config.Default()

	flags := rootCmd.Flags()

	// Listeners
	flags.String("grpc-addr", cfg.GRPCAddr, "gRPC listen address")
	flags.String("admin-addr", cfg.AdminAddr, "Admin HTTP listen address (empty disables)")

	// Buffer settings
	flags.Int("capacity", cfg.Capacity, "Maximum number of transitions to store")
	flags.Float64("alpha", cfg.Alpha, "Priority exponent (0 = uniform)")
	flags.Float64("beta", cfg.Beta, "Initial importance-sampling exponent")
	flags.Float64("beta-increment", cfg.BetaIncrement, "Beta annealing step per sample call")
	flags.Float64("epsilon", cfg.Epsilon, "Floor added to every error")
	flags.Float64("abs-error-cap", cfg.AbsErrorCap, "Upper clip on error magnitude")
	flags.Int64("seed", cfg.Seed, "Sampling seed (0 seeds from the clock)")

	// Logging
	flags.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")

	// Bind flags to viper for environment variable support
	for flag, key := range flagKeys {
		if err := viper.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
	viper.SetEnvPrefix("REPLAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func main() {
	// A missing .env file is fine
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := zerolog.New(os.Stdout).Level(cfg.Level()).With().Timestamp().Str("service", "replay").Logger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	backend, err := storage.NewMemoryBackend(cfg.Capacity, collector, logger,
		per.WithAlpha(cfg.Alpha),
		per.WithBeta(cfg.Beta),
		per.WithBetaIncrement(cfg.BetaIncrement),
		per.WithEpsilon(cfg.Epsilon),
		per.WithAbsErrorCap(cfg.AbsErrorCap),
		per.WithRand(rand.New(rand.NewSource(seed))),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing backend")
		}
	}()

	server := grpc.NewServer(grpc.UnaryInterceptor(service.LoggingInterceptor(logger)))
	replaypb.RegisterReplayServer(server, service.NewReplayService(backend, collector, logger))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info().
			Str("addr", lis.Addr().String()).
			Int("capacity", cfg.Capacity).
			Float64("alpha", cfg.Alpha).
			Float64("beta", cfg.Beta).
			Msg("replay gRPC server listening")
		if err := server.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc serve: %w", err)
		}
	}()

	var adminSrv *http.Server
	if cfg.AdminAddr != "" {
		adminSrv = &http.Server{
			Addr:              cfg.AdminAddr,
			Handler:           admin.NewServer(backend, reg, logger).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.AdminAddr).Msg("admin HTTP server listening")
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("admin serve: %w", err)
			}
		}()
	}

	// Wait for interrupt signal or a server failure
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case <-sig:
		logger.Info().Msg("shutting down gracefully")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("server failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if adminSrv != nil {
		if err := adminSrv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("admin shutdown failed")
		}
	}

	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-ctx.Done():
		logger.Warn().Msg("shutdown timeout exceeded, forcing stop")
		server.Stop()
	case <-stopped:
		logger.Info().Msg("server stopped gracefully")
	}

	return runErr
}
