package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"agriflow/auth"
	"agriflow/cache"
	"agriflow/calendar"
	"agriflow/config"
	"agriflow/db"
	"agriflow/drone"
	"agriflow/logging"
	"agriflow/metrics"
	"agriflow/provider"
	"agriflow/servicerequest"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "agriflow",
		Short:         "Farm service booking API",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the YAML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newGridCmd(),
	)
	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateServe(); err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	pool, err := db.NewPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("bootstrap database pool: %w", err)
	}
	defer pool.Close()

	var providerCache *cache.JSON
	if cfg.Redis.Addr != "" {
		store, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			// The provider list still works from Postgres.
			logger.Warn("redis unavailable, provider cache disabled", zap.Error(err))
		} else {
			defer store.Close()
			providerCache = cache.NewJSON(store, cfg.Redis.Prefix, cfg.Redis.TTL)
		}
	}

	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.New()
	}

	requests := servicerequest.NewService(pool, nil).
		WithPricing(cfg.Pricing).
		WithLogger(logger.Named("servicerequest"))
	if reg != nil {
		requests = requests.WithMetrics(reg)
	}

	server := &Server{
		authService:     auth.NewService(auth.NewRepository(pool), cfg.Auth.JWTSecret).WithTokenTTL(cfg.Auth.TokenTTL),
		requestService:  requests,
		paymentService:  servicerequest.NewPaymentService(requests, nil),
		providerService: provider.NewService(provider.NewRepository(pool), providerCache, logger.Named("provider")),
		droneService:    drone.NewService(drone.NewRepository(pool)),
		metrics:         reg,
		metricsPath:     cfg.Metrics.Path,
		webhookSecret:   cfg.Auth.WebhookSecret,
		logger:          logger.Named("http"),
		clock:           time.Now,
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           server.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownGrace)
		defer cancel()
		logger.Info("http server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("migrate: database url is required")
			}
			pool, err := db.NewPool(cmd.Context(), cfg.Database.URL, 1)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.Migrate(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newGridCmd() *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "grid",
		Short: "Print the date picker grid for a month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			today := calendar.Today(time.Now)
			if year == 0 {
				year = today.Year
			}
			if month == 0 {
				month = int(today.Month)
			}
			cursor, err := calendar.NewCursor(year, month)
			if err != nil {
				return err
			}
			printGrid(cmd.OutOrStdout(), cursor)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year, defaults to the current year")
	cmd.Flags().IntVar(&month, "month", 0, "month 1-12, defaults to the current month")
	return cmd
}

func printGrid(w io.Writer, cursor calendar.Cursor) {
	fmt.Fprintln(w, cursor.Title())
	fmt.Fprintln(w, strings.Join(calendar.Weekdays[:], " "))
	for _, row := range calendar.MonthGrid(cursor).Rows() {
		cells := make([]string, len(row))
		for i, day := range row {
			if day == 0 {
				cells[i] = "   "
				continue
			}
			cells[i] = fmt.Sprintf("%3d", day)
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(cells, " "), " "))
	}
}
