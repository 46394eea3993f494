package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ybsk00/hospital-ops-suit-sub002/internal/config"
	"github.com/ybsk00/hospital-ops-suit-sub002/internal/domain/schedimport"
	"github.com/ybsk00/hospital-ops-suit-sub002/internal/platform/auth"
	"github.com/ybsk00/hospital-ops-suit-sub002/internal/platform/db"
	"github.com/ybsk00/hospital-ops-suit-sub002/internal/platform/lock"
	"github.com/ybsk00/hospital-ops-suit-sub002/internal/platform/middleware"
	"github.com/ybsk00/hospital-ops-suit-sub002/internal/platform/sheet"
	"github.com/ybsk00/hospital-ops-suit-sub002/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "schedule-import",
		Short:        "Import legacy schedule sheets into the booking tables",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.IsDev() {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// targetFlags are the sheet options shared by parse, import and batch.
type targetFlags struct {
	convention string
	sheet      string
	year       int
	month      int
}

func (f *targetFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.convention, "convention", "auto", "sheet layout: auto, rf, manual or outpatient")
	cmd.Flags().StringVar(&f.sheet, "sheet", "", "worksheet name for .xlsx files (default first sheet)")
	cmd.Flags().IntVar(&f.year, "year", 0, "target year; manual-therapy sheets may omit it")
	cmd.Flags().IntVar(&f.month, "month", 0, "target month (1-12)")
	_ = cmd.MarkFlagRequired("month")
}

func (f *targetFlags) options() (sheet.Convention, sheet.Target, error) {
	conv, err := sheet.ParseConvention(f.convention)
	if err != nil {
		return "", sheet.Target{}, err
	}
	target := sheet.Target{Year: f.year, Month: time.Month(f.month)}
	if err := target.Validate(); err != nil {
		return "", sheet.Target{}, err
	}
	return conv, target, nil
}

func (f *targetFlags) request(name string, content []byte) (*schedimport.ImportRequest, error) {
	conv, target, err := f.options()
	if err != nil {
		return nil, err
	}
	return &schedimport.ImportRequest{
		FileName:   filepath.Base(name),
		Content:    content,
		Sheet:      f.sheet,
		Convention: conv,
		Target:     target,
	}, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// app is the database-backed wiring shared by serve, import and batch.
type app struct {
	svc    *schedimport.Service
	checks []db.Check
	close  func()
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, err
	}
	logger.Info().Msg("connected to database")

	a := &app{checks: []db.Check{db.PoolCheck(pool)}, close: pool.Close}

	var locker lock.KeyLocker = lock.NewMemoryLocker()
	if cfg.RedisURL != "" {
		rdb, err := lock.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, err
		}
		redisLocker := lock.NewRedisLocker(rdb, cfg.LockTTL, cfg.LockPrefix, logger)
		locker = redisLocker
		a.checks = append(a.checks, db.Check{Name: "lock", Ping: redisLocker.Ping})
		a.close = func() {
			rdb.Close()
			pool.Close()
		}
		logger.Info().Msg("using redis slot locks")
	} else {
		logger.Warn().Msg("REDIS_URL not set, slot locks are local to this process")
	}

	bookings := schedimport.NewBookingRepoPG(pool)
	sink := schedimport.NewSink(bookings, schedimport.NewPatientRepoPG(pool), locker)
	inTx := func(ctx context.Context, fn func(ctx context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	a.svc = schedimport.NewService(
		schedimport.NewImportRepoPG(pool),
		bookings,
		schedimport.NewResourceRepoPG(pool),
		sink,
		inTx,
		logger,
	)
	return a, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the import API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cfg, newLogger(cfg))
		},
	}
}

func newServer(cfg *config.Config, logger zerolog.Logger, svc *schedimport.Service, checks []db.Check) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit("1M", cfg.MaxUploadSize))
	e.Use(middleware.RequestTimeout(30*time.Second, middleware.SkipUploads))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	e.GET("/health", db.HealthHandler(checks...))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
	schedimport.NewHandler(svc).RegisterRoutes(apiV1)

	return e
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.close()

	e := newServer(cfg, logger, a.svc, a.checks)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func parseCmd() *cobra.Command {
	var (
		flags      targetFlags
		file       string
		therapists map[string]string
	)
	cmd := &cobra.Command{
		Use:   "parse",
		Short: "Extract slots from a sheet and print them as JSON without writing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			req, err := flags.request(file, content)
			if err != nil {
				return err
			}
			rows, err := sheet.LoadRows(req.FileName, req.Content, req.Sheet)
			if err != nil {
				return err
			}
			res, err := sheet.Parse(rows, sheet.Options{
				Convention: req.Convention,
				Target:     req.Target,
				Therapists: sheet.TherapistMap(therapists),
			})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&file, "file", "", "sheet file (.csv, .tsv, .txt or .xlsx)")
	cmd.Flags().StringToStringVar(&therapists, "therapist", nil, "manual-therapy roster entry as name=id (repeatable)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func importCmd() *cobra.Command {
	var (
		flags targetFlags
		file  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import one sheet file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			content, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			req, err := flags.request(file, content)
			if err != nil {
				return err
			}
			req.Force = force

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.svc.Import(ctx, req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&file, "file", "", "sheet file (.csv, .tsv, .txt or .xlsx)")
	cmd.Flags().BoolVar(&force, "force", false, "import again even if this file already succeeded")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func batchCmd() *cobra.Command {
	var (
		flags targetFlags
		input string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Import every sheet in the input directory and file it under archive or error",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := newLogger(cfg)
			if input == "" {
				input = cfg.BatchInputDir
			}
			if _, _, err := flags.options(); err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()

			runner := &batchRunner{
				importer:   a.svc,
				flags:      flags,
				force:      force,
				archiveDir: cfg.BatchArchiveDir,
				errorDir:   cfg.BatchErrorDir,
				workers:    cfg.BatchWorkers,
				receipt:    receiptMode(cfg.BatchReceiptMode),
				stableWait: cfg.BatchStableWait,
				logger:     logger,
			}
			summary, err := runner.run(ctx, input)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), summary); err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d files failed", summary.Failed, summary.Files)
			}
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&input, "input", "", "directory to scan (default BATCH_INPUT_DIR)")
	cmd.Flags().BoolVar(&force, "force", false, "import again files that already succeeded")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.RequireDatabase(); err != nil {
			return err
		}
		ctx := cmd.Context()
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, migrations.FS))
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	})

	return cmd
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
