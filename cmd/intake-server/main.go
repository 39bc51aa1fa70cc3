package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/neuroreach/intake/internal/config"
	"github.com/neuroreach/intake/internal/domain/eligibility"
	"github.com/neuroreach/intake/internal/domain/intake"
	"github.com/neuroreach/intake/internal/domain/lead"
	"github.com/neuroreach/intake/internal/domain/scoring"
	"github.com/neuroreach/intake/internal/platform/auth"
	"github.com/neuroreach/intake/internal/platform/db"
	"github.com/neuroreach/intake/internal/platform/events"
	"github.com/neuroreach/intake/internal/platform/hipaa"
	"github.com/neuroreach/intake/internal/platform/middleware"
	"github.com/neuroreach/intake/internal/platform/notification"
	"github.com/neuroreach/intake/internal/platform/websocket"
	"github.com/neuroreach/intake/migrations"
)

const publicBodyLimit = "256K"

func main() {
	rootCmd := &cobra.Command{
		Use:           "intake-server",
		Short:         "Lead intake and scoring API server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(scoreCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the intake API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrationFiles(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := context.Background()
			m, closeDB, err := newMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closeDB()

			count, err := m.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			ctx := context.Background()
			m, closeDB, err := newMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closeDB()

			statuses, err := m.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

func newMigrator(ctx context.Context, dir string) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrationFiles(dir)), pool.Close, nil
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

// scoreInput is the document the score command reads.
type scoreInput struct {
	Source  string         `json:"source"`
	Payload map[string]any `json:"payload"`
}

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score [file]",
		Short: "Map and score a submission offline",
		Long: "Reads {\"source\": ..., \"payload\": {...}} from a file or stdin and prints " +
			"the canonical intake, score breakdown and submitter confirmation. Nothing is stored.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			mapper, engine, err := buildScorer(cfg, nil)
			if err != nil {
				return err
			}
			return runScore(r, cmd.OutOrStdout(), mapper, engine)
		},
	}
	return cmd
}

func runScore(r io.Reader, w io.Writer, mapper *intake.Mapper, engine *scoring.Engine) error {
	var in scoreInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("read submission: %w", err)
	}
	source, ok := intake.ParseSource(in.Source)
	if !ok {
		return fmt.Errorf("unknown source %q", in.Source)
	}
	mapped, err := mapper.Map(source, in.Payload)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(lead.NewPreview(engine, mapped))
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a coordinator dashboard token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := auth.IssueToken(jwtConfig(cfg), subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Coordinator user ID")
	cmd.Flags().StringSlice("role", []string{auth.RoleCoordinator}, "Roles to grant")
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

func jwtConfig(cfg *config.Config) auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		SigningKey: []byte(cfg.AuthSigningKey),
	}
}

// buildScorer loads the vocabulary and service area. A nil logger skips the
// startup log line.
func buildScorer(cfg *config.Config, logger *zerolog.Logger) (*intake.Mapper, *scoring.Engine, error) {
	vocab, err := intake.DefaultVocabulary()
	if cfg.VocabularyFile != "" {
		vocab, err = intake.LoadVocabulary(cfg.VocabularyFile)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load vocabulary: %w", err)
	}
	if logger != nil {
		logger.Info().
			Str("vocabulary", cfg.VocabularyFile).
			Strs("service_area", cfg.ServiceAreaPrefixes).
			Msg("scoring configured")
	}
	mapper := intake.NewMapper(intake.NewNormalizer(vocab), intake.SystemClock)
	engine := scoring.NewEngine(eligibility.NewPolicy(cfg.ServiceAreaPrefixes))
	return mapper, engine, nil
}

// newEcho builds the HTTP surface. Submission routes are public and rate
// limited; dashboard routes require a coordinator token, or run as a dev
// admin when no signing key is set in development.
func newEcho(cfg *config.Config, svc *lead.Service, hub *websocket.Hub, pinger db.Pinger, logger zerolog.Logger) *echo.Echo {
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
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pinger))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 || rateLimitCfg.BurstSize <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	public := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg), middleware.BodyLimit(publicBodyLimit))

	authMW := auth.JWTMiddleware(jwtConfig(cfg))
	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set: dashboard routes run as a development admin")
		authMW = auth.DevAuthMiddleware()
	}
	api := e.Group("/api/v1", authMW, middleware.BodyLimit("1M"))

	lead.NewHandler(svc).RegisterRoutes(public, api)
	api.GET("/leads/stream", websocket.NewHandler(hub, cfg.CORSOrigins).Stream, auth.RequireRole(auth.RoleCoordinator))
	return e
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	vault, err := hipaa.NewContactVault(cfg.PHIEncryptionKey, cfg.IsDev(), logger)
	if err != nil {
		return err
	}
	mapper, engine, err := buildScorer(cfg, &logger)
	if err != nil {
		return err
	}

	// Scored leads go to the dashboard feed and, when configured, Kafka.
	hub := websocket.NewHub(logger)
	publisher := events.MultiPublisher{hub}
	if cfg.KafkaEnabled() {
		publisher = append(publisher,
			events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaScoredTopic), logger))
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaScoredTopic).Msg("publishing scored leads")
	}
	defer publisher.Close()

	svc := lead.NewService(
		lead.NewLeadRepoPG(pool),
		mapper,
		engine,
		vault,
		publisher,
		notification.NewDispatcher(nil, nil, nil, logger),
		lead.WithDedupWindow(cfg.DedupWindow),
		lead.WithLogger(logger),
	)

	// Queue consumer for channels that push submissions to Kafka.
	consumerDone := make(chan struct{})
	if cfg.KafkaEnabled() {
		consumer := events.NewConsumer(
			events.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaSubmissionsTopic, cfg.KafkaGroupID),
			svc.HandleSubmission,
			logger,
		)
		go func() {
			defer close(consumerDone)
			defer consumer.Close()
			if err := consumer.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("submission consumer stopped")
			}
		}()
	} else {
		close(consumerDone)
	}

	e := newEcho(cfg, svc, hub, pool, logger)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	<-consumerDone
	return nil
}
