package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-access-service/internal/answerkey"
	"quiz-access-service/internal/app"
	"quiz-access-service/internal/config"
	"quiz-access-service/internal/domain"
	"quiz-access-service/internal/generator"
	"quiz-access-service/internal/infra/memory"
	"quiz-access-service/internal/infra/postgres"
	"quiz-access-service/internal/infra/rabbitmq"
	infraredis "quiz-access-service/internal/infra/redis"
	transport "quiz-access-service/internal/transport/http"
	"quiz-access-service/internal/validation"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)
	return logger
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret not configured")
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var (
		store  app.Store
		loader app.ContentLoader
		demo   bool
	)
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
		db := postgres.Open(cfg.Postgres.URL)
		defer db.Close()
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = postgres.NewStore(db)
		loader = postgres.NewContentLoader(pool)
	} else {
		mem := memory.NewStore()
		store, loader, demo = mem, mem, true
		logger.Warn("postgres url not configured, using in-memory store")
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	var (
		content  app.ContentRepository
		activity app.ActivityTracker
	)
	if redisClient != nil {
		content = infraredis.NewContentCache(redisClient, loader, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
		activity = infraredis.NewActivityTracker(redisClient)
	} else {
		content = memory.NewContentCache(loader, config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute))
		activity = memory.NewActivityTracker()
	}

	var publisher app.EventPublisher = app.NopPublisher{}
	if cfg.RabbitMQ.URL != "" {
		queue := cfg.RabbitMQ.Queue
		if queue == "" {
			queue = "quiz.submissions"
		}
		p, err := rabbitmq.NewPublisher(cfg.RabbitMQ.URL, queue)
		if err != nil {
			return err
		}
		defer p.Close()
		publisher = p
	}

	validator := validation.New()
	aiTimeout := config.TTLDuration(cfg.AI.Timeout, 15*time.Second)
	var gen app.Generator = generator.Disabled{}
	if cfg.AI.Endpoint != "" {
		gen = generator.New(generator.Config{Endpoint: cfg.AI.Endpoint, Timeout: aiTimeout}, validator)
	}

	var sealer *answerkey.Sealer
	if cfg.AI.KeySecret != "" {
		sealer, err = answerkey.NewSealer(cfg.AI.KeySecret, config.TTLDuration(cfg.AI.KeyTTL, 3*time.Hour))
		if err != nil {
			return err
		}
	} else {
		logger.Warn("ai.keySecret not configured, per-viewer question sets are disabled")
	}

	service := app.NewQuizService(app.Deps{
		Store:      store,
		Content:    content,
		Activity:   activity,
		Feeds:      memory.NewFeedStore(),
		Publisher:  publisher,
		Provider:   app.NewProvider(gen, sealer, answerkey.NewShuffler(), aiTimeout, logger),
		Validator:  validator,
		Logger:     logger,
		MaxRetries: cfg.Attempts.MaxRetries,
	})
	auth := transport.NewAuthenticator(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour))

	if demo {
		if err := seedDemo(ctx, service, auth, logger); err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, auth, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting quiz service", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("failed to start server", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemo creates a sample quiz in the in-memory store and logs tokens to try it with.
func seedDemo(ctx context.Context, service *app.QuizService, auth *transport.Authenticator, logger *slog.Logger) error {
	teacher := domain.Viewer{ID: "demo-teacher", Role: domain.RoleTeacher}
	student := domain.Viewer{ID: "demo-student", Role: domain.RoleStudent, Groups: []string{"demo"}}
	correct, trueIdx := 1, 0
	content, err := service.CreateQuiz(ctx, teacher, app.QuizDraft{
		Title:      "Demo quiz",
		Duration:   30,
		Active:     true,
		Mode:       domain.ModeManual,
		Assignment: domain.Assignment{Audience: "demo"},
		Questions: []domain.QuestionSpec{
			{Type: domain.TypeSingleChoice, Text: "What is 2 + 2?", Marks: 2, Options: []string{"3", "4", "5", "22"}, CorrectOption: &correct},
			{Type: domain.TypeTrueFalse, Text: "Water boils at 100 C at sea level.", Marks: 1, CorrectOption: &trueIdx},
			{Type: domain.TypeFillBlank, Text: "The capital of France is ___.", Marks: 2, Blanks: []string{"Paris"}},
			{Type: domain.TypeMatching, Text: "Match the country to its capital.", Marks: 3, Pairs: []domain.MatchPair{
				{Left: "Italy", Right: "Rome"}, {Left: "Spain", Right: "Madrid"}, {Left: "Japan", Right: "Tokyo"},
			}},
		},
	})
	if err != nil {
		return err
	}
	teacherToken, err := auth.Issue(teacher)
	if err != nil {
		return err
	}
	studentToken, err := auth.Issue(student)
	if err != nil {
		return err
	}
	logger.Info("demo quiz seeded",
		"quiz_id", content.Quiz.ID,
		"teacher_token", teacherToken,
		"student_token", studentToken)
	return nil
}
