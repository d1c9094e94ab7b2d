package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"

	"quiz-access-service/internal/answerkey"
	"quiz-access-service/internal/app"
	"quiz-access-service/internal/domain"
	"quiz-access-service/internal/generator"
	"quiz-access-service/internal/infra/memory"
	"quiz-access-service/internal/infra/postgres"
	pgmigrations "quiz-access-service/internal/infra/postgres/migrations"
	infraredis "quiz-access-service/internal/infra/redis"
)

var (
	teacher = domain.Viewer{ID: "t1", Role: domain.RoleTeacher}
	student = domain.Viewer{ID: "s1", Role: domain.RoleStudent, Groups: []string{"g1"}}
)

func TestSubmitEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sealer, err := answerkey.NewSealer("integration-secret", time.Hour)
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	store := postgres.NewStore(db)
	service := app.NewQuizService(app.Deps{
		Store:    store,
		Content:  infraredis.NewContentCache(redisClient, postgres.NewContentLoader(pool), 5*time.Minute),
		Activity: infraredis.NewActivityTracker(redisClient),
		Feeds:    memory.NewFeedStore(),
		Provider: app.NewProvider(generator.Disabled{}, sealer, answerkey.NewShuffler(), time.Second, logger),
		Logger:   logger,
	})

	correct := 1
	content, err := service.CreateQuiz(ctx, teacher, app.QuizDraft{
		Title:      "Algebra",
		Duration:   30,
		Active:     true,
		Mode:       domain.ModeManual,
		Assignment: domain.Assignment{Audience: "g1"},
		Questions: []domain.QuestionSpec{
			{Type: domain.TypeSingleChoice, Text: "2+2?", Marks: 3, Options: []string{"3", "4", "5", "6"}, CorrectOption: &correct},
			{Type: domain.TypeMatching, Text: "Match", Marks: 2, Pairs: []domain.MatchPair{{Left: "a", Right: "1"}, {Left: "b", Right: "2"}}},
		},
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	quizID := content.Quiz.ID
	if content.Quiz.TotalMarks != 5 || len(content.Questions) != 2 {
		t.Fatalf("unexpected stored quiz: %+v", content)
	}

	view, err := service.Access(ctx, quizID, student)
	if err != nil {
		t.Fatalf("access: %v", err)
	}
	if view.TotalMarks != 5 || len(view.Public) != 2 {
		t.Fatalf("unexpected view: %+v", view)
	}

	matching, _ := json.Marshal(map[string]string{"a": "1", "b": "2"})
	answers := []domain.Answer{
		{QuestionID: content.Questions[0].ID, Value: json.RawMessage("0")},
		{QuestionID: content.Questions[1].ID, Value: matching},
	}

	// racing duplicates: the unique index lets exactly one through
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Submit(ctx, quizID, student, app.SubmitRequest{Answers: answers})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrAlreadySubmitted):
				conflicts++
			default:
				t.Errorf("unexpected submit error: %v", err)
			}
		}()
	}
	wg.Wait()
	if succeeded != 1 || conflicts != 4 {
		t.Fatalf("expected one success and four conflicts, got %d and %d", succeeded, conflicts)
	}

	_, subs, err := service.ListSubmissions(ctx, teacher, quizID)
	if err != nil {
		t.Fatalf("list submissions: %v", err)
	}
	if len(subs) != 1 || subs[0].Score != 2 || subs[0].TotalMarks != 5 || subs[0].Percentage != 40 {
		t.Fatalf("unexpected stored submissions: %+v", subs)
	}
	if len(subs[0].Items) != 2 || subs[0].Items[1].Earned != 2 {
		t.Fatalf("graded items not persisted: %+v", subs[0].Items)
	}

	// a question mutation recomputes the total and drops the cached content
	if _, err := service.DeleteQuestion(ctx, teacher, quizID, content.Questions[1].ID); err != nil {
		t.Fatalf("delete question: %v", err)
	}
	view, err = service.Access(ctx, quizID, domain.Viewer{ID: "s3", Role: domain.RoleStudent, Groups: []string{"g1"}})
	if err != nil {
		t.Fatalf("access after mutation: %v", err)
	}
	if view.TotalMarks != 3 || len(view.Public) != 1 {
		t.Fatalf("expected recomputed total 3, got %+v", view)
	}

	if err := service.DeleteQuiz(ctx, teacher, quizID); err != nil {
		t.Fatalf("delete quiz: %v", err)
	}
	if _, err := store.GetSubmission(ctx, subs[0].ID); !errors.Is(err, domain.ErrSubmissionNotFound) {
		t.Fatalf("expected submissions to cascade, got %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
