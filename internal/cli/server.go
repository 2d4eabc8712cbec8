package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/config"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
	pgstore "quiz-session-service/internal/infra/postgres"
	rediscache "quiz-session-service/internal/infra/redis"
	transport "quiz-session-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var (
		quizzes      app.QuizStore
		sessionStore app.SessionStore
	)
	if pool != nil {
		quizzes = pgstore.NewQuizStore(pool)
		sessionStore = pgstore.NewSessionStore(pool)
	} else {
		memSessions := memory.NewSessionStore()
		memQuizzes := memory.NewQuizStore(memSessions)
		seedSampleQuiz(ctx, memQuizzes)
		quizzes = memQuizzes
		sessionStore = memSessions
	}

	// The taking path reads quizzes through a cache; authoring writes go
	// straight to the store.
	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)
	var catalog app.QuizCatalog
	if redisClient != nil {
		catalog = rediscache.NewQuizCache(redisClient, quizzes, cacheTTL)
	} else {
		catalog = memory.NewQuizCache(quizzes, cacheTTL)
	}

	sessions := app.NewSessionService(catalog, sessionStore)
	authoring := app.NewAuthoringService(quizzes)

	handler := transport.NewHandler(sessions, authoring)
	wsHandler := transport.NewWSHandler(sessions)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz session service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedSampleQuiz gives the in-memory fallback something to serve; swap in
// Postgres for real deployments.
func seedSampleQuiz(ctx context.Context, quizzes *memory.QuizStore) {
	quiz := domain.Quiz{
		Title:      "Warmup",
		AccessCode: "DEMO0001",
		CreatedAt:  time.Now().UTC(),
		Questions: []domain.Question{
			{
				Text:  "What is 2 + 2?",
				Type:  domain.QuestionMultipleChoice,
				Order: 1,
				Options: []domain.AnswerOption{
					{Text: "3", Order: 1},
					{Text: "4", Order: 2, Correct: true},
					{Text: "5", Order: 3},
				},
			},
			{
				Text:        "What is the capital of France?",
				Type:        domain.QuestionFreeText,
				Order:       2,
				CorrectText: "Paris",
			},
		},
	}
	if err := quizzes.Create(ctx, &quiz); err != nil {
		log.Printf("seed sample quiz: %v", err)
	}
}
