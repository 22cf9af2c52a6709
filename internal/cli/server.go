package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/gabzinnn/av-continua-sub000/internal/app"
	"github.com/gabzinnn/av-continua-sub000/internal/config"
	"github.com/gabzinnn/av-continua-sub000/internal/domain"
	"github.com/gabzinnn/av-continua-sub000/internal/infra/memory"
	pginfra "github.com/gabzinnn/av-continua-sub000/internal/infra/postgres"
	redisinfra "github.com/gabzinnn/av-continua-sub000/internal/infra/redis"
	transport "github.com/gabzinnn/av-continua-sub000/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the recruitment service",
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

	var loader memory.ExamLoader = memory.NewStaticExamLoader(sampleExams())
	if pool != nil {
		loader = pginfra.NewExamLoader(pool)
	}

	examTTL := config.TTLDuration(cfg.Exam.CacheTTL, 10*time.Minute)
	var examRepo app.ExamRepository
	if redisClient != nil {
		examRepo = redisinfra.NewExamRepository(redisClient, loader, examTTL)
	} else {
		examRepo = memory.NewExamRepository(loader, examTTL)
	}

	handleTTL := config.TTLDuration(cfg.Session.HandleTTL, 4*time.Hour)
	var handles app.HandleStore
	if redisClient != nil {
		handles = redisinfra.NewHandleStore(redisClient, handleTTL)
	} else {
		handles = memory.NewHandleStore(handleTTL)
	}

	var store app.Store = memory.NewStore()
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		store = pginfra.NewStore(bun.NewDB(sqldb, pgdialect.New()))
	}

	opts := []app.Option{
		app.WithDebounce(config.TTLDuration(cfg.Session.EssayDebounce, time.Second)),
	}
	if cfg.Session.TabSwitchLimit > 0 {
		opts = append(opts, app.WithTabSwitchLimit(cfg.Session.TabSwitchLimit))
	}
	examService := app.NewExamService(store, examRepo, handles, opts...)
	pipelineService := app.NewPipelineService(store)

	wsHandler := transport.NewWSHandler(examService)
	apiHandler := transport.NewAPIHandler(examService, pipelineService)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	apiHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting selecao service on :%s", finalPort)
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

// sampleExams provides minimal exam data for running without Postgres.
func sampleExams() map[string]domain.Exam {
	return map[string]domain.Exam{
		"prova-1": {
			ID:           "prova-1",
			Title:        "Processo Seletivo 2026.1",
			TimeLimitMin: 60,
			Status:       domain.ExamPublished,
			Questions: []domain.Question{
				{
					ID:        "q1",
					Type:      domain.QuestionMultipleChoice,
					Statement: "Quanto é 2 + 2?",
					Points:    2,
					Alternatives: []domain.Alternative{
						{ID: "a1", Text: "3"},
						{ID: "a2", Text: "4", Correct: true},
						{ID: "a3", Text: "5"},
					},
				},
				{
					ID:        "q2",
					Type:      domain.QuestionTrueFalse,
					Statement: "O céu é azul.",
					Alternatives: []domain.Alternative{
						{ID: "a4", Text: "Verdadeiro", Correct: true},
						{ID: "a5", Text: "Falso"},
					},
				},
				{
					ID:        "q3",
					Type:      domain.QuestionEssay,
					Statement: "Descreva sua experiência com pesquisa.",
					Points:    5,
				},
			},
		},
	}
}
