package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/complyq/complyq/internal/ai"
	"github.com/complyq/complyq/internal/chunker"
	"github.com/complyq/complyq/internal/config"
	"github.com/complyq/complyq/internal/embedcache"
	"github.com/complyq/complyq/internal/filestore"
	"github.com/complyq/complyq/internal/handler"
	"github.com/complyq/complyq/internal/job"
	"github.com/complyq/complyq/internal/loader"
	"github.com/complyq/complyq/internal/middleware"
	"github.com/complyq/complyq/internal/model"
	"github.com/complyq/complyq/internal/prompt"
	"github.com/complyq/complyq/internal/repo"
	"github.com/complyq/complyq/internal/schedule"
	"github.com/complyq/complyq/internal/service"
	"github.com/complyq/complyq/internal/vecstore"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "complyq",
		Short: "complyq compliance Q&A backend",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run complyq server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(configPath)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runServer()
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")

	var reindexCollection string
	reindexCmd := &cobra.Command{
		Use:   "reindex",
		Short: "rebuild vector indexes from stored chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(configPath)
			if err != nil {
				return err
			}
			defer app.close()
			ctx := context.Background()
			if reindexCollection != "" {
				return app.ingest.Rebuild(ctx, reindexCollection)
			}
			return app.ingest.RebuildAll(ctx)
		},
	}
	reindexCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	reindexCmd.Flags().StringVar(&reindexCollection, "collection", "", "only rebuild this collection")

	rootCmd.AddCommand(runCmd, reindexCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

type app struct {
	cfg    *config.Config
	db     *sql.DB
	store  vecstore.Store
	ingest *service.IngestService
	ask    *service.AnswerService
	sched  schedule.Scheduler
}

func setup(configPath string) (*app, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	db, err := repo.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := repo.ApplyMigrations(db); err != nil {
		return nil, fmt.Errorf("migrations: %w", err)
	}

	docRepo := repo.NewDocumentRepo(db)
	chunkRepo := repo.NewChunkRepo(db)
	cacheRepo := repo.NewEmbeddingCacheRepo(db)

	collections := []string{model.CollectionRegulatory, model.CollectionProcedures, model.CollectionMapping}
	store, err := buildVectorStore(cfg, db, collections)
	if err != nil {
		return nil, err
	}

	files, err := filestore.New(cfg.FileStore)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}

	embedder, err := buildEmbedder(cfg, cacheRepo)
	if err != nil {
		return nil, err
	}
	generator, err := buildGenerator(cfg)
	if err != nil {
		return nil, err
	}

	split, err := chunker.New(cfg.Ingest.MaxChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	load := loader.New(cfg.Ingest.MaxFileBytes)

	ingest := service.NewIngestService(docRepo, chunkRepo, files, load, split, embedder, store, cfg.Ingest.Workers)
	retrieval := service.NewRetrievalService(embedder, store, chunkRepo, cfg.Retrieval)
	builder := prompt.NewBuilder(cfg.Models.Entries)
	ask := service.NewAnswerService(retrieval, builder, generator, cfg.Models.Default, time.Duration(cfg.AI.TimeoutSec)*time.Second)

	sched := schedule.NewCronScheduler()
	if err := sched.AddJob(job.NewIndexReconcileJob(docRepo, chunkRepo, store, ingest, time.Hour), cfg.Jobs.ReconcileSpec); err != nil {
		return nil, err
	}
	if cfg.AI.EmbedCache.UseDB {
		if err := sched.AddJob(job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.AI.EmbedCache.MaxAgeDays), cfg.Jobs.CacheCleanupSpec); err != nil {
			return nil, err
		}
	}

	return &app{cfg: cfg, db: db, store: store, ingest: ingest, ask: ask, sched: sched}, nil
}

func (a *app) close() {
	a.ingest.Close()
	_ = a.db.Close()
}

func buildVectorStore(cfg *config.Config, db *sql.DB, collections []string) (vecstore.Store, error) {
	switch cfg.VectorStore.Type {
	case "sqlite":
		return vecstore.NewSQLiteStore(context.Background(), db, collections), nil
	case "pgvector":
		var pgCfg vecstore.PgConfig
		data, err := json.Marshal(cfg.VectorStore.Data)
		if err != nil {
			return nil, fmt.Errorf("encode vector store config: %w", err)
		}
		if err := json.Unmarshal(data, &pgCfg); err != nil {
			return nil, fmt.Errorf("decode vector store config: %w", err)
		}
		return vecstore.NewPgStore(context.Background(), pgCfg, collections)
	default:
		return nil, fmt.Errorf("unsupported vector store type: %s", cfg.VectorStore.Type)
	}
}

func buildEmbedder(cfg *config.Config, cacheRepo *repo.EmbeddingCacheRepo) (ai.IEmbedder, error) {
	entries := make([]ai.EmbedderEntry, 0, len(cfg.AI.Embed))
	for _, pc := range cfg.AI.Embed {
		provider, err := ai.NewEmbedProvider(pc.Provider, pc.Args)
		if err != nil {
			return nil, fmt.Errorf("init embed provider %s: %w", pc.Provider, err)
		}
		entries = append(entries, ai.EmbedderEntry{
			Name:     pc.Provider,
			Embedder: ai.NewEmbedder(provider, pc.Model),
		})
	}
	embedder := ai.NewGroupEmbedder(entries)
	if embedder == nil {
		return nil, fmt.Errorf("ai.embed is required")
	}
	embedder = embedcache.WrapLruCacheToEmbedder(embedder,
		cfg.AI.EmbedCache.LRUSize,
		time.Duration(cfg.AI.EmbedCache.LRUTTLMinute)*time.Minute)
	if cfg.AI.EmbedCache.UseDB {
		embedder = embedcache.WrapDBCacheToEmbedder(embedder, cacheRepo)
	}
	return embedder, nil
}

func buildGenerator(cfg *config.Config) (ai.IAIProvider, error) {
	entries := make([]ai.ProviderEntry, 0, len(cfg.AI.Generate))
	for _, pc := range cfg.AI.Generate {
		provider, err := ai.NewProvider(pc.Provider, pc.Args)
		if err != nil {
			return nil, fmt.Errorf("init ai provider %s: %w", pc.Provider, err)
		}
		entries = append(entries, ai.ProviderEntry{
			Name:     pc.Provider,
			Provider: provider,
			Model:    pc.Model,
		})
	}
	generator := ai.NewGroupProvider(entries)
	if generator == nil {
		return nil, fmt.Errorf("ai.generate is required")
	}
	return generator, nil
}

func (a *app) runServer() error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", a.cfg.Port),
		zap.String("db_path", a.cfg.DBPath),
		zap.String("vector_store", a.cfg.VectorStore.Type),
		zap.String("file_store", a.cfg.FileStore.Type),
	)

	deps := handler.RouterDeps{
		Documents:     handler.NewDocumentHandler(a.ingest, a.cfg.MaxUploadBytes),
		Ask:           handler.NewAskHandler(a.ask),
		Index:         handler.NewIndexHandler(a.ingest, a.store),
		AskRateWindow: time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", a.cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(a.cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", a.cfg.Port)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.sched.Start(ctx)
	defer a.sched.Stop()

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
