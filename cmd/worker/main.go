package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"sceneforge/internal/pkg/logger"
	"sceneforge/internal/storage"
	"sceneforge/internal/worker"
	"sceneforge/internal/worker/util"
)

func main() {
	log := logger.New(logger.Config{
		Level:       util.Env("LOG_LEVEL", "info"),
		Format:      util.Env("LOG_FORMAT", "json"),
		ServiceName: "sceneforge-worker",
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbURL := util.MustEnv("DATABASE_URL")
	redisAddr := util.MustEnv("REDIS_ADDR")
	queueName := util.Env("JOB_QUEUE_NAME", "sceneforge:jobs")
	workDir := util.Env("WORKER_WORK_DIR", "/tmp/sceneforge")
	cleanupLocal := util.BoolEnv("WORKER_CLEANUP_LOCAL", true)
	ffmpegBinary := util.Env("FFMPEG_BINARY", "ffmpeg")

	renderTimeout := 2 * time.Hour
	if raw := util.Env("RENDER_TIMEOUT", ""); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			renderTimeout = d
		}
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	sp, err := storage.NewProvider()
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}

	deps := worker.Deps{
		Pool:          pool,
		RDB:           rdb,
		SP:            sp,
		QueueName:     queueName,
		WorkDir:       workDir,
		CleanupLocal:  cleanupLocal,
		FFmpegBinary:  ffmpegBinary,
		RenderTimeout: renderTimeout,
		Log:           log,
	}

	log.Info("worker started",
		"queue", queueName,
		"storage", sp.Provider(),
	)
	if err := worker.Run(ctx, deps); err != nil && ctx.Err() == nil {
		log.LogFatal("worker stopped", err)
	}
}
