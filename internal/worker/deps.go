package worker

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"sceneforge/internal/pkg/logger"
	"sceneforge/internal/ports"
)

type Deps struct {
	Pool      *pgxpool.Pool
	RDB       *redis.Client
	SP        ports.StorageProvider
	QueueName string

	// WorkDir is the scratch root for downloaded assets and render
	// outputs, one subdirectory per job.
	WorkDir      string
	CleanupLocal bool

	FFmpegBinary  string
	RenderTimeout time.Duration

	Log *logger.Logger
}
