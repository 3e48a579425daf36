package httpapi

import (
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"sceneforge/internal/httpapi/handlers"
	"sceneforge/internal/httpkit"
	"sceneforge/internal/pkg/logger"
	"sceneforge/internal/pkg/middleware"
	"sceneforge/internal/ports"
)

type Deps struct {
	Pool      *pgxpool.Pool
	RDB       *redis.Client
	SP        ports.StorageProvider
	QueueName string
	Log       *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))

	allowedOrigins := envCSV("CORS_ALLOWED_ORIGINS", []string{
		"http://localhost:8081",
		"http://localhost:5173",
	})
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAgeSeconds:    600,
	}))

	h := handlers.New(handlers.Deps{
		Pool:      d.Pool,
		RDB:       d.RDB,
		SP:        d.SP,
		QueueName: d.QueueName,
		Log:       log,
	})

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	// ---- ASSETS ----
	r.Post("/assets", h.PostAsset)
	r.Get("/assets/{assetId}", h.GetAsset)
	r.Get("/assets/{assetId}/url", h.GetAssetURL)
	r.Get("/assets/{assetId}/content", h.StreamAsset)
	r.Delete("/assets/{assetId}", h.DeleteAsset)

	// ---- JOBS ----
	r.Post("/jobs", h.PostJob)
	r.Get("/jobs", h.ListJobs)
	r.Get("/jobs/{jobId}", h.GetJob)

	return r
}

func envCSV(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
