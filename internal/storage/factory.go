package storage

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2/google"
	gstorage "google.golang.org/api/storage/v1"
	"google.golang.org/api/option"

	"sceneforge/internal/adapters/storage/gcs"
	"sceneforge/internal/adapters/storage/localfs"
)

func NewProvider() (Provider, error) {
	provider := os.Getenv("STORAGE_PROVIDER")
	if provider == "" {
		provider = "localfs"
	}

	switch provider {
	case "localfs":
		root := mustEnv("STORAGE_LOCAL_ROOT")
		return localfs.New(root), nil

	case "gcs":
		return newGCSProvider()

	default:
		return nil, fmt.Errorf("unknown storage provider: %s", provider)
	}
}

func newGCSProvider() (Provider, error) {
	ctx := context.Background()

	bucket := mustEnv("GCS_BUCKET")
	credsFile := mustEnv("GCS_CREDENTIALS_FILE")

	data, err := os.ReadFile(credsFile)
	if err != nil {
		return nil, fmt.Errorf("read gcs credentials: %w", err)
	}

	conf, err := google.JWTConfigFromJSON(data, gstorage.DevstorageReadWriteScope)
	if err != nil {
		return nil, fmt.Errorf("parse gcs credentials: %w", err)
	}

	srv, err := gstorage.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, err
	}

	return gcs.NewClient(srv, bucket).WithSigner(conf.Email, conf.PrivateKey)
}

func mustEnv(k string) string {
	v := os.Getenv(k)
	if v == "" {
		panic("missing env: " + k)
	}
	return v
}
