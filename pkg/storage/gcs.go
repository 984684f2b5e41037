package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/JaimeStill/evidence-lab/pkg/lifecycle"
)

type bucket struct {
	client *gcs.Client
	name   string
	prefix string
	logger *slog.Logger
}

// NewGCS creates a Google Cloud Storage backend for cfg.Bucket. Keys are
// stored under cfg.Prefix inside the bucket.
func NewGCS(cfg *Config, logger *slog.Logger) (System, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}

	opts := []option.ClientOption{option.WithScopes(gcs.ScopeReadWrite)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := gcs.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &bucket{
		client: client,
		name:   cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logger.With("system", "storage", "backend", BackendGCS),
	}, nil
}

func (b *bucket) Start(lc *lifecycle.Coordinator) error {
	b.logger.Info("starting storage system", "bucket", b.name, "prefix", b.prefix)

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := b.client.Close(); err != nil {
			b.logger.Error("storage client close failed", "error", err)
		}
	})

	return nil
}

func (b *bucket) Store(ctx context.Context, key string, data []byte) error {
	obj, err := b.object(key)
	if err != nil {
		return err
	}

	w := obj.NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close object writer: %w", err)
	}
	return nil
}

func (b *bucket) Retrieve(ctx context.Context, key string) ([]byte, error) {
	obj, err := b.object(key)
	if err != nil {
		return nil, err
	}

	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (b *bucket) Delete(ctx context.Context, key string) error {
	obj, err := b.object(key)
	if err != nil {
		return err
	}

	if err := obj.Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

func (b *bucket) Validate(ctx context.Context, key string) (bool, error) {
	obj, err := b.object(key)
	if err != nil {
		return false, err
	}

	if _, err := obj.Attrs(ctx); err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("object attrs: %w", err)
	}
	return true, nil
}

func (b *bucket) object(key string) (*gcs.ObjectHandle, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	return b.client.Bucket(b.name).Object(b.prefix + cleaned), nil
}
