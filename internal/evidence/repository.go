package evidence

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/JaimeStill/evidence-lab/pkg/query"
	"github.com/JaimeStill/evidence-lab/pkg/repository"
	"github.com/JaimeStill/evidence-lab/pkg/storage"
)

type repo struct {
	db      *sql.DB
	storage storage.System
	logger  *slog.Logger
}

// New creates an evidence repository with database and blob storage integration.
func New(db *sql.DB, storage storage.System, logger *slog.Logger) System {
	return &repo{
		db:      db,
		storage: storage,
		logger:  logger.With("system", "evidence"),
	}
}

func (r *repo) Find(ctx context.Context, id uuid.UUID) (*File, error) {
	q, args := query.
		NewBuilder(projection).
		BuildSingle("ID", id)

	f, err := repository.QueryOne(ctx, r.db, q, args, scanFile)
	if err != nil {
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}
	return &f, nil
}

func (r *repo) FindMany(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]File, error) {
	result := make(map[uuid.UUID]File, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}

	q, args := query.
		NewBuilder(projection, defaultSort).
		WhereIn("ID", values).
		Build()

	files, err := repository.QueryMany(ctx, r.db, q, args, scanFile)
	if err != nil {
		return nil, fmt.Errorf("query evidence files: %w", err)
	}

	for _, f := range files {
		result[f.ID] = f
	}
	return result, nil
}

func (r *repo) ListByCase(ctx context.Context, caseID uuid.UUID) ([]File, error) {
	q, args := query.
		NewBuilder(projection, defaultSort).
		WhereEquals("CaseID", caseID).
		Build()

	files, err := repository.QueryMany(ctx, r.db, q, args, scanFile)
	if err != nil {
		return nil, fmt.Errorf("query evidence files: %w", err)
	}
	return files, nil
}

func (r *repo) Create(ctx context.Context, cmd CreateCommand) (*File, error) {
	if len(cmd.Data) == 0 || cmd.OriginalName == "" {
		return nil, ErrInvalidFile
	}

	id := uuid.New()
	storageKey := StorageKey(cmd.CaseID, id, cmd.OriginalName)

	if err := r.storage.Store(ctx, storageKey, cmd.Data); err != nil {
		return nil, fmt.Errorf("store file: %w", err)
	}

	q := `INSERT INTO evidence_files(id, case_id, mime_type, storage_key, original_name, size_bytes, page_count)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, case_id, mime_type, storage_key, original_name, size_bytes, page_count, created_at`

	f, err := repository.WithTx(ctx, r.db, func(tx *sql.Tx) (File, error) {
		return repository.QueryOne(ctx, tx, q, []any{
			id, cmd.CaseID, cmd.MimeType, storageKey, cmd.OriginalName, int64(len(cmd.Data)), cmd.PageCount,
		}, scanFile)
	})

	if err != nil {
		if delErr := r.storage.Delete(ctx, storageKey); delErr != nil {
			r.logger.Error("cleanup failed after db error", "storage_key", storageKey, "error", delErr)
		}
		return nil, repository.MapError(err, ErrNotFound, ErrDuplicate)
	}

	r.logger.Info("evidence created", "id", f.ID, "case_id", f.CaseID, "storage_key", storageKey)
	return &f, nil
}

// StorageKey returns the blob key for an evidence file.
func StorageKey(caseID, id uuid.UUID, filename string) string {
	return fmt.Sprintf("evidence/%s/%s/%s", caseID, id, sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	replacer := strings.NewReplacer(
		" ", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	name = replacer.Replace(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return "file"
	}
	return name
}
