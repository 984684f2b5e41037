package extractions_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/JaimeStill/evidence-lab/internal/extractions"
	"github.com/JaimeStill/evidence-lab/internal/migrations"
	"github.com/JaimeStill/evidence-lab/pkg/database"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openTestDB connects to the PostgreSQL named by EVIDENCE_LAB_TEST_DSN and
// applies the schema. The test is skipped when no database is configured.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv("EVIDENCE_LAB_TEST_DSN")
	if dsn == "" || testing.Short() {
		t.Skip("EVIDENCE_LAB_TEST_DSN not set, skipping postgres test")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db, migrations.FS, quietLogger()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedEvidence(t *testing.T, db *sql.DB) (caseID, evidenceID uuid.UUID) {
	t.Helper()

	caseID, evidenceID = uuid.New(), uuid.New()
	_, err := db.Exec(
		`INSERT INTO evidence_files(id, case_id, mime_type, storage_key, original_name, size_bytes)
		VALUES($1, $2, 'application/pdf', $3, 'lease.pdf', 10)`,
		evidenceID, caseID, "evidence/"+evidenceID.String(),
	)
	if err != nil {
		t.Fatalf("seed evidence: %v", err)
	}
	t.Cleanup(func() { db.Exec(`DELETE FROM evidence_files WHERE id = $1`, evidenceID) })
	return caseID, evidenceID
}

func TestRepository_UpsertPageReplacesRow(t *testing.T) {
	db := openTestDB(t)
	_, evidenceID := seedEvidence(t, db)
	repo := extractions.New(db, quietLogger())
	ctx := context.Background()

	one := 1
	first, err := repo.UpsertPage(ctx, extractions.Page{
		EvidenceID:      evidenceID,
		PageNumber:      &one,
		ProviderPrimary: "vision",
		TextPrimary:     "first reading",
		NeedsReview:     true,
	})
	if err != nil {
		t.Fatalf("UpsertPage() error = %v", err)
	}

	conf := 97
	second, err := repo.UpsertPage(ctx, extractions.Page{
		EvidenceID:        evidenceID,
		PageNumber:        &one,
		ProviderPrimary:   "native",
		TextPrimary:       "second reading",
		ConfidencePrimary: &conf,
	})
	if err != nil {
		t.Fatalf("second UpsertPage() error = %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("upsert replaced row id %s with %s", first.ID, second.ID)
	}
	if second.TextPrimary != "second reading" || second.NeedsReview {
		t.Errorf("page = %+v, want second reading without review", second)
	}

	pages, err := repo.ListPages(ctx, evidenceID)
	if err != nil {
		t.Fatalf("ListPages() error = %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("pages = %d, want 1", len(pages))
	}
	if pages[0].ConfidencePrimary == nil || *pages[0].ConfidencePrimary != 97 {
		t.Errorf("confidence = %v, want 97", pages[0].ConfidencePrimary)
	}
}

func TestRepository_UpsertUnpagedRow(t *testing.T) {
	db := openTestDB(t)
	_, evidenceID := seedEvidence(t, db)
	repo := extractions.New(db, quietLogger())
	ctx := context.Background()

	for _, text := range []string{"draft", "final"} {
		if _, err := repo.UpsertPage(ctx, extractions.Page{
			EvidenceID:      evidenceID,
			ProviderPrimary: "native",
			TextPrimary:     text,
		}); err != nil {
			t.Fatalf("UpsertPage(%q) error = %v", text, err)
		}
	}

	two := 2
	if _, err := repo.UpsertPage(ctx, extractions.Page{
		EvidenceID:      evidenceID,
		PageNumber:      &two,
		ProviderPrimary: "vision",
		TextPrimary:     "page two",
	}); err != nil {
		t.Fatalf("UpsertPage(page 2) error = %v", err)
	}

	pages, err := repo.ListPages(ctx, evidenceID)
	if err != nil {
		t.Fatalf("ListPages() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %d, want the unpaged row and page 2", len(pages))
	}

	var unpaged *extractions.Page
	for i := range pages {
		if pages[i].PageNumber == nil {
			unpaged = &pages[i]
		}
	}
	if unpaged == nil || unpaged.TextPrimary != "final" {
		t.Errorf("unpaged row = %+v, want final text", unpaged)
	}
}

func TestRepository_QueueIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	caseID, evidenceID := seedEvidence(t, db)
	repo := extractions.New(db, quietLogger())
	ctx := context.Background()

	first, err := repo.Queue(ctx, caseID, evidenceID)
	if err != nil {
		t.Fatalf("Queue() error = %v", err)
	}
	second, err := repo.Queue(ctx, caseID, evidenceID)
	if err != nil {
		t.Fatalf("second Queue() error = %v", err)
	}
	if first.ID != second.ID || second.Status != extractions.StatusQueued {
		t.Errorf("second = %+v, want same queued record %s", second, first.ID)
	}
}
