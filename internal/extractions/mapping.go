package extractions

import (
	"encoding/json"
	"fmt"

	"github.com/JaimeStill/evidence-lab/pkg/query"
	"github.com/JaimeStill/evidence-lab/pkg/repository"
)

var projection = query.NewProjectionMap("public", "extractions", "x").
	Project("id", "ID").
	Project("case_id", "CaseID").
	Project("evidence_id", "EvidenceID").
	Project("status", "Status").
	Project("text", "Text").
	Project("metadata", "Metadata").
	Project("error", "Error").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

const returning = `RETURNING id, case_id, evidence_id, status, text, metadata, error, created_at, updated_at`

var pageProjection = query.NewProjectionMap("public", "ocr_pages", "p").
	Project("id", "ID").
	Project("evidence_id", "EvidenceID").
	Project("page_number", "PageNumber").
	Project("provider_primary", "ProviderPrimary").
	Project("provider_secondary", "ProviderSecondary").
	Project("text_primary", "TextPrimary").
	Project("text_secondary", "TextSecondary").
	Project("confidence_primary", "ConfidencePrimary").
	Project("confidence_secondary", "ConfidenceSecondary").
	Project("diff_score", "DiffScore").
	Project("needs_review", "NeedsReview").
	Project("updated_at", "UpdatedAt")

const pageReturning = `RETURNING id, evidence_id, page_number, provider_primary, provider_secondary,
	text_primary, text_secondary, confidence_primary, confidence_secondary, diff_score, needs_review, updated_at`

func scanExtraction(s repository.Scanner) (Extraction, error) {
	var (
		x    Extraction
		meta []byte
	)
	err := s.Scan(
		&x.ID,
		&x.CaseID,
		&x.EvidenceID,
		&x.Status,
		&x.Text,
		&meta,
		&x.Error,
		&x.CreatedAt,
		&x.UpdatedAt,
	)
	if err != nil {
		return x, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &x.Metadata); err != nil {
			return x, fmt.Errorf("decode extraction metadata: %w", err)
		}
	}
	return x, nil
}

func scanPage(s repository.Scanner) (Page, error) {
	var p Page
	err := s.Scan(
		&p.ID,
		&p.EvidenceID,
		&p.PageNumber,
		&p.ProviderPrimary,
		&p.ProviderSecondary,
		&p.TextPrimary,
		&p.TextSecondary,
		&p.ConfidencePrimary,
		&p.ConfidenceSecondary,
		&p.DiffScore,
		&p.NeedsReview,
		&p.UpdatedAt,
	)
	return p, err
}
