package claims

import (
	"encoding/json"
	"fmt"

	"github.com/JaimeStill/evidence-lab/pkg/query"
	"github.com/JaimeStill/evidence-lab/pkg/repository"
)

var claimProjection = query.NewProjectionMap("public", "claims", "cl").
	Project("id", "ID").
	Project("case_id", "CaseID").
	Project("evidence_id", "EvidenceID").
	Project("claim_text", "ClaimText").
	Project("claim_type", "ClaimType").
	Project("tags", "Tags").
	Project("missing_info", "MissingInfoFlag").
	Project("created_from", "CreatedFrom").
	Project("status", "Status").
	Project("created_at", "CreatedAt").
	Project("updated_at", "UpdatedAt")

var claimOrder = []query.SortField{{Field: "CreatedAt"}, {Field: "ID"}}

const claimReturning = `RETURNING id, case_id, evidence_id, claim_text, claim_type, tags,
	missing_info, created_from, status, created_at, updated_at`

var citationProjection = query.NewProjectionMap("public", "citations", "ci").
	Project("id", "ID").
	Project("case_id", "CaseID").
	Project("evidence_id", "EvidenceID").
	Project("quote", "Quote").
	Project("page_number", "PageNumber").
	Project("timestamp_seconds", "TimestampSeconds").
	Project("start_offset", "StartOffset").
	Project("end_offset", "EndOffset").
	Project("confidence", "Confidence").
	Project("created_at", "CreatedAt")

const citationReturning = `RETURNING id, case_id, evidence_id, quote, page_number,
	timestamp_seconds, start_offset, end_offset, confidence, created_at`

var groupProjection = query.NewProjectionMap("public", "issue_groups", "g").
	Project("id", "ID").
	Project("case_id", "CaseID").
	Project("name", "Name").
	Project("claim_type", "ClaimType").
	Project("tag", "Tag").
	Project("created_at", "CreatedAt")

var factProjection = query.NewProjectionMap("public", "evidence_facts", "f").
	Project("id", "ID").
	Project("case_id", "CaseID").
	Project("evidence_id", "EvidenceID").
	Project("fact_type", "FactType").
	Project("text", "Text").
	Project("page_number", "PageNumber").
	Project("status", "Status").
	Project("created_at", "CreatedAt")

func scanClaim(s repository.Scanner) (Claim, error) {
	var (
		c    Claim
		tags []byte
	)
	err := s.Scan(
		&c.ID,
		&c.CaseID,
		&c.EvidenceID,
		&c.ClaimText,
		&c.ClaimType,
		&tags,
		&c.MissingInfoFlag,
		&c.CreatedFrom,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}
	c.Tags = []string{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &c.Tags); err != nil {
			return c, fmt.Errorf("decode claim tags: %w", err)
		}
	}
	return c, nil
}

func scanCitation(s repository.Scanner) (Citation, error) {
	var c Citation
	err := s.Scan(
		&c.ID,
		&c.CaseID,
		&c.EvidenceID,
		&c.Quote,
		&c.PageNumber,
		&c.TimestampSeconds,
		&c.StartOffset,
		&c.EndOffset,
		&c.Confidence,
		&c.CreatedAt,
	)
	return c, err
}

func scanGroup(s repository.Scanner) (IssueGroup, error) {
	var g IssueGroup
	err := s.Scan(
		&g.ID,
		&g.CaseID,
		&g.Name,
		&g.ClaimType,
		&g.Tag,
		&g.CreatedAt,
	)
	return g, err
}

func scanFact(s repository.Scanner) (Fact, error) {
	var f Fact
	err := s.Scan(
		&f.ID,
		&f.CaseID,
		&f.EvidenceID,
		&f.FactType,
		&f.Text,
		&f.PageNumber,
		&f.Status,
		&f.CreatedAt,
	)
	return f, err
}
