package evidence

import (
	"github.com/JaimeStill/evidence-lab/pkg/query"
	"github.com/JaimeStill/evidence-lab/pkg/repository"
)

var projection = query.NewProjectionMap("public", "evidence_files", "e").
	Project("id", "ID").
	Project("case_id", "CaseID").
	Project("mime_type", "MimeType").
	Project("storage_key", "StorageKey").
	Project("original_name", "OriginalName").
	Project("size_bytes", "SizeBytes").
	Project("page_count", "PageCount").
	Project("created_at", "CreatedAt")

var defaultSort = query.SortField{Field: "CreatedAt"}

func scanFile(s repository.Scanner) (File, error) {
	var f File
	err := s.Scan(
		&f.ID,
		&f.CaseID,
		&f.MimeType,
		&f.StorageKey,
		&f.OriginalName,
		&f.SizeBytes,
		&f.PageCount,
		&f.CreatedAt,
	)
	return f, err
}
