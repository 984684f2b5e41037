package evidence

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/JaimeStill/evidence-lab/pkg/handlers"
	"github.com/JaimeStill/evidence-lab/pkg/routes"
)

// UploadHook runs after an evidence file is created. Its error is logged and
// does not fail the upload.
type UploadHook func(ctx context.Context, file *File) error

// Handler provides HTTP endpoints for evidence files.
type Handler struct {
	sys           System
	logger        *slog.Logger
	maxUploadSize int64
	onUpload      UploadHook
}

// NewHandler creates an evidence handler. onUpload may be nil.
func NewHandler(sys System, logger *slog.Logger, maxUploadSize int64, onUpload UploadHook) *Handler {
	return &Handler{
		sys:           sys,
		logger:        logger.With("handler", "evidence"),
		maxUploadSize: maxUploadSize,
		onUpload:      onUpload,
	}
}

// Routes returns the evidence endpoint route groups.
func (h *Handler) Routes() []routes.Group {
	return []routes.Group{
		{
			Prefix:      "/cases/{caseId}/evidence",
			Description: "Case evidence upload and listing",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "", Handler: h.List},
				{Method: "POST", Pattern: "", Handler: h.Upload},
			},
		},
		{
			Prefix:      "/evidence",
			Description: "Evidence file metadata",
			Routes: []routes.Route{
				{Method: "GET", Pattern: "/{id}", Handler: h.Find},
			},
		},
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caseID, err := handlers.PathUUID(r, "caseId")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	files, err := h.sys.ListByCase(r.Context(), caseID)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, files)
}

func (h *Handler) Find(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	f, err := h.sys.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusOK, f)
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	caseID, err := handlers.PathUUID(r, "caseId")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrFileTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidFile)
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadSize {
		handlers.RespondError(w, h.logger, http.StatusRequestEntityTooLarge, ErrFileTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, ErrInvalidFile)
		return
	}

	mimeType := detectContentType(header.Header.Get("Content-Type"), data)

	var pageCount *int
	if mimeType == "application/pdf" {
		if pc, err := pdfPageCount(data); err != nil {
			h.logger.Warn("failed to read pdf page count", "error", err)
		} else {
			pageCount = &pc
		}
	}

	f, err := h.sys.Create(r.Context(), CreateCommand{
		CaseID:       caseID,
		OriginalName: header.Filename,
		MimeType:     mimeType,
		PageCount:    pageCount,
		Data:         data,
	})
	if err != nil {
		handlers.RespondError(w, h.logger, MapHTTPStatus(err), err)
		return
	}

	if h.onUpload != nil {
		if err := h.onUpload(r.Context(), f); err != nil {
			h.logger.Error("post-upload hook failed", "id", f.ID, "error", err)
		}
	}

	handlers.RespondJSON(w, http.StatusCreated, f)
}

func detectContentType(header string, data []byte) string {
	if header != "" && header != "application/octet-stream" {
		return header
	}
	return http.DetectContentType(data)
}

func pdfPageCount(data []byte) (int, error) {
	return api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
}
