package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/FranLegon/drive-doc-relay/internal/api"
	"github.com/FranLegon/drive-doc-relay/internal/auth"
	"github.com/FranLegon/drive-doc-relay/internal/dispatch"
	"github.com/FranLegon/drive-doc-relay/internal/logger"
	"github.com/FranLegon/drive-doc-relay/internal/model"
	"github.com/FranLegon/drive-doc-relay/internal/task"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// multipartMemory is how much of a multipart body is held in memory before spilling to disk
const multipartMemory = 32 << 20

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

type uploadResponse struct {
	Status       string              `json:"status"`
	Uploaded     []model.ItemSummary `json:"uploaded"`
	TargetFolder string              `json:"target_folder"`
}

type createFolderResponse struct {
	Status string             `json:"status"`
	Folder *model.ItemSummary `json:"folder"`
}

type listFilesResponse struct {
	Files []model.ItemSummary `json:"files"`
}

type deleteResponse struct {
	Status    string `json:"status"`
	DeletedID string `json:"deleted_id"`
	Message   string `json:"message"`
}

type renameResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
	Name   string `json:"name"`
}

// BaseHandler provides the JSON helpers shared by all handlers
type BaseHandler struct{}

func (h *BaseHandler) sendJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (h *BaseHandler) sendError(w http.ResponseWriter, statusCode int, message string) {
	h.sendJSON(w, statusCode, errorResponse{Detail: message})
}

// sendFailure maps err to a status code and logs server side failures
func (h *BaseHandler) sendFailure(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.ErrorTagged([]string{"HTTP", middleware.GetReqID(r.Context())}, "%s failed: %v", op, err)
	} else {
		logger.WarningTagged([]string{"HTTP", middleware.GetReqID(r.Context())}, "%s rejected: %v", op, err)
	}
	h.sendError(w, status, err.Error())
}

// statusFor maps an error to the HTTP status returned to the client
func statusFor(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, auth.ErrMissingAuthorization),
		errors.Is(err, auth.ErrMalformedAuthorization),
		errors.Is(err, api.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, dispatch.ErrEmptyBatch),
		errors.Is(err, task.ErrMissingField):
		return http.StatusUnprocessableEntity
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// DocumentHandler serves the document routes
type DocumentHandler struct {
	BaseHandler
	runner   *task.Runner
	provider model.Provider
}

// NewDocumentHandler creates a handler backed by runner
func NewDocumentHandler(runner *task.Runner, provider model.Provider) *DocumentHandler {
	return &DocumentHandler{runner: runner, provider: provider}
}

// Root is the liveness endpoint
func (h *DocumentHandler) Root(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("%s Upload Backend Running", h.provider.DisplayName()),
	})
}

// Upload handles POST /upload
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		h.sendFailure(w, r, "upload", err)
		return
	}

	var headers []*multipart.FileHeader
	if r.MultipartForm != nil {
		headers = r.MultipartForm.File["files"]
	}
	if len(headers) == 0 {
		h.sendFailure(w, r, "upload", fmt.Errorf("%w: files", task.ErrMissingField))
		return
	}

	batch := make(model.UploadBatch, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			h.sendFailure(w, r, "upload", fmt.Errorf("failed to read '%s': %w", fh.Filename, err))
			return
		}
		defer f.Close()

		contentType, err := partContentType(fh, f)
		if err != nil {
			h.sendFailure(w, r, "upload", fmt.Errorf("failed to read '%s': %w", fh.Filename, err))
			return
		}
		batch = append(batch, model.UploadEntry{
			Filename:    fh.Filename,
			ContentType: contentType,
			Content:     f,
		})
	}

	res, err := h.runner.Upload(r.Context(), serviceFromContext(r.Context()), task.UploadRequest{
		Files:      batch,
		FolderName: r.FormValue("folder_name"),
		FolderID:   r.FormValue("folder_id"),
	})
	if err != nil {
		h.sendFailure(w, r, "upload", err)
		return
	}

	h.sendJSON(w, http.StatusOK, uploadResponse{
		Status:       "success",
		Uploaded:     res.Uploaded,
		TargetFolder: res.TargetFolder,
	})
}

// CreateFolder handles POST /create_folder
func (h *DocumentHandler) CreateFolder(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		h.sendFailure(w, r, "create folder", err)
		return
	}

	folder, err := h.runner.CreateFolder(r.Context(), serviceFromContext(r.Context()),
		r.FormValue("folder_name"), r.FormValue("parent_folder"))
	if err != nil {
		h.sendFailure(w, r, "create folder", err)
		return
	}

	h.sendJSON(w, http.StatusOK, createFolderResponse{Status: "success", Folder: folder})
}

// ListFiles handles GET /files
func (h *DocumentHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.runner.ListFiles(r.Context(), serviceFromContext(r.Context()), r.URL.Query().Get("folder_name"))
	if err != nil {
		h.sendFailure(w, r, "list files", err)
		return
	}
	h.sendJSON(w, http.StatusOK, listFilesResponse{Files: files})
}

// Delete handles DELETE /delete/{file_id}
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "file_id")
	if err := h.runner.Delete(r.Context(), serviceFromContext(r.Context()), id); err != nil {
		h.sendFailure(w, r, "delete", err)
		return
	}
	h.sendJSON(w, http.StatusOK, deleteResponse{
		Status:    "success",
		DeletedID: id,
		Message:   "File deleted successfully",
	})
}

// Rename handles PUT /rename/{file_id}
func (h *DocumentHandler) Rename(w http.ResponseWriter, r *http.Request) {
	if err := parseForm(r); err != nil {
		h.sendFailure(w, r, "rename", err)
		return
	}

	item, err := h.runner.Rename(r.Context(), serviceFromContext(r.Context()), chi.URLParam(r, "file_id"), r.FormValue("new_name"))
	if err != nil {
		h.sendFailure(w, r, "rename", err)
		return
	}
	h.sendJSON(w, http.StatusOK, renameResponse{Status: "success", ID: item.ID, Name: item.Name})
}

// parseForm accepts both multipart and urlencoded bodies
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

// partContentType returns the declared content type of a part, sniffing the bytes
// when the client sent none.
func partContentType(fh *multipart.FileHeader, f multipart.File) (string, error) {
	if ct := fh.Header.Get("Content-Type"); ct != "" {
		return ct, nil
	}
	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return mtype.String(), nil
}
