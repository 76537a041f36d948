package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/procsight/procsight/internal/embedding"
	"github.com/procsight/procsight/internal/ingest"
	"github.com/procsight/procsight/internal/storage"
	"github.com/procsight/procsight/pkg/types"
)

// APIHandlers holds the dependencies shared by all REST endpoints.
type APIHandlers struct {
	store       storage.Store
	coordinator *ingest.Coordinator
	gateway     *embedding.Gateway
	hub         *StatusHub
	maxUpload   int64
}

// NewAPIHandlers creates the REST handler set.
func NewAPIHandlers(store storage.Store, coordinator *ingest.Coordinator, gateway *embedding.Gateway, hub *StatusHub, maxUpload int64) *APIHandlers {
	return &APIHandlers{
		store:       store,
		coordinator: coordinator,
		gateway:     gateway,
		hub:         hub,
		maxUpload:   maxUpload,
	}
}

// errorBody is the JSON error envelope for all non-2xx responses.
type errorBody struct {
	Error          string   `json:"error"`
	Code           string   `json:"code"`
	MissingColumns []string `json:"missing_columns,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: failed to encode response: %v", err)
	}
}

// writeError maps a pipeline error onto the HTTP error taxonomy: busy 409,
// oversized 413, unsupported format 400, invalid-content errors 422,
// not-found 404, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError
	body.Code = "INTERNAL"

	var schemaErr *ingest.SchemaValidationError
	switch {
	case errors.Is(err, ingest.ErrProjectBusy):
		status = http.StatusConflict
		body.Code = "PROJECT_BUSY"
	case errors.Is(err, ingest.ErrFileTooLarge):
		status = http.StatusRequestEntityTooLarge
		body.Code = "FILE_TOO_LARGE"
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		status = http.StatusBadRequest
		body.Code = "UNSUPPORTED_FORMAT"
	case errors.As(err, &schemaErr):
		status = http.StatusUnprocessableEntity
		body.Code = "SCHEMA_VALIDATION"
		body.MissingColumns = schemaErr.MissingColumns
	case errors.Is(err, ingest.ErrEmptyInput):
		status = http.StatusUnprocessableEntity
		body.Code = "EMPTY_INPUT"
	case errors.Is(err, ingest.ErrNoContent):
		status = http.StatusUnprocessableEntity
		body.Code = "NO_CONTENT"
	case errors.Is(err, ingest.ErrParse):
		status = http.StatusUnprocessableEntity
		body.Code = "PARSE_ERROR"
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
	case errors.Is(err, storage.ErrInvalidInput):
		status = http.StatusBadRequest
		body.Code = "INVALID_INPUT"
	}

	writeJSON(w, status, body)
}

// createProjectRequest is the POST /api/projects payload.
type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	DatasetType string `json:"dataset_type"`
}

// CreateProject handles POST /api/projects.
func (h *APIHandlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid JSON body", Code: "INVALID_INPUT"})
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "name is required", Code: "INVALID_INPUT"})
		return
	}
	if req.DatasetType == "" {
		req.DatasetType = string(types.DatasetHybrid)
	}
	if !types.IsValidDatasetType(types.DatasetType(req.DatasetType)) {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown dataset_type", Code: "INVALID_INPUT"})
		return
	}

	project := &types.Project{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		DatasetType: types.DatasetType(req.DatasetType),
	}
	if err := h.store.CreateProject(r.Context(), project); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, project)
}

// ListProjects handles GET /api/projects.
func (h *APIHandlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.ListProjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if projects == nil {
		projects = []*types.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// GetProject handles GET /api/projects/{id}.
func (h *APIHandlers) GetProject(w http.ResponseWriter, r *http.Request) {
	project, err := h.store.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// Upload handles POST /api/projects/{id}/upload. The file arrives as a
// multipart form field named "file"; processing is synchronous and the
// response carries the full ingestion result.
func (h *APIHandlers) Upload(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	if _, err := h.store.GetProject(r.Context(), projectID); err != nil {
		writeError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+1024)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, ingest.ErrFileTooLarge)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "multipart field \"file\" is required", Code: "INVALID_INPUT"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, ingest.ErrFileTooLarge)
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "failed to read upload", Code: "INVALID_INPUT"})
		return
	}

	h.hub.Broadcast(projectID, string(types.StatusProcessing), header.Filename)

	result, err := h.coordinator.Ingest(r.Context(), data, header.Filename, projectID)
	if err != nil {
		h.hub.Broadcast(projectID, string(types.StatusFailed), err.Error())
		writeError(w, err)
		return
	}

	h.hub.Broadcast(projectID, string(types.StatusCompleted), header.Filename)
	writeJSON(w, http.StatusOK, result)
}

// searchResponse is the GET /api/search payload.
type searchResponse struct {
	Query  string               `json:"query"`
	Events []storage.EventMatch `json:"events,omitempty"`
	Chunks []storage.ChunkMatch `json:"chunks,omitempty"`
}

// Search handles GET /api/search. Query parameters: q (required),
// project_id (optional, empty searches all projects), type (events, chunks
// or both; default both), limit (default 10).
func (h *APIHandlers) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "query parameter q is required", Code: "INVALID_INPUT"})
		return
	}

	projectID := r.URL.Query().Get("project_id")
	kind := r.URL.Query().Get("type")
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	vector, err := h.gateway.Embed(r.Context(), query)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := searchResponse{Query: query}
	if kind == "" || kind == "events" {
		matches, err := h.store.SearchSimilarEvents(r.Context(), vector, projectID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Events = matches
	}
	if kind == "" || kind == "chunks" {
		matches, err := h.store.SearchSimilarChunks(r.Context(), vector, projectID, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Chunks = matches
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health handles GET /api/health. It reports the embedding backend state
// alongside overall service liveness.
func (h *APIHandlers) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	embeddingStatus := "ready"
	if err := h.gateway.Load(r.Context()); err != nil {
		status = "degraded"
		embeddingStatus = err.Error()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"embedding": embeddingStatus,
		"dimension": h.gateway.Dimension(),
	})
}
