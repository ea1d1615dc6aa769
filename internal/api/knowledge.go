package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/resourceburglar/localqa/internal/config"
	"github.com/resourceburglar/localqa/internal/ingest"
	"github.com/resourceburglar/localqa/internal/log"
	"github.com/resourceburglar/localqa/internal/store"
)

// maxUploadBytes bounds the size of one knowledge-base upload.
const maxUploadBytes = 16 << 20

// NamespaceStore is the namespace repository surface the API needs.
type NamespaceStore interface {
	Create(ctx context.Context, name, title string, kind int16) (*store.Namespace, error)
	List(ctx context.Context) ([]store.Namespace, error)
}

// knowledgeHandler serves knowledge-base ingestion and namespace management.
type knowledgeHandler struct {
	ingest     *ingest.Service
	namespaces NamespaceStore
	cfg        *config.Config
	logger     log.Logger
}

type uploadResponse struct {
	FileID    int64    `json:"file_id"`
	VectorIDs []string `json:"vector_ids"`
}

// upload ingests one document into a namespace. The document arrives as a
// multipart file plus form fields for the namespace and optional chunk
// overrides.
func (h *knowledgeHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondBadRequest(w, h.logger, "expected multipart form upload")
		return
	}

	namespace := r.FormValue("namespace")
	if namespace == "" {
		respondBadRequest(w, h.logger, "namespace is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondBadRequest(w, h.logger, "file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respondBadRequest(w, h.logger, "failed to read uploaded file")
		return
	}

	record := &store.NamespaceFile{
		Namespace:    namespace,
		FileName:     header.Filename,
		Content:      string(content),
		MediaType:    header.Header.Get("Content-Type"),
		SizeBytes:    int64(len(content)),
		ChunkSize:    formInt(r, "chunk_size", h.cfg.ChunkSize),
		ChunkOverlap: formInt(r, "chunk_overlap", h.cfg.ChunkOverlap),
	}

	stored, vectorIDs, err := h.ingest.Upload(r.Context(), record)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	h.logger.Info("document ingested",
		"namespace", namespace, "file", header.Filename, "vectors", len(vectorIDs))
	respondOK(w, h.logger, uploadResponse{FileID: stored.ID, VectorIDs: vectorIDs})
}

type deleteVectorsRequest struct {
	Namespace string   `json:"namespace"`
	VectorIDs []string `json:"vector_ids"`
	All       bool     `json:"all"`
}

// deleteVectors removes vectors from a namespace, either selected ids or the
// whole collection.
func (h *knowledgeHandler) deleteVectors(w http.ResponseWriter, r *http.Request) {
	var req deleteVectorsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, h.logger, err.Error())
		return
	}
	if req.Namespace == "" {
		respondBadRequest(w, h.logger, "namespace is required")
		return
	}
	if !req.All && len(req.VectorIDs) == 0 {
		respondBadRequest(w, h.logger, "vector_ids is required unless all is set")
		return
	}

	ids := req.VectorIDs
	if req.All {
		ids = nil
	}
	if err := h.ingest.DeleteVectors(r.Context(), req.Namespace, ids); err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondOK(w, h.logger, nil)
}

// deleteFile removes one uploaded file: its vectors are dropped from the
// index and the queue row is soft-deleted.
func (h *knowledgeHandler) deleteFile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		respondBadRequest(w, h.logger, "file id must be a positive integer")
		return
	}

	if err := h.ingest.DeleteFile(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, h.logger, http.StatusNotFound,
				envelope{Status: http.StatusNotFound, Message: "file not found"})
			return
		}
		respondError(w, h.logger, err)
		return
	}
	respondOK(w, h.logger, nil)
}

type createNamespaceRequest struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Kind  int16  `json:"kind"`
}

func (h *knowledgeHandler) createNamespace(w http.ResponseWriter, r *http.Request) {
	var req createNamespaceRequest
	if err := decodeJSON(r, &req); err != nil {
		respondBadRequest(w, h.logger, err.Error())
		return
	}
	if req.Name == "" {
		respondBadRequest(w, h.logger, "name is required")
		return
	}
	switch req.Kind {
	case store.NamespacePermanent, store.NamespaceTemporary, store.NamespaceQAPrepared:
	default:
		respondBadRequest(w, h.logger, "kind must be 0, 1 or 2")
		return
	}

	ns, err := h.namespaces.Create(r.Context(), req.Name, req.Title, req.Kind)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondOK(w, h.logger, ns)
}

func (h *knowledgeHandler) listNamespaces(w http.ResponseWriter, r *http.Request) {
	all, err := h.namespaces.List(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondOK(w, h.logger, all)
}

// decodeJSON decodes a bounded JSON request body, rejecting unknown fields.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

// formInt reads an optional integer form value, falling back when absent or
// unparseable.
func formInt(r *http.Request, field string, fallback int) int {
	raw := r.FormValue(field)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
