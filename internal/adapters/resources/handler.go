// Package resources binds resource pipelines to HTTP routes:
//
//	GET    /v1/{entity}        list
//	POST   /v1/{entity}        create
//	GET    /v1/{entity}/{id}   fetch
//	PUT    /v1/{entity}/{id}   update (PATCH is accepted as an alias)
//	DELETE /v1/{entity}/{id}   delete
//
// Trailing slashes are ignored.
package resources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"go.uber.org/zap"

	"resourcechassis/internal/core"
	"resourcechassis/pkg/domain"
)

// MsgInvalidJSON is returned for request bodies that are not a JSON object.
const MsgInvalidJSON = "Invalid JSON payload"

const maxBodyBytes = 1 << 20

// Resource is the pipeline surface served over HTTP. *core.Pipeline
// implements it.
type Resource interface {
	Descriptor() domain.Descriptor
	Create(ctx context.Context, credential string, payload map[string]any) (core.Response, error)
	List(ctx context.Context, credential string, q core.ListQuery) (core.Response, error)
	Get(ctx context.Context, credential, rawID string) (core.Response, error)
	Update(ctx context.Context, credential, rawID string, payload map[string]any) (core.Response, error)
	Delete(ctx context.Context, credential, rawID string) (core.Response, error)
}

var _ Resource = (*core.Pipeline)(nil)

type handler struct {
	log      *zap.Logger
	resource Resource
}

// NewRouter mounts each resource under /v1/<entity>.
func NewRouter(log *zap.Logger, resources ...Resource) (chi.Router, error) {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes, middleware.RequestID)
	seen := make(map[domain.EntityType]bool, len(resources))
	for _, res := range resources {
		entity := res.Descriptor().Entity
		if seen[entity] {
			return nil, fmt.Errorf("resource %q mounted twice", entity)
		}
		seen[entity] = true
		r.Mount("/v1/"+string(entity), newHandler(log, res))
	}
	return r, nil
}

func newHandler(log *zap.Logger, res Resource) http.Handler {
	h := &handler{
		log:      log.With(zap.String("entity", string(res.Descriptor().Entity))),
		resource: res,
	}
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Patch("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
	return r
}

func credential(r *http.Request) string {
	return core.BearerCredential(r.Header.Get("Authorization"))
}

// firstQuery returns the first non-empty query parameter among names.
func firstQuery(r *http.Request, names ...string) string {
	q := r.URL.Query()
	for _, n := range names {
		if v := q.Get(n); v != "" {
			return v
		}
	}
	return ""
}

func (h *handler) handleList(w http.ResponseWriter, r *http.Request) {
	resp, err := h.resource.List(r.Context(), credential(r), core.ListQuery{
		Page:     firstQuery(r, "page"),
		PageSize: firstQuery(r, "page_size", "pageSize"),
		Ordering: firstQuery(r, "ordering"),
	})
	h.respond(w, r, resp, err)
}

func (h *handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	resp, err := h.resource.Create(r.Context(), credential(r), payload)
	h.respond(w, r, resp, err)
}

func (h *handler) handleGet(w http.ResponseWriter, r *http.Request) {
	resp, err := h.resource.Get(r.Context(), credential(r), chi.URLParam(r, "id"))
	h.respond(w, r, resp, err)
}

func (h *handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	resp, err := h.resource.Update(r.Context(), credential(r), chi.URLParam(r, "id"), payload)
	h.respond(w, r, resp, err)
}

func (h *handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	resp, err := h.resource.Delete(r.Context(), credential(r), chi.URLParam(r, "id"))
	h.respond(w, r, resp, err)
}

// decode reads a JSON object body, keeping numbers as json.Number so integer
// fields survive without float rounding.
func (h *handler) decode(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil || len(body) > maxBodyBytes {
		h.writeJSON(w, r, http.StatusBadRequest, core.MessageBody{Message: MsgInvalidJSON})
		return nil, false
	}
	var payload map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil || payload == nil || dec.More() {
		h.log.Debug("rejecting request body", zap.Error(err))
		h.writeJSON(w, r, http.StatusBadRequest, core.MessageBody{Message: MsgInvalidJSON})
		return nil, false
	}
	return payload, true
}

// respond writes a pipeline response. Fatal errors become a bare 500 so no
// partial record is ever exposed.
func (h *handler) respond(w http.ResponseWriter, r *http.Request, resp core.Response, err error) {
	if err != nil {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		h.writeJSON(w, r, http.StatusInternalServerError, core.MessageBody{Message: core.MsgInternalError})
		return
	}
	if resp.Body == nil {
		w.WriteHeader(resp.Status)
		return
	}
	h.writeJSON(w, r, resp.Status, resp.Body)
}

func (h *handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	b, err := json.Marshal(body)
	if err != nil {
		h.log.Error("encode response", zap.String("path", r.URL.Path), zap.Error(err))
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"`+core.MsgInternalError+`"}`)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
