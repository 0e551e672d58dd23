package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/code-sandbox/internal/auth"
	"github.com/sakif/code-sandbox/internal/service"
)

// snippetRequest is the body of create and update requests.
type snippetRequest struct {
	Title    string `json:"title"`
	Language string `json:"language"`
	Code     string `json:"code"`
	Input    string `json:"input"`
}

func (r snippetRequest) input() service.SnippetInput {
	return service.SnippetInput{
		Title:    r.Title,
		Language: r.Language,
		Code:     r.Code,
		Stdin:    r.Input,
	}
}

// runRequest is the optional body of a run request. A missing input uses
// the snippet's saved one.
type runRequest struct {
	Input *string `json:"input"`
}

// SnippetHandler exposes saved snippets over HTTP. The caller's API client
// id (if tokens are enabled) is the snippet owner.
type SnippetHandler struct {
	snippets *service.SnippetService
	logger   *slog.Logger
}

// NewSnippetHandler creates a new SnippetHandler.
func NewSnippetHandler(snippets *service.SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{snippets: snippets, logger: logger}
}

// HandleList returns saved snippets, newest first.
//
// HTTP: GET /api/snippets?language=python&limit=20&offset=0
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	// Bad numbers fall back to the service defaults.
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	snippets, err := h.snippets.List(r.Context(), q.Get("language"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippets)
}

// HandleGetByID returns one snippet.
//
// HTTP: GET /api/snippets/{id}
func (h *SnippetHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	snippet, err := h.snippets.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleCreate saves a new snippet.
//
// HTTP: POST /api/snippets
// REQUEST BODY: {"title": "sum", "language": "python", "code": "...", "input": "5\n3\n"}
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req snippetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	owner, _ := auth.ClientIDFromContext(r.Context())
	snippet, err := h.snippets.Create(r.Context(), req.input(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, snippet)
}

// HandleUpdate replaces a snippet's code and input, and its title or
// language when given.
//
// HTTP: PUT /api/snippets/{id}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req snippetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	owner, _ := auth.ClientIDFromContext(r.Context())
	snippet, err := h.snippets.Update(r.Context(), chi.URLParam(r, "id"), req.input(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleDelete removes a snippet.
//
// HTTP: DELETE /api/snippets/{id}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	owner, _ := auth.ClientIDFromContext(r.Context())
	if err := h.snippets.Delete(r.Context(), chi.URLParam(r, "id"), owner); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRun executes a saved snippet and records the result as its last run.
//
// HTTP: POST /api/snippets/{id}/run
// REQUEST BODY (optional): {"input": "override"}
func (h *SnippetHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	owner, _ := auth.ClientIDFromContext(r.Context())
	result, err := h.snippets.Run(r.Context(), chi.URLParam(r, "id"), owner, req.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewExecuteResponse(result))
}
