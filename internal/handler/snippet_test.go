package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/code-sandbox/internal/auth"
	"github.com/sakif/code-sandbox/internal/executor"
	"github.com/sakif/code-sandbox/internal/handler"
	"github.com/sakif/code-sandbox/internal/language"
	"github.com/sakif/code-sandbox/internal/model"
	sqliteRepo "github.com/sakif/code-sandbox/internal/repository/sqlite"
	"github.com/sakif/code-sandbox/internal/service"
)

const testSecret = "handler-test-secret-0123456789"

type snippetAPI struct {
	router http.Handler
	exec   *MockExecutor
	tokens *auth.TokenService
}

func newSnippetAPI(t *testing.T) *snippetAPI {
	t.Helper()
	db, err := sqliteRepo.New(sqliteRepo.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	exec := &MockExecutor{ReturnRes: &executor.ExecutionResult{
		ID:     "exec-1",
		Stdout: "8\n",
		Phase:  executor.PhaseRun,
	}}
	svc := service.NewSnippetService(db, language.Default(), exec, testLogger())
	h := handler.NewSnippetHandler(svc, testLogger())

	tokens, err := auth.NewTokenService(testSecret)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.RequireToken(tokens))
		r.Get("/snippets", h.HandleList)
		r.Post("/snippets", h.HandleCreate)
		r.Get("/snippets/{id}", h.HandleGetByID)
		r.Put("/snippets/{id}", h.HandleUpdate)
		r.Delete("/snippets/{id}", h.HandleDelete)
		r.Post("/snippets/{id}/run", h.HandleRun)
	})
	return &snippetAPI{router: r, exec: exec, tokens: tokens}
}

func (a *snippetAPI) do(t *testing.T, client, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := a.tokens.Generate(client, 0)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func TestSnippetHandler_Lifecycle(t *testing.T) {
	api := newSnippetAPI(t)

	// Create
	rr := api.do(t, "alice", http.MethodPost, "/api/snippets",
		`{"title":"sum","language":"py","code":"print(int(input())+int(input()))","input":"5\n3\n"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[model.Snippet](t, rr)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "python", created.Language)
	assert.Equal(t, "alice", created.Owner)

	// Get
	rr = api.do(t, "bob", http.MethodGet, "/api/snippets/"+created.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "sum", decode[model.Snippet](t, rr).Title)

	// List with a language filter
	rr = api.do(t, "bob", http.MethodGet, "/api/snippets?language=python&limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[[]model.Snippet](t, rr), 1)

	rr = api.do(t, "bob", http.MethodGet, "/api/snippets?language=ruby", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[[]model.Snippet](t, rr))

	// Run with the saved input, then check it was recorded.
	rr = api.do(t, "alice", http.MethodPost, "/api/snippets/"+created.ID+"/run", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	result := decode[handler.ExecuteResponse](t, rr)
	assert.Equal(t, "8\n", result.Output)
	assert.Equal(t, "5\n3\n", api.exec.Captured().Stdin)

	rr = api.do(t, "alice", http.MethodGet, "/api/snippets/"+created.ID, "")
	last := decode[model.Snippet](t, rr).LastRun
	require.NotNil(t, last)
	assert.Equal(t, "8\n", last.Stdout)

	// Run with an input override.
	rr = api.do(t, "alice", http.MethodPost, "/api/snippets/"+created.ID+"/run", `{"input":"1\n1\n"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "1\n1\n", api.exec.Captured().Stdin)

	// Update
	rr = api.do(t, "alice", http.MethodPut, "/api/snippets/"+created.ID,
		`{"code":"print(2)","language":"python3"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	updated := decode[model.Snippet](t, rr)
	assert.Equal(t, "print(2)", updated.Code)
	assert.Equal(t, "sum", updated.Title)

	// Delete
	rr = api.do(t, "alice", http.MethodDelete, "/api/snippets/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = api.do(t, "alice", http.MethodGet, "/api/snippets/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSnippetHandler_Errors(t *testing.T) {
	api := newSnippetAPI(t)

	rr := api.do(t, "alice", http.MethodPost, "/api/snippets", `{"title":"x","language":"python","code":"print(1)"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	id := decode[model.Snippet](t, rr).ID

	tests := []struct {
		name      string
		client    string
		method    string
		path      string
		body      string
		wantCode  int
		wantError string
	}{
		{"missing title", "alice", http.MethodPost, "/api/snippets", `{"language":"python","code":"x"}`, http.StatusBadRequest, "validation_error"},
		{"unknown language", "alice", http.MethodPost, "/api/snippets", `{"title":"t","language":"cobol","code":"x"}`, http.StatusBadRequest, "unsupported_language"},
		{"bad json", "alice", http.MethodPost, "/api/snippets", `{"title":`, http.StatusBadRequest, "validation_error"},
		{"not found", "alice", http.MethodGet, "/api/snippets/nope", "", http.StatusNotFound, "not_found"},
		{"update by other client", "bob", http.MethodPut, "/api/snippets/" + id, `{"code":"print(3)"}`, http.StatusForbidden, "forbidden"},
		{"delete by other client", "bob", http.MethodDelete, "/api/snippets/" + id, "", http.StatusForbidden, "forbidden"},
		{"run by other client", "bob", http.MethodPost, "/api/snippets/" + id + "/run", "", http.StatusForbidden, "forbidden"},
		{"bad list filter", "alice", http.MethodGet, "/api/snippets?language=cobol", "", http.StatusBadRequest, "unsupported_language"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := api.do(t, tc.client, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.wantCode, rr.Code, rr.Body.String())
			assert.Equal(t, tc.wantError, decode[handler.ErrorResponse](t, rr).Error)
		})
	}
}

func TestSnippetHandler_RequiresToken(t *testing.T) {
	api := newSnippetAPI(t)

	req := httptest.NewRequestWithContext(context.Background(), http.MethodGet, "/api/snippets", nil)
	rr := httptest.NewRecorder()
	api.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
