package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/sakif/code-sandbox/internal/apperror"
	"github.com/sakif/code-sandbox/internal/executor"
	"github.com/sakif/code-sandbox/internal/language"
	"github.com/sakif/code-sandbox/internal/model"
	"github.com/sakif/code-sandbox/internal/repository"
)

// =========================================================================
// MOCK REPOSITORY
// =========================================================================

type mockSnippetRepo struct {
	snippets  map[string]*model.Snippet
	nextID    int
	recordErr error
	lastOpts  repository.ListOptions
}

func newMockRepo() *mockSnippetRepo {
	return &mockSnippetRepo{
		snippets: make(map[string]*model.Snippet),
	}
}

func (m *mockSnippetRepo) Create(_ context.Context, snippet *model.Snippet) error {
	m.nextID++
	snippet.ID = fmt.Sprintf("mock-%d", m.nextID)
	stored := *snippet
	m.snippets[snippet.ID] = &stored
	return nil
}

func (m *mockSnippetRepo) GetByID(_ context.Context, id string) (*model.Snippet, error) {
	snippet, ok := m.snippets[id]
	if !ok {
		return nil, apperror.NotFound("snippet", id)
	}
	result := *snippet
	return &result, nil
}

func (m *mockSnippetRepo) List(_ context.Context, opts repository.ListOptions) ([]model.Snippet, error) {
	m.lastOpts = opts
	result := make([]model.Snippet, 0, len(m.snippets))
	for _, s := range m.snippets {
		if opts.Language != "" && s.Language != opts.Language {
			continue
		}
		result = append(result, *s)
	}
	if opts.Offset >= len(result) {
		return []model.Snippet{}, nil
	}
	result = result[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

func (m *mockSnippetRepo) Update(_ context.Context, snippet *model.Snippet) error {
	if _, ok := m.snippets[snippet.ID]; !ok {
		return apperror.NotFound("snippet", snippet.ID)
	}
	stored := *snippet
	m.snippets[snippet.ID] = &stored
	return nil
}

func (m *mockSnippetRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.snippets[id]; !ok {
		return apperror.NotFound("snippet", id)
	}
	delete(m.snippets, id)
	return nil
}

func (m *mockSnippetRepo) RecordRun(_ context.Context, id string, run model.RunInfo) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	s, ok := m.snippets[id]
	if !ok {
		return apperror.NotFound("snippet", id)
	}
	s.LastRun = &run
	return nil
}

// =========================================================================
// FAKE EXECUTOR
// =========================================================================

type fakeExecutor struct {
	requests []executor.ExecutionRequest
	result   *executor.ExecutionResult
	err      error
}

func (f *fakeExecutor) Execute(_ context.Context, req executor.ExecutionRequest) (*executor.ExecutionResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &executor.ExecutionResult{
		ID:     "exec-1",
		Stdout: "out:" + req.Stdin,
		Phase:  executor.PhaseRun,
	}, nil
}

// =========================================================================
// TEST HELPERS
// =========================================================================

func newTestService(t *testing.T) (*SnippetService, *mockSnippetRepo, *fakeExecutor) {
	t.Helper()
	repo := newMockRepo()
	exec := &fakeExecutor{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewSnippetService(repo, language.Default(), exec, logger), repo, exec
}

func pyInput(title string) SnippetInput {
	return SnippetInput{Title: title, Language: "python", Code: "print(input())"}
}

func mustCreate(t *testing.T, svc *SnippetService, in SnippetInput, owner string) *model.Snippet {
	t.Helper()
	s, err := svc.Create(context.Background(), in, owner)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return s
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestCreate_Success(t *testing.T) {
	svc, _, _ := newTestService(t)

	snippet := mustCreate(t, svc, SnippetInput{
		Title:    "  hello world  ",
		Language: " Py ",
		Code:     "print('hi')",
		Stdin:    "x",
	}, "client-a")

	if snippet.ID == "" {
		t.Error("expected snippet to have an ID")
	}
	if snippet.Title != "hello world" {
		t.Errorf("Title = %q, want trimmed %q", snippet.Title, "hello world")
	}
	if snippet.Language != "python" {
		t.Errorf("Language = %q, want canonical %q", snippet.Language, "python")
	}
	if snippet.Owner != "client-a" {
		t.Errorf("Owner = %q, want %q", snippet.Owner, "client-a")
	}
	if snippet.Stdin != "x" {
		t.Errorf("Stdin = %q, want %q", snippet.Stdin, "x")
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		in   SnippetInput
		want error
	}{
		{"empty title", SnippetInput{Language: "python", Code: "x"}, apperror.ErrValidation},
		{"whitespace title", SnippetInput{Title: "   ", Language: "python", Code: "x"}, apperror.ErrValidation},
		{"title too long", SnippetInput{Title: strings.Repeat("a", MaxTitleLength+1), Language: "python", Code: "x"}, apperror.ErrValidation},
		{"missing language", SnippetInput{Title: "t", Code: "x"}, apperror.ErrValidation},
		{"unknown language", SnippetInput{Title: "t", Language: "cobol", Code: "x"}, apperror.ErrUnsupportedLanguage},
		{"blank code", SnippetInput{Title: "t", Language: "python", Code: " \n\t"}, apperror.ErrValidation},
		{"code too long", SnippetInput{Title: "t", Language: "python", Code: strings.Repeat("x", MaxCodeLength+1)}, apperror.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService(t)

			_, err := svc.Create(context.Background(), tt.in, "")
			if !errors.Is(err, tt.want) {
				t.Errorf("Create() error = %v, want %v", err, tt.want)
			}
			if len(repo.snippets) != 0 {
				t.Errorf("invalid snippet was stored")
			}
		})
	}
}

// =========================================================================
// GET / LIST TESTS
// =========================================================================

func TestGetByID(t *testing.T) {
	svc, _, _ := newTestService(t)
	created := mustCreate(t, svc, pyInput("find me"), "")

	found, err := svc.GetByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Title != "find me" {
		t.Errorf("Title = %q, want %q", found.Title, "find me")
	}

	_, err = svc.GetByID(context.Background(), "nope")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID(nope) error = %v, want ErrNotFound", err)
	}

	_, err = svc.GetByID(context.Background(), "  ")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("GetByID(blank) error = %v, want ErrValidation", err)
	}
}

func TestList_ClampsBadValues(t *testing.T) {
	svc, repo, _ := newTestService(t)

	if _, err := svc.List(context.Background(), "", -5, -10); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if repo.lastOpts.Limit != DefaultListLimit || repo.lastOpts.Offset != 0 {
		t.Errorf("List(-5, -10) passed %+v", repo.lastOpts)
	}

	if _, err := svc.List(context.Background(), "", 5000, 0); err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if repo.lastOpts.Limit != MaxListLimit {
		t.Errorf("List(5000) limit = %d, want %d", repo.lastOpts.Limit, MaxListLimit)
	}
}

func TestList_LanguageFilterAcceptsAliases(t *testing.T) {
	svc, repo, _ := newTestService(t)
	mustCreate(t, svc, pyInput("py"), "")
	mustCreate(t, svc, SnippetInput{Title: "js", Language: "javascript", Code: "1"}, "")

	snippets, err := svc.List(context.Background(), "PY", 0, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if repo.lastOpts.Language != "python" {
		t.Errorf("filter = %q, want canonical python", repo.lastOpts.Language)
	}
	if len(snippets) != 1 {
		t.Errorf("List(PY) returned %d snippets, want 1", len(snippets))
	}

	_, err = svc.List(context.Background(), "cobol", 0, 0)
	if !errors.Is(err, apperror.ErrUnsupportedLanguage) {
		t.Errorf("List(cobol) error = %v, want ErrUnsupportedLanguage", err)
	}
}

// =========================================================================
// UPDATE TESTS
// =========================================================================

func TestUpdate_Success(t *testing.T) {
	svc, _, _ := newTestService(t)
	created := mustCreate(t, svc, pyInput("before"), "client-a")

	updated, err := svc.Update(context.Background(), created.ID, SnippetInput{
		Language: "rb",
		Code:     "puts gets",
		Stdin:    "in",
	}, "client-a")
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if updated.Title != "before" {
		t.Errorf("Title = %q, empty title should keep %q", updated.Title, "before")
	}
	if updated.Language != "ruby" {
		t.Errorf("Language = %q, want ruby", updated.Language)
	}
	if updated.Code != "puts gets" || updated.Stdin != "in" {
		t.Errorf("Code/Stdin = %q/%q", updated.Code, updated.Stdin)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Update(context.Background(), "missing", pyInput("x"), "")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestUpdate_RejectsBadInput(t *testing.T) {
	svc, repo, _ := newTestService(t)
	created := mustCreate(t, svc, pyInput("keep"), "")

	_, err := svc.Update(context.Background(), created.ID, SnippetInput{Language: "cobol", Code: "x"}, "")
	if !errors.Is(err, apperror.ErrUnsupportedLanguage) {
		t.Errorf("Update(cobol) error = %v, want ErrUnsupportedLanguage", err)
	}
	_, err = svc.Update(context.Background(), created.ID, SnippetInput{Code: ""}, "")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Update(empty code) error = %v, want ErrValidation", err)
	}
	if repo.snippets[created.ID].Code != "print(input())" {
		t.Error("rejected update changed the stored snippet")
	}
}

// TestUpdate_WrongOwner ensures a client that doesn't own the snippet gets ErrForbidden.
func TestUpdate_WrongOwner(t *testing.T) {
	svc, _, _ := newTestService(t)
	created := mustCreate(t, svc, pyInput("mine"), "client-a")

	_, err := svc.Update(context.Background(), created.ID, pyInput("theirs"), "client-b")
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("error = %v, want ErrForbidden", err)
	}

	_, err = svc.Update(context.Background(), created.ID, pyInput("anonymous"), "")
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("anonymous update error = %v, want ErrForbidden", err)
	}
}

func TestUpdate_UnownedIsOpen(t *testing.T) {
	svc, _, _ := newTestService(t)
	created := mustCreate(t, svc, pyInput("shared"), "")

	if _, err := svc.Update(context.Background(), created.ID, pyInput("edited"), "client-b"); err != nil {
		t.Errorf("Update() of unowned snippet error = %v", err)
	}
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestDelete_Success(t *testing.T) {
	svc, _, _ := newTestService(t)
	created := mustCreate(t, svc, pyInput("bye"), "client-a")

	if err := svc.Delete(context.Background(), created.ID, "client-a"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, err := svc.GetByID(context.Background(), created.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}
}

func TestDelete_EmptyID(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.Delete(context.Background(), "", "")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Delete() error = %v, want ErrValidation", err)
	}
}

// TestDelete_WrongOwner ensures a client that doesn't own the snippet gets ErrForbidden.
func TestDelete_WrongOwner(t *testing.T) {
	svc, repo, _ := newTestService(t)
	created := mustCreate(t, svc, pyInput("mine"), "client-a")

	err := svc.Delete(context.Background(), created.ID, "client-b")
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("error = %v, want ErrForbidden", err)
	}
	if _, ok := repo.snippets[created.ID]; !ok {
		t.Error("snippet was deleted by a client that does not own it")
	}
}

// =========================================================================
// RUN TESTS
// =========================================================================

func TestRun_UsesStoredInput(t *testing.T) {
	svc, repo, exec := newTestService(t)
	in := pyInput("echo")
	in.Stdin = "stored"
	created := mustCreate(t, svc, in, "client-a")

	result, err := svc.Run(context.Background(), created.ID, "client-a", nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Stdout != "out:stored" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "out:stored")
	}

	if len(exec.requests) != 1 {
		t.Fatalf("executor called %d times, want 1", len(exec.requests))
	}
	req := exec.requests[0]
	if req.Language != "python" || req.Code != "print(input())" {
		t.Errorf("request = %+v", req)
	}

	last := repo.snippets[created.ID].LastRun
	if last == nil {
		t.Fatal("Run() did not record the run")
	}
	if last.Stdout != "out:stored" || last.Phase != "RUN" || last.RanAt.IsZero() {
		t.Errorf("LastRun = %+v", last)
	}
}

func TestRun_OverridesInput(t *testing.T) {
	svc, _, exec := newTestService(t)
	created := mustCreate(t, svc, pyInput("echo"), "")

	override := ""
	if _, err := svc.Run(context.Background(), created.ID, "", &override); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if exec.requests[0].Stdin != "" {
		t.Errorf("Stdin = %q, want explicit empty override", exec.requests[0].Stdin)
	}
}

func TestRun_RecordsFailures(t *testing.T) {
	svc, repo, exec := newTestService(t)
	exec.result = &executor.ExecutionResult{
		Stderr:     "Main.java:1: error",
		StatusCode: 1,
		Phase:      executor.PhaseCompile,
	}
	created := mustCreate(t, svc, pyInput("broken"), "")

	result, err := svc.Run(context.Background(), created.ID, "", nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Phase != executor.PhaseCompile {
		t.Errorf("Phase = %q, want COMPILE", result.Phase)
	}
	last := repo.snippets[created.ID].LastRun
	if last == nil || last.StatusCode != 1 || last.Phase != "COMPILE" {
		t.Errorf("LastRun = %+v", last)
	}
}

func TestRun_RecordFailureKeepsResult(t *testing.T) {
	svc, repo, _ := newTestService(t)
	created := mustCreate(t, svc, pyInput("echo"), "")
	repo.recordErr = errors.New("disk full")

	result, err := svc.Run(context.Background(), created.ID, "", nil)
	if err != nil {
		t.Fatalf("Run() error = %v, want the result despite the record failure", err)
	}
	if result == nil || result.Phase != executor.PhaseRun {
		t.Errorf("result = %+v", result)
	}
}

func TestRun_Errors(t *testing.T) {
	svc, _, exec := newTestService(t)
	created := mustCreate(t, svc, pyInput("mine"), "client-a")

	_, err := svc.Run(context.Background(), "missing", "client-a", nil)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Run(missing) error = %v, want ErrNotFound", err)
	}

	_, err = svc.Run(context.Background(), created.ID, "client-b", nil)
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("Run(wrong owner) error = %v, want ErrForbidden", err)
	}

	exec.err = apperror.ValidationFailed("input", "input exceeds 10 bytes")
	_, err = svc.Run(context.Background(), created.ID, "client-a", nil)
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("Run() executor error = %v, want ErrValidation", err)
	}
}
