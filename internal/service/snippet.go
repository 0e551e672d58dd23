// Package service contains the business rules that sit between the HTTP
// handlers and storage.
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, checks ownership, runs code
//	Repository (data layer)  → reads/writes the database
//
// SnippetService depends on interfaces only, so tests inject an in-memory
// repository and a fake executor.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/code-sandbox/internal/apperror"
	"github.com/sakif/code-sandbox/internal/executor"
	"github.com/sakif/code-sandbox/internal/language"
	"github.com/sakif/code-sandbox/internal/model"
	"github.com/sakif/code-sandbox/internal/repository"
)

const (
	MaxTitleLength   = 100
	MaxCodeLength    = 100000 // ~100KB of code
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// LanguageResolver maps a user-supplied language name to its canonical spec.
// *language.Registry satisfies it.
type LanguageResolver interface {
	Resolve(id string) (language.Spec, error)
}

// SnippetInput carries the editable fields of a snippet.
type SnippetInput struct {
	Title    string
	Language string
	Code     string
	Stdin    string
}

// SnippetService handles business logic for saved snippets.
type SnippetService struct {
	repo      repository.SnippetRepository
	languages LanguageResolver
	executor  executor.Executor
	logger    *slog.Logger
}

func NewSnippetService(repo repository.SnippetRepository, languages LanguageResolver, exec executor.Executor, logger *slog.Logger) *SnippetService {
	return &SnippetService{
		repo:      repo,
		languages: languages,
		executor:  exec,
		logger:    logger,
	}
}

// Create validates and saves a new snippet owned by owner. The language is
// stored under its canonical id, so "py" and "Python" both save as "python".
func (s *SnippetService) Create(ctx context.Context, in SnippetInput, owner string) (*model.Snippet, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	if title == "" {
		return nil, apperror.ValidationFailed("title", "snippet title is required")
	}
	lang, err := s.canonicalLanguage(in.Language)
	if err != nil {
		return nil, err
	}
	if err := validateCode(in.Code); err != nil {
		return nil, err
	}

	snippet := &model.Snippet{
		Title:    title,
		Language: lang,
		Code:     in.Code,
		Stdin:    in.Stdin,
		Owner:    owner,
	}

	if err := s.repo.Create(ctx, snippet); err != nil {
		s.logger.Error("failed to create snippet",
			slog.String("title", title),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("language", snippet.Language),
	)

	return snippet, nil
}

// GetByID retrieves a snippet by its ID.
// Returns apperror.ErrNotFound if the snippet doesn't exist.
func (s *SnippetService) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "snippet ID is required")
	}
	return s.repo.GetByID(ctx, id)
}

// List returns snippets newest first. A non-empty lang filters by language
// and accepts aliases. limit is clamped to 1-100 (default 20).
func (s *SnippetService) List(ctx context.Context, lang string, limit, offset int) ([]model.Snippet, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	opts := repository.ListOptions{Limit: limit, Offset: offset}
	if strings.TrimSpace(lang) != "" {
		canonical, err := s.canonicalLanguage(lang)
		if err != nil {
			return nil, err
		}
		opts.Language = canonical
	}

	snippets, err := s.repo.List(ctx, opts)
	if err != nil {
		s.logger.Error("failed to list snippets", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing snippets: %w", err)
	}

	return snippets, nil
}

// Update modifies an existing snippet. Empty Title and Language keep the
// current values; Code and Stdin are always replaced.
func (s *SnippetService) Update(ctx context.Context, id string, in SnippetInput, owner string) (*model.Snippet, error) {
	snippet, err := s.owned(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	if title != "" {
		snippet.Title = title
	}
	if strings.TrimSpace(in.Language) != "" {
		lang, err := s.canonicalLanguage(in.Language)
		if err != nil {
			return nil, err
		}
		snippet.Language = lang
	}
	if err := validateCode(in.Code); err != nil {
		return nil, err
	}
	snippet.Code = in.Code
	snippet.Stdin = in.Stdin

	if err := s.repo.Update(ctx, snippet); err != nil {
		s.logger.Error("failed to update snippet",
			slog.String("id", snippet.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating snippet: %w", err)
	}

	s.logger.Info("snippet updated", slog.String("id", snippet.ID))
	return snippet, nil
}

// Delete removes a snippet by its ID.
func (s *SnippetService) Delete(ctx context.Context, id, owner string) error {
	snippet, err := s.owned(ctx, id, owner)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, snippet.ID); err != nil {
		return err
	}

	s.logger.Info("snippet deleted", slog.String("id", snippet.ID))
	return nil
}

// Run executes a stored snippet and records the outcome as its last run.
// stdin overrides the saved input when non-nil.
//
// The returned error follows executor.Executor: compile and runtime failures
// come back in the result. A failure to record the run is logged only.
func (s *SnippetService) Run(ctx context.Context, id, owner string, stdin *string) (*executor.ExecutionResult, error) {
	snippet, err := s.owned(ctx, id, owner)
	if err != nil {
		return nil, err
	}

	input := snippet.Stdin
	if stdin != nil {
		input = *stdin
	}

	result, err := s.executor.Execute(ctx, executor.ExecutionRequest{
		Language: snippet.Language,
		Code:     snippet.Code,
		Stdin:    input,
	})
	if err != nil {
		return nil, err
	}

	run := model.RunInfo{
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		StatusCode: result.StatusCode,
		Phase:      string(result.Phase),
		RanAt:      time.Now().UTC(),
	}
	// Record even when the caller has gone away; the run already happened.
	if err := s.repo.RecordRun(context.WithoutCancel(ctx), snippet.ID, run); err != nil {
		s.logger.Error("failed to record snippet run",
			slog.String("id", snippet.ID),
			slog.String("execution_id", result.ID),
			slog.String("error", err.Error()),
		)
	}

	return result, nil
}

// owned loads a snippet and checks that owner may change it. Snippets saved
// without an owner are open to everyone.
func (s *SnippetService) owned(ctx context.Context, id, owner string) (*model.Snippet, error) {
	snippet, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if snippet.Owner != "" && snippet.Owner != owner {
		return nil, apperror.Forbidden("snippet belongs to another client")
	}
	return snippet, nil
}

func (s *SnippetService) canonicalLanguage(lang string) (string, error) {
	if strings.TrimSpace(lang) == "" {
		return "", apperror.ValidationFailed("language", "language is required")
	}
	spec, err := s.languages.Resolve(lang)
	if err != nil {
		return "", err
	}
	return spec.ID, nil
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if len(title) > MaxTitleLength {
		return "", apperror.ValidationFailed("title",
			fmt.Sprintf("snippet title must be %d characters or less", MaxTitleLength))
	}
	return title, nil
}

func validateCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return apperror.ValidationFailed("code", "code is required")
	}
	if len(code) > MaxCodeLength {
		return apperror.ValidationFailed("code",
			fmt.Sprintf("code must be %d characters or less", MaxCodeLength))
	}
	return nil
}
