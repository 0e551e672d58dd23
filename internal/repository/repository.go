// Package repository declares the storage interfaces the service layer
// depends on. Implementations live in subpackages (see repository/sqlite).
package repository

import (
	"context"

	"github.com/sakif/code-sandbox/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
	// Language, when set, keeps only snippets in that canonical language.
	Language string
}

type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	List(ctx context.Context, opts ListOptions) ([]model.Snippet, error)
	Update(ctx context.Context, snippet *model.Snippet) error
	Delete(ctx context.Context, id string) error
	// RecordRun stores run as the snippet's last run without touching
	// UpdatedAt.
	RecordRun(ctx context.Context, id string, run model.RunInfo) error
}
