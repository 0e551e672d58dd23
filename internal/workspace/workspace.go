// Package workspace stages submitted source code in a request-scoped
// temporary directory.
//
// LIFECYCLE:
//
//	Manager.With(source, ".py", fn)
//	  1. os.MkdirTemp(root, "sandbox-*")   → fresh directory, unique per call
//	  2. write <dir>/Main.py               → exact bytes, no transcoding
//	  3. fn(Workspace{Dir, SourcePath, OutputPath})
//	  4. os.RemoveAll(dir)                 → deferred, runs even if fn panics
//
// A Workspace is owned by exactly one call and is gone by the time With
// returns. Nothing is shared between calls, so no locking is needed.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sakif/code-sandbox/internal/apperror"
)

const (
	// SourceBase is the file name (without extension) of the staged source.
	// Java requires it to match the public class name.
	SourceBase = "Main"
	// ArtifactName is the compiled output inside the workspace.
	ArtifactName = "a.out"

	dirPattern = "sandbox-*"
)

// Workspace is one request's staging directory.
type Workspace struct {
	Dir        string
	SourcePath string
	OutputPath string
}

// Manager creates workspaces under Root. An empty Root means os.TempDir().
type Manager struct {
	Root string
}

// NewManager returns a Manager rooted at root.
func NewManager(root string) *Manager {
	return &Manager{Root: root}
}

// With creates a workspace, writes source into it and calls fn. The
// directory is removed before With returns, on every path.
//
// Errors creating, writing or removing the directory wrap
// apperror.ErrInfrastructure. An error returned by fn is passed through
// unchanged; if removal also fails, both are joined.
func (m *Manager) With(source, extension string, fn func(Workspace) error) (err error) {
	dir, err := os.MkdirTemp(m.Root, dirPattern)
	if err != nil {
		return apperror.Infrastructure("creating workspace", err)
	}

	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			cleanupErr := apperror.Infrastructure("removing workspace", rmErr)
			if err == nil {
				err = cleanupErr
			} else {
				err = fmt.Errorf("%w; %w", err, cleanupErr)
			}
		}
	}()

	ws := Workspace{
		Dir:        dir,
		SourcePath: filepath.Join(dir, SourceBase+extension),
		OutputPath: filepath.Join(dir, ArtifactName),
	}

	if err := os.WriteFile(ws.SourcePath, []byte(source), 0o644); err != nil {
		return apperror.Infrastructure("writing source file", err)
	}

	return fn(ws)
}
