package language

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// Toolchain builds the argument vectors for one language family.
//
// Builders are pure: the same paths always yield the same argv, and nothing
// touches the filesystem. src is the staged source file, out the artifact
// path inside the same workspace.
type Toolchain interface {
	// Compiles reports whether a separate compile step exists.
	Compiles() bool
	// CompileCommand returns nil when Compiles is false.
	CompileCommand(src, out string) []string
	RunCommand(src, out string) []string
}

// Interpreted runs the source file directly: Command... src.
type Interpreted struct {
	Command []string
}

func (i Interpreted) Compiles() bool { return false }

func (i Interpreted) CompileCommand(_, _ string) []string { return nil }

func (i Interpreted) RunCommand(src, _ string) []string {
	argv := slices.Clone(i.Command)
	return append(argv, src)
}

// Compiled has a distinct compile step producing an artifact. Run only
// receives the artifact path, so a run command can never reference source.
type Compiled struct {
	Compile func(src, out string) []string
	Run     func(out string) []string
}

func (c Compiled) Compiles() bool { return true }

func (c Compiled) CompileCommand(src, out string) []string { return c.Compile(src, out) }

func (c Compiled) RunCommand(_, out string) []string { return c.Run(out) }

// Template placeholders.
const (
	PlaceholderSource = "{source}"
	PlaceholderOutput = "{output}"
	PlaceholderDir    = "{dir}"
)

// Template is a toolchain declared in configuration. Each argv element may
// contain {source}, {output} or {dir}; an empty Compile means interpreted.
type Template struct {
	Compile []string
	Run     []string
}

// NewTemplate validates a configured toolchain. A compiled template's run
// command may not mention {source}.
func NewTemplate(compile, run []string) (Template, error) {
	if len(run) == 0 {
		return Template{}, fmt.Errorf("run command is required")
	}
	if len(compile) > 0 {
		for _, arg := range run {
			if strings.Contains(arg, PlaceholderSource) {
				return Template{}, fmt.Errorf("run command of a compiled language cannot reference %s", PlaceholderSource)
			}
		}
	}
	return Template{Compile: slices.Clone(compile), Run: slices.Clone(run)}, nil
}

func (t Template) Compiles() bool { return len(t.Compile) > 0 }

func (t Template) CompileCommand(src, out string) []string {
	if !t.Compiles() {
		return nil
	}
	return expand(t.Compile, src, out)
}

func (t Template) RunCommand(src, out string) []string {
	return expand(t.Run, src, out)
}

func expand(args []string, src, out string) []string {
	r := strings.NewReplacer(
		PlaceholderSource, src,
		PlaceholderOutput, out,
		PlaceholderDir, filepath.Dir(out),
	)
	argv := make([]string, len(args))
	for i, arg := range args {
		argv[i] = r.Replace(arg)
	}
	return argv
}
