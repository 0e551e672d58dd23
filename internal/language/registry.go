// Package language holds the static table of supported languages and the
// argv builders for their toolchains.
//
// A Registry is built once at startup and never changes afterwards; Extend
// returns a new Registry instead of mutating the receiver. That makes a
// *Registry safe to share between any number of concurrent executions
// without locking.
package language

import (
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/sakif/code-sandbox/internal/apperror"
)

// Spec describes one language: its id, the source file extension and the
// toolchain that compiles and/or runs it.
type Spec struct {
	ID        string
	Extension string
	Aliases   []string
	Toolchain Toolchain
}

// Compiles reports whether the language has a compile step.
func (s Spec) Compiles() bool { return s.Toolchain.Compiles() }

// Binaries returns the toolchain executables this language needs on PATH,
// in compile-then-run order and without duplicates. A run command that
// invokes the compiled artifact itself contributes nothing.
func (s Spec) Binaries() []string {
	src := filepath.Join(string(filepath.Separator)+"workspace", "Main"+s.Extension)
	out := filepath.Join(string(filepath.Separator)+"workspace", "a.out")

	var bins []string
	if argv := s.Toolchain.CompileCommand(src, out); len(argv) > 0 {
		bins = append(bins, argv[0])
	}
	if argv := s.Toolchain.RunCommand(src, out); len(argv) > 0 && argv[0] != out && !slices.Contains(bins, argv[0]) {
		bins = append(bins, argv[0])
	}
	return bins
}

// Registry maps language ids and aliases to their Spec.
type Registry struct {
	specs   map[string]Spec
	aliases map[string]string
}

// NewRegistry validates the specs and builds an immutable lookup table.
func NewRegistry(specs ...Spec) (*Registry, error) {
	reg := &Registry{
		specs:   make(map[string]Spec, len(specs)),
		aliases: make(map[string]string),
	}
	for _, spec := range specs {
		if err := reg.add(spec); err != nil {
			return nil, err
		}
	}
	if len(reg.specs) == 0 {
		return nil, fmt.Errorf("language: at least one language must be registered")
	}
	return reg, nil
}

// MustRegistry is NewRegistry for tables that are known to be valid.
func MustRegistry(specs ...Spec) *Registry {
	reg, err := NewRegistry(specs...)
	if err != nil {
		panic(err)
	}
	return reg
}

func (r *Registry) add(spec Spec) error {
	id := normalize(spec.ID)
	if id == "" {
		return fmt.Errorf("language: spec missing identifier")
	}
	if spec.Extension == "" || !strings.HasPrefix(spec.Extension, ".") {
		return fmt.Errorf("language: %q needs an extension starting with '.'", id)
	}
	if spec.Toolchain == nil {
		return fmt.Errorf("language: %q has no toolchain", id)
	}
	if r.taken(id) {
		return fmt.Errorf("language: duplicate language %q", id)
	}

	spec.ID = id
	spec.Aliases = slices.Clone(spec.Aliases)
	r.specs[id] = spec

	for _, alias := range spec.Aliases {
		alias = normalize(alias)
		if alias == "" {
			continue
		}
		if r.taken(alias) {
			return fmt.Errorf("language: alias %q of %q is already registered", alias, id)
		}
		r.aliases[alias] = id
	}
	return nil
}

func (r *Registry) taken(name string) bool {
	_, isSpec := r.specs[name]
	_, isAlias := r.aliases[name]
	return isSpec || isAlias
}

// Extend returns a new registry holding r's languages plus specs. A spec
// whose id matches an existing language replaces it (and drops its aliases).
func (r *Registry) Extend(specs ...Spec) (*Registry, error) {
	replaced := make(map[string]bool, len(specs))
	for _, spec := range specs {
		replaced[normalize(spec.ID)] = true
	}

	merged := make([]Spec, 0, len(r.specs)+len(specs))
	for _, spec := range r.Languages() {
		if !replaced[spec.ID] {
			merged = append(merged, spec)
		}
	}
	merged = append(merged, specs...)
	return NewRegistry(merged...)
}

// Resolve looks up a language by id or alias, ignoring case and surrounding
// whitespace.
func (r *Registry) Resolve(id string) (Spec, error) {
	key := normalize(id)
	if canonical, ok := r.aliases[key]; ok {
		key = canonical
	}
	spec, ok := r.specs[key]
	if !ok {
		return Spec{}, apperror.UnsupportedLanguage(strings.TrimSpace(id))
	}
	spec.Aliases = slices.Clone(spec.Aliases)
	return spec, nil
}

// Languages returns every registered spec sorted by id.
func (r *Registry) Languages() []Spec {
	out := make([]Spec, 0, len(r.specs))
	for _, spec := range r.specs {
		spec.Aliases = slices.Clone(spec.Aliases)
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func normalize(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
