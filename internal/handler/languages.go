package handler

import (
	"net/http"

	"github.com/sakif/code-sandbox/internal/language"
)

// LanguageInfo describes one registered language.
type LanguageInfo struct {
	ID        string   `json:"id"`
	Extension string   `json:"extension"`
	Aliases   []string `json:"aliases,omitempty"`
	Compiled  bool     `json:"compiled"`
	Available bool     `json:"available"`
}

// AvailabilityFunc reports whether a language can run on the active backend.
type AvailabilityFunc func(language.Spec) bool

// LocalAvailability checks the host PATH for the language's toolchain.
func LocalAvailability(spec language.Spec) bool {
	return len(spec.MissingBinaries()) == 0
}

// LanguagesHandler lists the language registry.
type LanguagesHandler struct {
	registry  *language.Registry
	available AvailabilityFunc
}

func NewLanguagesHandler(registry *language.Registry, available AvailabilityFunc) *LanguagesHandler {
	if available == nil {
		available = LocalAvailability
	}
	return &LanguagesHandler{registry: registry, available: available}
}

// Languages returns the registry listing sorted by id.
func (h *LanguagesHandler) Languages() []LanguageInfo {
	specs := h.registry.Languages()
	out := make([]LanguageInfo, 0, len(specs))
	for _, spec := range specs {
		out = append(out, LanguageInfo{
			ID:        spec.ID,
			Extension: spec.Extension,
			Aliases:   spec.Aliases,
			Compiled:  spec.Compiles(),
			Available: h.available(spec),
		})
	}
	return out
}

// HandleList returns every supported language.
//
// HTTP: GET /api/languages
func (h *LanguagesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Languages())
}
