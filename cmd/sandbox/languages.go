package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sakif/code-sandbox/internal/language"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the supported languages as YAML",
	Long: `List every registered language, its toolchain and whether that toolchain
is installed on this host. Languages defined in the config file are included.`,
	Args: cobra.NoArgs,
	RunE: runLanguages,
}

func init() {
	rootCmd.AddCommand(languagesCmd)
}

type languageEntry struct {
	ID        string   `yaml:"id"`
	Extension string   `yaml:"extension"`
	Aliases   []string `yaml:"aliases,omitempty"`
	Compiled  bool     `yaml:"compiled"`
	Binaries  []string `yaml:"binaries,omitempty"`
	Missing   []string `yaml:"missing,omitempty"`
}

func runLanguages(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(languageEntries(registry))
}

func languageEntries(registry *language.Registry) []languageEntry {
	specs := registry.Languages()
	entries := make([]languageEntry, 0, len(specs))
	for _, spec := range specs {
		entries = append(entries, languageEntry{
			ID:        spec.ID,
			Extension: spec.Extension,
			Aliases:   spec.Aliases,
			Compiled:  spec.Compiles(),
			Binaries:  spec.Binaries(),
			Missing:   spec.MissingBinaries(),
		})
	}
	return entries
}
