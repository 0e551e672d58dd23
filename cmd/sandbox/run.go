package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sakif/code-sandbox/internal/apperror"
	"github.com/sakif/code-sandbox/internal/executor"
	"github.com/sakif/code-sandbox/internal/language"
)

var (
	runLanguageFlag string
	runStdinFlag    string
	runJSONFlag     bool
)

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Compile and run one source file",
	Long: `Run a source file through the sandbox and print its stdout and stderr.

The language is taken from --language or guessed from the file extension.
The command exits with the program's status code; 124 means it timed out.

Examples:
  sandbox run hello.py
  sandbox run main.c --stdin input.txt
  echo "5 3" | sandbox run sum.rb --stdin -`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runLanguageFlag, "language", "l", "", "language id or alias (default: from file extension)")
	runCmd.Flags().StringVar(&runStdinFlag, "stdin", "", "file to feed as standard input, or - for this process's stdin")
	runCmd.Flags().BoolVar(&runJSONFlag, "json", false, "print the full result as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)

	source, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading source: %w", err)
	}
	stdin, err := readStdin(cmd.InOrStdin(), runStdinFlag)
	if err != nil {
		return err
	}

	sb, err := newSandbox(cfg, logger)
	if err != nil {
		return fmt.Errorf("setting up sandbox: %w", err)
	}
	defer sb.Close()

	lang := runLanguageFlag
	if lang == "" {
		if lang, err = languageForFile(sb.registry, args[0]); err != nil {
			return err
		}
	}

	result, err := sb.exec.Execute(cmd.Context(), executor.ExecutionRequest{
		Language: lang,
		Code:     string(source),
		Stdin:    stdin,
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return errors.New(appErr.Message)
		}
		return err
	}

	if runJSONFlag {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		fmt.Fprint(cmd.OutOrStdout(), result.Stdout)
		fmt.Fprint(cmd.ErrOrStderr(), result.Stderr)
	}

	if code := exitCode(result); code != 0 {
		return exitError{code: code}
	}
	return nil
}

// exitCode maps a result status to a shell exit status. Sandbox failures
// (negative statuses) become 1.
func exitCode(result *executor.ExecutionResult) int {
	switch {
	case result.StatusCode < 0:
		return 1
	case result.StatusCode > 255:
		return 255
	default:
		return result.StatusCode
	}
}

func readStdin(in io.Reader, flag string) (string, error) {
	switch flag {
	case "":
		return "", nil
	case "-":
		data, err := io.ReadAll(in)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(flag)
		if err != nil {
			return "", fmt.Errorf("reading stdin file: %w", err)
		}
		return string(data), nil
	}
}

// languageForFile picks the language registered for path's extension.
func languageForFile(registry *language.Registry, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return "", errors.New("cannot infer language from a file without extension; use --language")
	}
	for _, spec := range registry.Languages() {
		if spec.Extension == ext {
			return spec.ID, nil
		}
	}
	return "", fmt.Errorf("no language is registered for %q files; use --language", ext)
}
