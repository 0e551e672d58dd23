// Package mcptool exposes the sandbox as a Model Context Protocol tool so
// agents can run code over stdio.
package mcptool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sakif/code-sandbox/internal/apperror"
	"github.com/sakif/code-sandbox/internal/executor"
	"github.com/sakif/code-sandbox/internal/language"
)

const (
	ToolName = "code_run"
	// maxOutput keeps tool results small enough for a model context.
	maxOutput = 4000
)

// CodeRunner is the code_run tool.
type CodeRunner struct {
	exec     executor.Executor
	registry *language.Registry
	logger   *slog.Logger
}

func NewCodeRunner(exec executor.Executor, registry *language.Registry, logger *slog.Logger) *CodeRunner {
	return &CodeRunner{exec: exec, registry: registry, logger: logger}
}

// NewServer returns an MCP server with the code_run tool registered.
func NewServer(runner *CodeRunner, version string) *server.MCPServer {
	s := server.NewMCPServer("code-sandbox", version)
	s.AddTool(runner.Tool(), runner.Handle)
	return s
}

// ServeStdio serves s on stdin/stdout until the client disconnects.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

// Tool describes code_run and its arguments.
func (c *CodeRunner) Tool() mcp.Tool {
	var ids []string
	for _, spec := range c.registry.Languages() {
		ids = append(ids, spec.ID)
	}
	langs := strings.Join(ids, ", ")

	return mcp.Tool{
		Name:        ToolName,
		Description: fmt.Sprintf("Compile (if needed) and run a program in the sandbox. Supported languages: %s.", langs),
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"language": map[string]any{
					"type":        "string",
					"description": "Programming language (" + langs + ")",
				},
				"code": map[string]any{
					"type":        "string",
					"description": "Complete source code of the program",
				},
				"stdin": map[string]any{
					"type":        "string",
					"description": "Standard input to provide to the program (optional)",
				},
			},
			Required: []string{"language", "code"},
		},
	}
}

// Handle runs one code_run call. Failures are reported as error results,
// never as protocol errors.
func (c *CodeRunner) Handle(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return errResult("error: invalid arguments"), nil
	}

	lang, _ := args["language"].(string)
	code, _ := args["code"].(string)
	stdin, _ := args["stdin"].(string)

	result, err := c.exec.Execute(ctx, executor.ExecutionRequest{
		Language: lang,
		Code:     code,
		Stdin:    stdin,
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return errResult("error: " + appErr.Message), nil
		}
		c.logger.Error("code_run failed", slog.String("error", err.Error()))
		return errResult("error: internal sandbox error"), nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: format(result)}},
		IsError: !result.Succeeded(),
	}, nil
}

func format(result *executor.ExecutionResult) string {
	var output strings.Builder
	output.WriteString(result.Stdout)
	if result.Stderr != "" {
		if output.Len() > 0 {
			output.WriteString("\n")
		}
		output.WriteString("STDERR:\n" + result.Stderr)
	}
	if result.Phase == executor.PhaseCompile {
		output.WriteString("\ncompilation failed")
	}
	if result.StatusCode != 0 {
		fmt.Fprintf(&output, "\nexit code: %d", result.StatusCode)
	}
	if result.Truncated {
		output.WriteString("\n(sandbox output limit reached)")
	}

	text := output.String()
	if len(text) > maxOutput {
		text = text[:maxOutput] + "\n... (output truncated)"
	}
	return text
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
