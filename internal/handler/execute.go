package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/code-sandbox/internal/executor"
)

// ExecuteResponse is the wire form of an execution result. Error is null
// when the program wrote nothing to stderr.
type ExecuteResponse struct {
	ID         string         `json:"id"`
	Output     string         `json:"output"`
	Error      *string        `json:"error"`
	StatusCode int            `json:"statusCode"`
	Phase      executor.Phase `json:"phase"`
	TimedOut   bool           `json:"timedOut"`
	Truncated  bool           `json:"truncated"`
	DurationMs int64          `json:"durationMs"`
}

// NewExecuteResponse converts res for the API.
func NewExecuteResponse(res *executor.ExecutionResult) ExecuteResponse {
	resp := ExecuteResponse{
		ID:         res.ID,
		Output:     res.Stdout,
		StatusCode: res.StatusCode,
		Phase:      res.Phase,
		TimedOut:   res.TimedOut,
		Truncated:  res.Truncated,
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Stderr != "" {
		stderr := res.Stderr
		resp.Error = &stderr
	}
	return resp
}

// ExecuteHandler handles code execution requests.
type ExecuteHandler struct {
	exec   executor.Executor
	logger *slog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler.
func NewExecuteHandler(exec executor.Executor, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		exec:   exec,
		logger: logger,
	}
}

// HandleExecute compiles (if needed) and runs one program.
//
// HTTP: POST /api/execute
// REQUEST BODY: {"language": "python", "code": "print(1)", "input": ""}
//
// Compile errors, runtime errors and timeouts are all 200 responses; the
// outcome is in statusCode and phase. Only a malformed request or an unknown
// language is a 400.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req executor.ExecutionRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.exec.Execute(r.Context(), req)
	if err != nil {
		h.logger.Info("execution rejected",
			slog.String("language", req.Language),
			slog.String("error", err.Error()),
		)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, NewExecuteResponse(result))
}
