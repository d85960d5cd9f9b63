package daemon

import (
	"encoding/json"
	"fmt"

	"github.com/Aman-CERP/searchsync/internal/docsync"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing        = "ping"
	MethodStatus      = "status"
	MethodUpsert      = "upsert"
	MethodDelete      = "delete"
	MethodBatchDelete = "batch_delete"
	MethodReindex     = "reindex"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Daemon-specific error codes.
const (
	ErrCodeNoSyncer          = -32001
	ErrCodeReindexFailed     = -32002
	ErrCodeReindexInProgress = -32003
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code: %d)", e.Message, e.Code)
}

// NewRequest builds a request, encoding params when non-nil.
func NewRequest(id, method string, params any) (Request, error) {
	req := Request{JSONRPC: "2.0", Method: method, ID: id}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return Request{}, fmt.Errorf("failed to encode params: %w", err)
		}
		req.Params = raw
	}
	return req, nil
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrCodeInternalError, "failed to encode result")
	}
	return Response{
		JSONRPC: "2.0",
		Result:  raw,
		ID:      id,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// IDParams are the parameters for upsert and delete.
type IDParams struct {
	ID string `json:"id"`
}

// Validate checks that required fields are present.
func (p IDParams) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	return nil
}

// BatchDeleteParams are the parameters for batch_delete. An empty list is
// valid and results in no backend call.
type BatchDeleteParams struct {
	IDs []string `json:"ids"`
}

// ReindexParams are the parameters for reindex.
type ReindexParams struct {
	// Suffix is appended to the alias to name the new index. Empty means
	// a timestamp suffix.
	Suffix string `json:"suffix,omitempty"`

	// Wait keeps the connection open until the run finishes. Otherwise
	// the run starts in the background and status reports its result.
	Wait bool `json:"wait,omitempty"`
}

// ReindexReply is the result of reindex.
type ReindexReply struct {
	Alias    string                 `json:"alias"`
	Suffix   string                 `json:"suffix"`
	Accepted bool                   `json:"accepted"`
	Result   *docsync.ReindexResult `json:"result,omitempty"`
}

// OutcomeResult is the result of upsert, delete and batch_delete.
type OutcomeResult struct {
	docsync.Outcome
	Error string `json:"error,omitempty"`
}

func newOutcomeResult(o docsync.Outcome) OutcomeResult {
	return OutcomeResult{Outcome: o, Error: o.Message()}
}

// StatusResult contains daemon status information.
type StatusResult struct {
	Running     bool                   `json:"running"`
	PID         int                    `json:"pid"`
	Version     string                 `json:"version,omitempty"`
	Uptime      string                 `json:"uptime"`
	Alias       string                 `json:"alias"`
	InProgress  bool                   `json:"in_progress"`
	Schedule    string                 `json:"schedule,omitempty"`
	NextReindex string                 `json:"next_reindex,omitempty"`
	LastReindex *docsync.ReindexResult `json:"last_reindex,omitempty"`
	LastError   string                 `json:"last_error,omitempty"`
	LastRunAt   string                 `json:"last_run_at,omitempty"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}
