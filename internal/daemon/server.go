package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Aman-CERP/searchsync/internal/docsync"
	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/pkg/version"
)

// Syncer is the document sync surface the daemon exposes.
// *docsync.Service satisfies it for any record type.
type Syncer interface {
	Alias() string
	Upsert(ctx context.Context, id string) docsync.Outcome
	Delete(ctx context.Context, id string) docsync.Outcome
	BatchDelete(ctx context.Context, ids []string) docsync.Outcome
	Reindex(ctx context.Context, suffix string) (*docsync.ReindexResult, error)
}

// Server listens on a Unix socket and handles RPC requests.
type Server struct {
	socketPath string
	timeout    time.Duration
	grace      time.Duration
	listener   net.Listener
	syncer     Syncer
	scheduler  *Scheduler
	started    time.Time
	now        func() time.Time

	mu        sync.Mutex
	shutdown  bool
	baseCtx   context.Context
	running   bool
	reloading bool
	last      *docsync.ReindexResult
	lastErr   error
	lastRunAt time.Time
	wg        sync.WaitGroup
}

// NewServer creates a server for cfg. SetSyncer must be called before
// sync methods can succeed.
func NewServer(cfg Config) *Server {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		socketPath: cfg.SocketPath,
		timeout:    timeout,
		grace:      cfg.ShutdownGracePeriod,
		now:        time.Now,
		baseCtx:    context.Background(),
	}
}

// SetSyncer sets the service that handles sync methods.
func (s *Server) SetSyncer(sy Syncer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncer = sy
}

func (s *Server) current() Syncer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.syncer
}

// Replace swaps in the syncer returned by build. It fails with
// errors.ErrReindexInProgress while a run is in flight, and reindex requests
// arriving during the swap are refused the same way. A build error keeps
// the current syncer.
func (s *Server) Replace(build func() (Syncer, error)) error {
	if !s.begin() {
		return serrors.ErrReindexInProgress
	}
	s.mu.Lock()
	s.reloading = true
	s.mu.Unlock()

	sy, err := build()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.reloading = false
	if err != nil {
		return err
	}
	s.syncer = sy
	return nil
}

// SetScheduler attaches the scheduler reported by status.
func (s *Server) SetScheduler(sc *Scheduler) {
	s.scheduler = sc
}

// ListenAndServe starts the server and blocks until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// Clean up any stale socket
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.baseCtx = ctx
	s.started = s.now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	slog.Info("Server listening", slog.String("socket", s.socketPath))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shutdown := s.shutdown
			s.mu.Unlock()
			if shutdown {
				break
			}
			slog.Error("Accept error", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.drain()

	if err := ctx.Err(); err != nil {
		return err
	}
	return nil
}

// drain waits for open connections and background runs, up to the grace period.
func (s *Server) drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	if s.grace <= 0 {
		<-done
		return
	}
	select {
	case <-done:
	case <-time.After(s.grace):
		slog.Warn("Shutdown grace period elapsed with requests in flight",
			slog.Duration("grace", s.grace))
	}
}

// handleConnection processes a single client connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		slog.Warn("Failed to set connection deadline", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	resp := s.handleRequest(ctx, conn, req)
	_ = encoder.Encode(resp)
}

// handleRequest dispatches a request to the appropriate handler.
func (s *Server) handleRequest(ctx context.Context, conn net.Conn, req Request) Response {
	if req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "jsonrpc must be \"2.0\"")
	}

	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})
	case MethodStatus:
		return NewSuccessResponse(req.ID, s.Status())
	}

	sy := s.current()
	if sy == nil {
		return NewErrorResponse(req.ID, ErrCodeNoSyncer, "no sync service configured")
	}

	switch req.Method {
	case MethodUpsert:
		var p IDParams
		if resp, ok := decodeParams(req, &p); !ok {
			return resp
		}
		if err := p.Validate(); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		return NewSuccessResponse(req.ID, newOutcomeResult(sy.Upsert(ctx, p.ID)))

	case MethodDelete:
		var p IDParams
		if resp, ok := decodeParams(req, &p); !ok {
			return resp
		}
		if err := p.Validate(); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
		}
		return NewSuccessResponse(req.ID, newOutcomeResult(sy.Delete(ctx, p.ID)))

	case MethodBatchDelete:
		var p BatchDeleteParams
		if resp, ok := decodeParams(req, &p); !ok {
			return resp
		}
		return NewSuccessResponse(req.ID, newOutcomeResult(sy.BatchDelete(ctx, p.IDs)))

	case MethodReindex:
		return s.handleReindex(ctx, conn, req)

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func decodeParams(req Request, dst any) (Response, bool) {
	if len(req.Params) == 0 {
		return Response{}, true
	}
	if err := json.Unmarshal(req.Params, dst); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params"), false
	}
	return Response{}, true
}

// handleReindex starts a run, in the background unless the client waits.
func (s *Server) handleReindex(ctx context.Context, conn net.Conn, req Request) Response {
	var p ReindexParams
	if resp, ok := decodeParams(req, &p); !ok {
		return resp
	}

	if !s.begin() {
		return NewErrorResponse(req.ID, ErrCodeReindexInProgress, serrors.ErrReindexInProgress.Error())
	}

	suffix := p.Suffix
	if suffix == "" {
		suffix = docsync.NewSuffix(s.now())
	}
	reply := ReindexReply{Alias: s.current().Alias(), Suffix: suffix, Accepted: true}

	if !p.Wait {
		s.mu.Lock()
		base := s.baseCtx
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_, _ = s.reindex(base, suffix)
		}()
		return NewSuccessResponse(req.ID, reply)
	}

	// Runs outlive the request timeout.
	_ = conn.SetDeadline(time.Time{})

	res, err := s.reindex(ctx, suffix)
	if err != nil {
		resp := NewErrorResponse(req.ID, reindexErrorCode(err), err.Error())
		resp.Error.Data = reindexFailure(res, err)
		return resp
	}
	reply.Result = res
	return NewSuccessResponse(req.ID, reply)
}

// ReindexFailure is the data attached to a failed waited reindex.
type ReindexFailure struct {
	Error  json.RawMessage        `json:"error,omitempty"`
	Result *docsync.ReindexResult `json:"result,omitempty"`
}

func reindexFailure(res *docsync.ReindexResult, err error) ReindexFailure {
	detail, _ := serrors.FormatJSON(err)
	return ReindexFailure{Error: detail, Result: res}
}

func reindexErrorCode(err error) int {
	if errors.Is(err, serrors.ErrReindexInProgress) {
		return ErrCodeReindexInProgress
	}
	return ErrCodeReindexFailed
}

// Reindex runs one reindex in the calling goroutine and records the result
// for status. It fails fast when this server already has a run in flight.
func (s *Server) Reindex(ctx context.Context, suffix string) (*docsync.ReindexResult, error) {
	if s.current() == nil {
		return nil, serrors.ConfigError("no sync service configured", nil)
	}
	if !s.begin() {
		return nil, serrors.ErrReindexInProgress
	}
	return s.reindex(ctx, suffix)
}

func (s *Server) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Server) reindex(ctx context.Context, suffix string) (*docsync.ReindexResult, error) {
	res, err := s.current().Reindex(ctx, suffix)

	s.mu.Lock()
	s.running = false
	s.last = res
	s.lastErr = err
	s.lastRunAt = s.now()
	s.mu.Unlock()

	return res, err
}

// Status returns the current server status.
func (s *Server) Status() StatusResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := StatusResult{
		Running:     true,
		PID:         os.Getpid(),
		Version:     version.Short(),
		InProgress:  s.running && !s.reloading,
		LastReindex: s.last,
	}
	if !s.started.IsZero() {
		status.Uptime = s.now().Sub(s.started).Round(time.Second).String()
	}
	if s.syncer != nil {
		status.Alias = s.syncer.Alias()
	}
	if s.lastErr != nil {
		status.LastError = s.lastErr.Error()
	}
	if !s.lastRunAt.IsZero() {
		status.LastRunAt = s.lastRunAt.UTC().Format(time.RFC3339)
	}
	if s.scheduler != nil {
		status.Schedule = s.scheduler.Expr()
		if next, ok := s.scheduler.NextRun(); ok {
			status.NextReindex = next.UTC().Format(time.RFC3339)
		}
	}

	return status
}

// Close stops the server.
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		return listener.Close()
	}
	return nil
}
