package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Aman-CERP/searchsync/internal/docsync"
	"github.com/stretchr/testify/require"
)

// testSocketPath returns a unique socket path short enough for Unix sockets.
func testSocketPath(t *testing.T) string {
	t.Helper()
	socketPath := filepath.Join(os.TempDir(), fmt.Sprintf("searchsync-test-%d.sock", time.Now().UnixNano()))
	t.Cleanup(func() { _ = os.Remove(socketPath) })
	return socketPath
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		SocketPath:          testSocketPath(t),
		PIDPath:             filepath.Join(t.TempDir(), "daemon.pid"),
		Timeout:             5 * time.Second,
		ShutdownGracePeriod: 2 * time.Second,
	}
}

// fakeSyncer records calls and answers with canned outcomes.
type fakeSyncer struct {
	mu        sync.Mutex
	alias     string
	upserts   []string
	deletes   []string
	batches   [][]string
	suffixes  []string
	reindexFn func(ctx context.Context, suffix string) (*docsync.ReindexResult, error)
}

func newFakeSyncer() *fakeSyncer {
	return &fakeSyncer{alias: "products"}
}

func (f *fakeSyncer) Alias() string { return f.alias }

func (f *fakeSyncer) Upsert(_ context.Context, id string) docsync.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, id)
	return docsync.Outcome{Status: docsync.StatusOK, Written: 1}
}

func (f *fakeSyncer) Delete(_ context.Context, id string) docsync.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, id)
	if id == "missing" {
		return docsync.Outcome{Status: docsync.StatusNotFound}
	}
	return docsync.Outcome{Status: docsync.StatusOK, Written: 1}
}

func (f *fakeSyncer) BatchDelete(_ context.Context, ids []string) docsync.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, ids)
	if len(ids) == 0 {
		return docsync.Outcome{Status: docsync.StatusSkipped}
	}
	return docsync.Outcome{Status: docsync.StatusOK, Written: len(ids)}
}

func (f *fakeSyncer) Reindex(ctx context.Context, suffix string) (*docsync.ReindexResult, error) {
	f.mu.Lock()
	f.suffixes = append(f.suffixes, suffix)
	fn := f.reindexFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ctx, suffix)
	}
	return &docsync.ReindexResult{
		Index:      f.alias + suffix,
		Alias:      f.alias,
		Transition: docsync.TransitionRolling,
		Workers:    1,
		Indexed:    10,
	}, nil
}

func (f *fakeSyncer) upsertCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.upserts...)
}

func (f *fakeSyncer) deleteCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deletes...)
}

func (f *fakeSyncer) batchCalls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}

func (f *fakeSyncer) reindexCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.suffixes...)
}

// startServer serves sy on a fresh socket until the test ends.
func startServer(t *testing.T, sy Syncer, opts ...func(*Server)) (*Server, *Client) {
	t.Helper()
	cfg := testConfig(t)

	srv := NewServer(cfg)
	if sy != nil {
		srv.SetSyncer(sy)
	}
	for _, opt := range opts {
		opt(srv)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	client := NewClient(cfg)
	require.Eventually(t, client.IsRunning, 2*time.Second, 10*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(3 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv, client
}
