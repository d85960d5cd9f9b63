package docsync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/gateway"
	"github.com/Aman-CERP/searchsync/internal/ui"
)

// Transition names the alias procedure a reindex ran.
type Transition string

const (
	// TransitionFirstBuild: the alias name was unused.
	TransitionFirstBuild Transition = "first_build"
	// TransitionLegacyIndex: the alias name was a physical index and was dropped.
	TransitionLegacyIndex Transition = "legacy_index"
	// TransitionRolling: the alias moved from older indices to the new one.
	TransitionRolling Transition = "rolling"
)

// ReindexResult summarizes a finished run.
type ReindexResult struct {
	Index         string        `json:"index"`
	Alias         string        `json:"alias"`
	Transition    Transition    `json:"transition"`
	Workers       int           `json:"workers"`
	WorkersFailed int           `json:"workers_failed"`
	Pages         int           `json:"pages"`
	Indexed       int           `json:"indexed"`
	Failed        int           `json:"failed"`
	Duration      time.Duration `json:"duration"`

	// Orphan is the index a failed run created but could not bind to the
	// alias. Nothing deletes it.
	Orphan string `json:"orphan,omitempty"`
}

// Complete reports whether every worker walked its whole range and every
// document was accepted.
func (r *ReindexResult) Complete() bool {
	return r.WorkersFailed == 0 && r.Failed == 0
}

// NewSuffix returns the default run suffix for now, e.g. "_20260102150405".
func NewSuffix(now time.Time) string {
	return "_" + now.UTC().Format("20060102150405")
}

// Reindex builds alias+suffix from the full source, then points the alias
// at it. Only one run per alias may be in flight; a second call fails
// with errors.ErrReindexInProgress.
//
// Worker failures do not stop the run; they are counted in the result.
// Failures creating the index, applying the mapping, swapping the alias or
// applying settings are fatal.
func (s *Service[T]) Reindex(ctx context.Context, suffix string) (*ReindexResult, error) {
	if suffix == "" {
		suffix = NewSuffix(s.now())
	}

	release, err := s.guard.Acquire(s.alias)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	res := &ReindexResult{
		Index:   s.alias + suffix,
		Alias:   s.alias,
		Workers: s.opts.Concurrency,
	}

	_ = s.renderer.Start(ctx)
	defer func() { _ = s.renderer.Stop() }()

	slog.Info("reindex_started",
		slog.String("alias", res.Alias),
		slog.String("index", res.Index),
		slog.Int("workers", res.Workers),
		slog.Int("page_size", s.opts.PageSize),
		slog.Int("batch_ceiling", s.opts.BatchCeiling))

	if err := s.runReindex(ctx, res); err != nil {
		res.Duration = time.Since(start)
		s.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageFailed, Message: err.Error()})
		slog.Error("reindex_failed", append(serrors.LogAttrs(err),
			slog.String("alias", res.Alias), slog.String("index", res.Index))...)
		return res, err
	}

	res.Duration = time.Since(start)
	s.renderer.Complete(ui.CompletionStats{
		Alias:         res.Alias,
		Index:         res.Index,
		Transition:    string(res.Transition),
		Pages:         res.Pages,
		Documents:     res.Indexed,
		Failed:        res.Failed,
		Workers:       res.Workers,
		WorkersFailed: res.WorkersFailed,
		Duration:      res.Duration,
	})
	slog.Info("reindex_completed",
		slog.String("alias", res.Alias),
		slog.String("index", res.Index),
		slog.String("transition", string(res.Transition)),
		slog.Int("pages", res.Pages),
		slog.Int("indexed", res.Indexed),
		slog.Int("failed", res.Failed),
		slog.Int("workers_failed", res.WorkersFailed),
		slog.Duration("duration", res.Duration))
	return res, nil
}

func (s *Service[T]) runReindex(ctx context.Context, res *ReindexResult) (err error) {
	s.stage(ui.StageCreating, "creating "+res.Index)
	if err := s.gw.CreateIndex(ctx, res.Index); err != nil {
		return fatal("create index", res.Index, err)
	}
	defer func() {
		if err != nil {
			s.noteOrphan(ctx, res)
		}
	}()

	s.stage(ui.StageMapping, "applying "+s.typeName+" mapping")
	if err := s.gw.PutMapping(ctx, res.Index, s.mapping); err != nil {
		return fatal("put mapping", res.Index, err)
	}

	s.stream(ctx, res)

	s.stage(ui.StageSwapping, "pointing "+res.Alias+" at "+res.Index)
	transition, err := s.swap(ctx, res.Index)
	if err != nil {
		return fatal("swap alias", res.Alias, err)
	}
	res.Transition = transition

	settings := map[string]string{gateway.SettingRefreshInterval: s.opts.RefreshInterval}
	if err := s.gw.PutSettings(ctx, res.Alias, settings); err != nil {
		return fatal("apply settings", res.Alias, err)
	}
	return nil
}

// orphanCheckTimeout bounds the alias lookup after a failed run.
const orphanCheckTimeout = 10 * time.Second

// noteOrphan records and logs the run's index when the alias does not
// point at it. An index the alias already serves is not an orphan.
func (s *Service[T]) noteOrphan(ctx context.Context, res *ReindexResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), orphanCheckTimeout)
	defer cancel()

	bound, err := s.gw.GetAlias(ctx, res.Alias)
	if err == nil {
		if _, live := bound[res.Index]; live {
			return
		}
	}
	res.Orphan = res.Index
	slog.Warn("reindex_orphan_index",
		slog.String("alias", res.Alias),
		slog.String("index", res.Index),
		slog.Bool("alias_checked", err == nil),
		slog.String("hint", "delete the index once no alias points at it"))
}

func (s *Service[T]) stage(st ui.Stage, msg string) {
	slog.Debug("reindex_stage", slog.String("alias", s.alias), slog.String("stage", st.String()))
	s.renderer.UpdateProgress(ui.ProgressEvent{Stage: st, Workers: s.opts.Concurrency, Message: msg})
}

// fatal wraps a stage failure. Configuration errors pass through unchanged.
func fatal(stage, subject string, err error) error {
	if serrors.IsConfig(err) {
		return err
	}
	return serrors.New(serrors.ErrCodeReindexFailed, fmt.Sprintf("%s %s failed", stage, subject), err).
		WithDetail("stage", stage)
}

// tally collects worker counts and forwards them to the renderer.
type tally struct {
	mu       sync.Mutex
	renderer ui.Renderer
	event    ui.ProgressEvent
}

func (t *tally) page(indexed, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.event.Pages++
	t.event.Documents += indexed
	t.event.Failed += failed
	t.renderer.UpdateProgress(t.event)
}

func (t *tally) workerDone(k int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.event.WorkersDone++
	if err != nil {
		t.renderer.AddError(ui.ErrorEvent{Subject: fmt.Sprintf("worker %d", k), Err: err})
	}
	t.renderer.UpdateProgress(t.event)
}

// stream runs the worker pool and blocks until every worker has finished
// or failed.
func (s *Service[T]) stream(ctx context.Context, res *ReindexResult) {
	t := &tally{
		renderer: s.renderer,
		event:    ui.ProgressEvent{Stage: ui.StageStreaming, Workers: s.opts.Concurrency},
	}
	s.renderer.UpdateProgress(t.event)

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed int
	)
	for k := 0; k < s.opts.Concurrency; k++ {
		k := k
		g.Go(func() error {
			err := s.walk(ctx, res.Index, k, t)
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				slog.Warn("reindex_worker_failed", append(serrors.LogAttrs(err),
					slog.String("index", res.Index), slog.Int("worker", k))...)
			}
			t.workerDone(k, err)
			return nil
		})
	}

	slog.Debug("reindex_stage", slog.String("alias", s.alias), slog.String("stage", ui.StageAwaiting.String()))
	_ = g.Wait()

	res.WorkersFailed = failed
	res.Pages = t.event.Pages
	res.Indexed = t.event.Documents
	res.Failed = t.event.Failed
}

// Range returns the half-open offset range [lo, hi) owned by worker k.
func Range(k, batchCeiling int) (lo, hi int) {
	return k * batchCeiling, (k + 1) * batchCeiling
}

// walk pages through worker k's range until an empty page or the range end.
func (s *Service[T]) walk(ctx context.Context, index string, k int, t *tally) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = serrors.InternalError(fmt.Sprintf("worker %d panicked: %v", k, r), nil)
		}
	}()

	lo, hi := Range(k, s.opts.BatchCeiling)
	for offset := lo; offset < hi; offset += s.opts.PageSize {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		limit := min(s.opts.PageSize, hi-offset)
		recs, err := s.src.Page(ctx, offset, limit)
		if err != nil {
			return serrors.New(serrors.ErrCodeSourceFailed, fmt.Sprintf("read page at offset %d", offset), err)
		}
		if len(recs) == 0 {
			return nil
		}

		indexed, failed, err := s.writePage(ctx, index, recs)
		if err != nil {
			return err
		}
		t.page(indexed, failed)
	}
	return nil
}

// writePage encodes, dedupes and bulk-writes one page under a single
// external version.
func (s *Service[T]) writePage(ctx context.Context, index string, recs []T) (indexed, failed int, err error) {
	docs := make([]document, 0, len(recs))
	for _, rec := range recs {
		doc, err := encode(rec, s.idField.Name)
		if err != nil {
			failed++
			slog.Warn("reindex_record_skipped", append(serrors.LogAttrs(err), slog.String("index", index))...)
			continue
		}
		docs = append(docs, doc)
	}

	docs, dropped := dedupe(docs)
	if dropped > 0 {
		slog.Debug("page_duplicates_dropped", slog.String("index", index), slog.Int("dropped", dropped))
	}
	if len(docs) == 0 {
		return 0, failed, nil
	}

	version := s.now().UnixMilli()
	ops := make([]gateway.BulkOp, len(docs))
	for i, d := range docs {
		ops[i] = gateway.BulkOp{
			Op:          gateway.OpIndex,
			Index:       index,
			ID:          d.Key,
			Body:        d.Body,
			Version:     version,
			VersionType: gateway.VersionExternal,
		}
	}

	resp, err := s.gw.Bulk(ctx, ops, "")
	if err != nil {
		return 0, failed, err
	}
	for _, item := range resp.Items {
		if item.Failed() {
			failed++
			slog.Warn("bulk_item_failed", slog.String("index", index), slog.String("key", item.ID),
				slog.Int("status", item.Status), slog.String("error", item.Error))
			continue
		}
		indexed++
	}
	return indexed, failed, nil
}

// swap points the alias at index using whichever procedure the alias
// name's current state calls for.
func (s *Service[T]) swap(ctx context.Context, index string) (Transition, error) {
	exists, err := s.gw.IndexExists(ctx, s.alias)
	if err != nil {
		return "", err
	}
	if !exists {
		if err := s.gw.UpdateAliases(ctx, []gateway.AliasAction{gateway.AddAlias(index, s.alias)}); err != nil {
			return "", err
		}
		slog.Info("alias_swapped", slog.String("alias", s.alias), slog.String("index", index),
			slog.String("transition", string(TransitionFirstBuild)))
		return TransitionFirstBuild, nil
	}

	bound, err := s.gw.GetAlias(ctx, s.alias)
	if err != nil {
		return "", err
	}

	if len(bound) == 0 {
		if err := s.gw.DeleteIndex(ctx, s.alias); err != nil {
			return "", err
		}
		if err := s.gw.UpdateAliases(ctx, []gateway.AliasAction{gateway.AddAlias(index, s.alias)}); err != nil {
			return "", err
		}
		slog.Info("alias_swapped", slog.String("alias", s.alias), slog.String("index", index),
			slog.String("transition", string(TransitionLegacyIndex)))
		return TransitionLegacyIndex, nil
	}

	var old []string
	for name := range bound {
		if name != index {
			old = append(old, name)
		}
	}
	if len(old) == 0 {
		return "", serrors.New(serrors.ErrCodeAliasState,
			fmt.Sprintf("alias %s exists but no origin index is bound to it", s.alias), nil)
	}
	sort.Strings(old)

	actions := make([]gateway.AliasAction, 0, len(old)+1)
	for _, name := range old {
		actions = append(actions, gateway.RemoveAlias(name, s.alias))
	}
	actions = append(actions, gateway.AddAlias(index, s.alias))
	if err := s.gw.UpdateAliases(ctx, actions); err != nil {
		return "", err
	}

	for _, name := range old {
		if err := s.gw.DeleteIndex(ctx, name); err != nil {
			return "", err
		}
	}
	slog.Info("alias_swapped", slog.String("alias", s.alias), slog.String("index", index),
		slog.String("transition", string(TransitionRolling)), slog.Any("retired", old))
	return TransitionRolling, nil
}
