// Package docsync keeps a search index in step with a domain data source.
//
// A Service owns one domain type and one stable alias. Single-document
// operations write through the alias and report an Outcome instead of
// failing; Reindex rebuilds a fresh physical index and swaps the alias
// onto it.
package docsync

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/gateway"
	"github.com/Aman-CERP/searchsync/internal/lock"
	"github.com/Aman-CERP/searchsync/internal/schema"
	"github.com/Aman-CERP/searchsync/internal/source"
	"github.com/Aman-CERP/searchsync/internal/ui"
)

// Default pipeline settings.
const (
	DefaultConcurrency     = 20
	DefaultPageSize        = 500
	DefaultBatchCeiling    = 150000
	DefaultRefreshInterval = "1s"
)

// Options tunes writes and the reindex pipeline.
type Options struct {
	// Concurrency is the number of reindex workers.
	Concurrency int

	// PageSize is the number of records fetched per source call.
	PageSize int

	// BatchCeiling is the width of each worker's offset range.
	BatchCeiling int

	// RefreshInterval is applied to the alias target after a reindex.
	RefreshInterval string

	// Refresh is the visibility policy for single-document writes.
	Refresh gateway.RefreshPolicy

	// RateLimit caps source pages per second across all workers. 0 disables.
	RateLimit float64
}

// DefaultOptions returns the stock pipeline settings.
func DefaultOptions() Options {
	return Options{
		Concurrency:     DefaultConcurrency,
		PageSize:        DefaultPageSize,
		BatchCeiling:    DefaultBatchCeiling,
		RefreshInterval: DefaultRefreshInterval,
		Refresh:         gateway.RefreshImmediate,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.PageSize <= 0 {
		o.PageSize = d.PageSize
	}
	if o.BatchCeiling <= 0 {
		o.BatchCeiling = d.BatchCeiling
	}
	if o.RefreshInterval == "" {
		o.RefreshInterval = d.RefreshInterval
	}
	if o.Refresh == "" {
		o.Refresh = d.Refresh
	}
	return o
}

// Deps wires a Service.
type Deps[T any] struct {
	Compiler *schema.Compiler
	TypeName string
	Alias    string
	Gateway  gateway.Gateway
	Source   source.Source[T]
	Options  Options

	// Guard serializes reindex runs per alias. Nil gets an in-process guard.
	Guard *lock.Guard

	// Renderer receives reindex progress. Nil discards it.
	Renderer ui.Renderer

	// Now is the version clock. Nil uses time.Now.
	Now func() time.Time
}

// Service synchronizes one domain type into one alias.
type Service[T any] struct {
	typeName string
	alias    string
	idField  schema.FieldDescriptor
	mapping  *schema.Mapping

	gw       gateway.Gateway
	src      source.Source[T]
	opts     Options
	guard    *lock.Guard
	renderer ui.Renderer
	limiter  *rate.Limiter
	now      func() time.Time
}

// New validates deps and resolves the type's search-id field and mapping.
func New[T any](deps Deps[T]) (*Service[T], error) {
	if deps.Compiler == nil || deps.Gateway == nil || deps.Source == nil {
		return nil, serrors.ConfigError("docsync needs a compiler, a gateway and a source", nil)
	}
	if deps.Alias == "" {
		return nil, serrors.ConfigError("index alias is required", nil).
			WithSuggestion("Set index.alias in .searchsync.yaml")
	}

	idField, err := deps.Compiler.Registry().SearchIDField(deps.TypeName)
	if err != nil {
		return nil, err
	}
	mapping, err := deps.Compiler.Compile(deps.TypeName)
	if err != nil {
		return nil, err
	}

	s := &Service[T]{
		typeName: deps.TypeName,
		alias:    deps.Alias,
		idField:  idField,
		mapping:  mapping,
		gw:       deps.Gateway,
		src:      deps.Source,
		opts:     deps.Options.withDefaults(),
		guard:    deps.Guard,
		renderer: deps.Renderer,
		now:      deps.Now,
	}
	if s.guard == nil {
		s.guard = lock.NewGuard("")
	}
	if s.renderer == nil {
		s.renderer = ui.NopRenderer{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.opts.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(s.opts.RateLimit), 1)
	}

	slog.Debug("docsync_service_created",
		slog.String("type", s.typeName),
		slog.String("alias", s.alias),
		slog.String("search_id", idField.Name),
		slog.Int("concurrency", s.opts.Concurrency))

	return s, nil
}

// Mapping returns the compiled mapping for the service's type.
func (s *Service[T]) Mapping() *schema.Mapping {
	return s.mapping
}

// Alias returns the stable alias the service writes through.
func (s *Service[T]) Alias() string {
	return s.alias
}

// Status classifies an Outcome.
type Status string

const (
	// StatusOK means every write was accepted.
	StatusOK Status = "ok"
	// StatusPartial means some writes were accepted and some rejected.
	StatusPartial Status = "partial"
	// StatusAbsorbed means the operation failed and the failure was logged.
	StatusAbsorbed Status = "absorbed"
	// StatusNotFound means there was nothing to write or delete.
	StatusNotFound Status = "not_found"
	// StatusSkipped means no backend call was made.
	StatusSkipped Status = "skipped"
)

// Outcome reports what a single-document operation did. Failures are
// already logged; callers inspect the outcome only to audit.
type Outcome struct {
	Status  Status `json:"status"`
	Written int    `json:"written"`
	Failed  int    `json:"failed"`
	Err     error  `json:"-"`
}

// Message returns the last absorbed error message, if any.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

func (o Outcome) String() string {
	return fmt.Sprintf("%s (written=%d failed=%d)", o.Status, o.Written, o.Failed)
}

func settle(o Outcome) Outcome {
	switch {
	case o.Failed == 0:
		o.Status = StatusOK
	case o.Written > 0:
		o.Status = StatusPartial
	default:
		o.Status = StatusAbsorbed
	}
	return o
}

func absorbed(err error) Outcome {
	return Outcome{Status: StatusAbsorbed, Failed: 1, Err: err}
}
