// Package gateway defines the administrative and data operations searchsync
// issues against a search backend.
//
// Concrete backends live in subpackages: elastic talks to an Elasticsearch
// cluster, local keeps indices in-process with bleve.
package gateway

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/schema"
)

// RefreshPolicy controls when a write becomes visible to search.
type RefreshPolicy string

const (
	// RefreshImmediate refreshes the affected shards right after the write.
	RefreshImmediate RefreshPolicy = "true"
	// RefreshWaitFor blocks until the next scheduled refresh.
	RefreshWaitFor RefreshPolicy = "wait_for"
	// RefreshNone leaves visibility to the refresh interval.
	RefreshNone RefreshPolicy = "false"
)

// ParseRefreshPolicy accepts the backend spellings plus IMMEDIATE/WAIT_UNTIL/NONE.
func ParseRefreshPolicy(s string) (RefreshPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "immediate", "":
		return RefreshImmediate, nil
	case "wait_for", "wait_until":
		return RefreshWaitFor, nil
	case "false", "none":
		return RefreshNone, nil
	default:
		return "", serrors.ConfigError(fmt.Sprintf("unknown refresh policy %q", s), nil)
	}
}

// VersionExternal tells the backend to accept a write only when its version
// is greater than the stored one.
const VersionExternal = "external"

// SettingRefreshInterval is the index setting restored after a reindex.
const SettingRefreshInterval = "index.refresh_interval"

// Status returns the HTTP-style status a backend attached to a rejection,
// or 0 when err carries none.
func Status(err error) int {
	var se *serrors.SyncError
	if !stderrors.As(err, &se) {
		return 0
	}
	n, _ := strconv.Atoi(se.Details["status"])
	return n
}

// IndexRequest writes one document.
type IndexRequest struct {
	Index       string
	ID          string
	Body        []byte
	Version     int64
	VersionType string
	Refresh     RefreshPolicy
}

// OpType is a bulk operation kind.
type OpType string

const (
	OpIndex  OpType = "index"
	OpDelete OpType = "delete"
)

// BulkOp is one entry of a bulk request.
type BulkOp struct {
	Op          OpType
	Index       string
	ID          string
	Body        []byte
	Version     int64
	VersionType string
}

// BulkItem is the per-entry outcome of a bulk request.
type BulkItem struct {
	Op     OpType
	Index  string
	ID     string
	Status int
	Error  string
}

// Failed reports whether the item was rejected. A delete of a missing
// document reports 404 without an error and is not a failure.
func (i BulkItem) Failed() bool {
	return i.Error != ""
}

// BulkResponse carries per-item results in request order.
type BulkResponse struct {
	Items  []BulkItem
	TookMs int64
}

// Failures returns the rejected items.
func (r *BulkResponse) Failures() []BulkItem {
	var out []BulkItem
	for _, item := range r.Items {
		if item.Failed() {
			out = append(out, item)
		}
	}
	return out
}

// HasFailures reports whether any item was rejected.
func (r *BulkResponse) HasFailures() bool {
	for _, item := range r.Items {
		if item.Failed() {
			return true
		}
	}
	return false
}

// AliasActionType is add or remove.
type AliasActionType string

const (
	AliasAdd    AliasActionType = "add"
	AliasRemove AliasActionType = "remove"
)

// AliasAction binds or unbinds an alias.
type AliasAction struct {
	Type  AliasActionType
	Index string
	Alias string
}

// AddAlias returns an add action.
func AddAlias(index, alias string) AliasAction {
	return AliasAction{Type: AliasAdd, Index: index, Alias: alias}
}

// RemoveAlias returns a remove action.
func RemoveAlias(index, alias string) AliasAction {
	return AliasAction{Type: AliasRemove, Index: index, Alias: alias}
}

// Admin covers index lifecycle operations.
type Admin interface {
	// CreateIndex creates an empty physical index.
	CreateIndex(ctx context.Context, name string) error

	// PutMapping applies a compiled mapping to an index.
	PutMapping(ctx context.Context, index string, mapping *schema.Mapping) error

	// IndexExists reports whether name resolves to an index or an alias.
	IndexExists(ctx context.Context, name string) (bool, error)

	// GetAlias returns the physical indices bound to alias, each with its
	// aliases. The map is empty when nothing is bound.
	GetAlias(ctx context.Context, alias string) (map[string][]string, error)

	// UpdateAliases applies all actions in one atomic transaction.
	UpdateAliases(ctx context.Context, actions []AliasAction) error

	// DeleteIndex drops a physical index.
	DeleteIndex(ctx context.Context, name string) error

	// PutSettings updates dynamic settings of an index or alias target.
	PutSettings(ctx context.Context, index string, settings map[string]string) error
}

// Writer covers document operations.
type Writer interface {
	// Index writes one document.
	Index(ctx context.Context, req IndexRequest) error

	// Delete removes one document.
	Delete(ctx context.Context, index, id string, refresh RefreshPolicy) error

	// Bulk executes ops in one request. A returned error means the request
	// as a whole failed; per-item rejections are reported in the response.
	Bulk(ctx context.Context, ops []BulkOp, refresh RefreshPolicy) (*BulkResponse, error)
}

// Hit is a stored document as the backend returns it. Highlight maps a
// field name to its fragments, first fragment first.
type Hit struct {
	Index     string
	ID        string
	Version   int64
	Source    json.RawMessage
	Highlight map[string][]string
}

// Reader covers document lookups.
type Reader interface {
	// Get returns the document stored under id in an index or alias, or
	// nil when there is none.
	Get(ctx context.Context, index, id string) (*Hit, error)
}

// Gateway is a complete search backend.
type Gateway interface {
	Admin
	Writer
	Reader

	// Close releases backend resources.
	Close() error
}
