// Package elastic implements gateway.Gateway on an Elasticsearch cluster.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/gateway"
	"github.com/Aman-CERP/searchsync/internal/schema"
)

// DefaultPort is appended to hosts given without one.
const DefaultPort = "9200"

// Config configures the cluster connection.
type Config struct {
	// Hosts are host[:port] entries.
	Hosts []string
	// Scheme is http or https.
	Scheme string
}

// Addresses turns host[:port] entries into node URLs.
func Addresses(hosts []string, scheme string) []string {
	if scheme == "" {
		scheme = "http"
	}
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(h); err != nil {
			h = net.JoinHostPort(h, DefaultPort)
		}
		out = append(out, scheme+"://"+h)
	}
	return out
}

// Gateway talks to Elasticsearch through the official client.
type Gateway struct {
	client *elasticsearch.Client
}

var _ gateway.Gateway = (*Gateway)(nil)

// New creates a gateway for cfg.
func New(cfg Config) (*Gateway, error) {
	addrs := Addresses(cfg.Hosts, cfg.Scheme)
	if len(addrs) == 0 {
		return nil, serrors.ConfigError("no elasticsearch hosts configured", nil)
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addrs})
	if err != nil {
		return nil, serrors.ConfigError("failed to create elasticsearch client", err)
	}

	slog.Debug("elastic_client_created", slog.Any("addresses", addrs))
	return &Gateway{client: client}, nil
}

// CreateIndex creates an empty index.
func (g *Gateway) CreateIndex(ctx context.Context, name string) error {
	res, err := g.client.Indices.Create(name, g.client.Indices.Create.WithContext(ctx))
	return acknowledged("create index "+name, res, err)
}

// PutMapping applies mapping to index.
func (g *Gateway) PutMapping(ctx context.Context, index string, mapping *schema.Mapping) error {
	body, err := mapping.JSON()
	if err != nil {
		return serrors.New(serrors.ErrCodeMappingInvalid, "failed to render mapping", err)
	}
	res, err := g.client.Indices.PutMapping([]string{index}, bytes.NewReader(body),
		g.client.Indices.PutMapping.WithContext(ctx))
	return acknowledged("put mapping "+index, res, err)
}

// IndexExists reports whether name is an index or alias.
func (g *Gateway) IndexExists(ctx context.Context, name string) (bool, error) {
	res, err := g.client.Indices.Exists([]string{name}, g.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, serrors.BackendError("index exists "+name, err)
	}
	defer drain(res)

	switch res.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	default:
		return false, rejected("index exists "+name, res)
	}
}

// GetAlias returns the indices bound to alias.
func (g *Gateway) GetAlias(ctx context.Context, alias string) (map[string][]string, error) {
	res, err := g.client.Indices.GetAlias(
		g.client.Indices.GetAlias.WithName(alias),
		g.client.Indices.GetAlias.WithContext(ctx))
	if err != nil {
		return nil, serrors.BackendError("get alias "+alias, err)
	}
	defer drain(res)

	if res.StatusCode == 404 {
		return map[string][]string{}, nil
	}
	if res.IsError() {
		return nil, rejected("get alias "+alias, res)
	}

	var body map[string]struct {
		Aliases map[string]json.RawMessage `json:"aliases"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, serrors.BackendError("decode get alias response", err)
	}

	out := make(map[string][]string, len(body))
	for index, entry := range body {
		names := make([]string, 0, len(entry.Aliases))
		for name := range entry.Aliases {
			names = append(names, name)
		}
		out[index] = names
	}
	return out, nil
}

// UpdateAliases applies actions atomically.
func (g *Gateway) UpdateAliases(ctx context.Context, actions []gateway.AliasAction) error {
	type target struct {
		Index string `json:"index"`
		Alias string `json:"alias"`
	}
	payload := struct {
		Actions []map[string]target `json:"actions"`
	}{}
	for _, a := range actions {
		payload.Actions = append(payload.Actions, map[string]target{
			string(a.Type): {Index: a.Index, Alias: a.Alias},
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return serrors.InternalError("encode alias actions", err)
	}
	res, err := g.client.Indices.UpdateAliases(bytes.NewReader(body),
		g.client.Indices.UpdateAliases.WithContext(ctx))
	return acknowledged("update aliases", res, err)
}

// DeleteIndex drops an index.
func (g *Gateway) DeleteIndex(ctx context.Context, name string) error {
	res, err := g.client.Indices.Delete([]string{name}, g.client.Indices.Delete.WithContext(ctx))
	return acknowledged("delete index "+name, res, err)
}

// PutSettings updates dynamic index settings.
func (g *Gateway) PutSettings(ctx context.Context, index string, settings map[string]string) error {
	body, err := json.Marshal(settings)
	if err != nil {
		return serrors.InternalError("encode settings", err)
	}
	res, err := g.client.Indices.PutSettings(bytes.NewReader(body),
		g.client.Indices.PutSettings.WithIndex(index),
		g.client.Indices.PutSettings.WithContext(ctx))
	return acknowledged("put settings "+index, res, err)
}

// Index writes one document.
func (g *Gateway) Index(ctx context.Context, req gateway.IndexRequest) error {
	opts := []func(*esapi.IndexRequest){
		g.client.Index.WithContext(ctx),
		g.client.Index.WithDocumentID(req.ID),
	}
	if req.VersionType != "" {
		opts = append(opts,
			g.client.Index.WithVersion(int(req.Version)),
			g.client.Index.WithVersionType(req.VersionType))
	}
	if req.Refresh != "" {
		opts = append(opts, g.client.Index.WithRefresh(string(req.Refresh)))
	}

	res, err := g.client.Index(req.Index, bytes.NewReader(req.Body), opts...)
	if err != nil {
		return serrors.BackendError("index document "+req.ID, err)
	}
	defer drain(res)
	if res.IsError() {
		return rejected("index document "+req.ID, res)
	}
	return nil
}

// Delete removes one document.
func (g *Gateway) Delete(ctx context.Context, index, id string, refresh gateway.RefreshPolicy) error {
	opts := []func(*esapi.DeleteRequest){g.client.Delete.WithContext(ctx)}
	if refresh != "" {
		opts = append(opts, g.client.Delete.WithRefresh(string(refresh)))
	}

	res, err := g.client.Delete(index, id, opts...)
	if err != nil {
		return serrors.BackendError("delete document "+id, err)
	}
	defer drain(res)
	if res.IsError() {
		return rejected("delete document "+id, res)
	}
	return nil
}

// Bulk sends ops as one NDJSON request.
func (g *Gateway) Bulk(ctx context.Context, ops []gateway.BulkOp, refresh gateway.RefreshPolicy) (*gateway.BulkResponse, error) {
	body, err := encodeBulk(ops)
	if err != nil {
		return nil, serrors.InternalError("encode bulk request", err)
	}

	opts := []func(*esapi.BulkRequest){g.client.Bulk.WithContext(ctx)}
	if refresh != "" {
		opts = append(opts, g.client.Bulk.WithRefresh(string(refresh)))
	}

	res, err := g.client.Bulk(bytes.NewReader(body), opts...)
	if err != nil {
		return nil, serrors.BackendError("bulk request", err)
	}
	defer drain(res)
	if res.IsError() {
		return nil, rejected("bulk request", res)
	}

	return decodeBulk(res.Body)
}

// Get fetches one document. A missing document yields nil; a missing index
// is rejected.
func (g *Gateway) Get(ctx context.Context, index, id string) (*gateway.Hit, error) {
	res, err := g.client.Get(index, id, g.client.Get.WithContext(ctx))
	if err != nil {
		return nil, serrors.BackendError("get document "+id, err)
	}
	defer drain(res)

	var body struct {
		Index   string          `json:"_index"`
		ID      string          `json:"_id"`
		Version int64           `json:"_version"`
		Found   bool            `json:"found"`
		Source  json.RawMessage `json:"_source"`
		Error   json.RawMessage `json:"error"`
	}
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, serrors.BackendError("read get response", err)
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, serrors.BackendError("decode get response", err)
	}

	if res.StatusCode == 404 && body.Error == nil {
		return nil, nil
	}
	if res.IsError() {
		return nil, serrors.New(serrors.ErrCodeBackendRejected,
			fmt.Sprintf("get document %s: status %d", id, res.StatusCode), nil).
			WithDetail("status", fmt.Sprint(res.StatusCode)).
			WithDetail("reason", strings.TrimSpace(string(body.Error)))
	}
	if !body.Found {
		return nil, nil
	}
	return &gateway.Hit{Index: body.Index, ID: body.ID, Version: body.Version, Source: body.Source}, nil
}

// Count returns the number of documents in an index or alias.
func (g *Gateway) Count(ctx context.Context, name string) (uint64, error) {
	res, err := g.client.Count(
		g.client.Count.WithIndex(name),
		g.client.Count.WithContext(ctx))
	if err != nil {
		return 0, serrors.BackendError("count "+name, err)
	}
	defer drain(res)
	if res.IsError() {
		return 0, rejected("count "+name, res)
	}

	var body struct {
		Count uint64 `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, serrors.BackendError("decode count response", err)
	}
	return body.Count, nil
}

// Close is a no-op; the client holds no long-lived resources.
func (g *Gateway) Close() error {
	return nil
}

type bulkMeta struct {
	Index       string `json:"_index,omitempty"`
	ID          string `json:"_id,omitempty"`
	Version     int64  `json:"version,omitempty"`
	VersionType string `json:"version_type,omitempty"`
}

func encodeBulk(ops []gateway.BulkOp) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for _, op := range ops {
		meta := bulkMeta{Index: op.Index, ID: op.ID}
		if op.VersionType != "" {
			meta.Version = op.Version
			meta.VersionType = op.VersionType
		}
		if err := enc.Encode(map[string]bulkMeta{string(op.Op): meta}); err != nil {
			return nil, err
		}
		if op.Op == gateway.OpIndex {
			buf.Write(bytes.TrimRight(op.Body, "\n"))
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

type bulkResult struct {
	Index  string     `json:"_index"`
	ID     string     `json:"_id"`
	Status int        `json:"status"`
	Error  *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func decodeBulk(r io.Reader) (*gateway.BulkResponse, error) {
	var body struct {
		Took  int64                   `json:"took"`
		Items []map[string]bulkResult `json:"items"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, serrors.BackendError("decode bulk response", err)
	}

	resp := &gateway.BulkResponse{TookMs: body.Took, Items: make([]gateway.BulkItem, 0, len(body.Items))}
	for _, entry := range body.Items {
		for op, result := range entry {
			item := gateway.BulkItem{
				Op:     gateway.OpType(op),
				Index:  result.Index,
				ID:     result.ID,
				Status: result.Status,
			}
			if result.Error != nil {
				item.Error = result.Error.Type + ": " + result.Error.Reason
			}
			resp.Items = append(resp.Items, item)
		}
	}
	return resp, nil
}

func acknowledged(what string, res *esapi.Response, err error) error {
	if err != nil {
		return serrors.BackendError(what, err)
	}
	defer drain(res)
	if res.IsError() {
		return rejected(what, res)
	}

	var body struct {
		Acknowledged bool `json:"acknowledged"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return serrors.BackendError("decode response for "+what, err)
	}
	if !body.Acknowledged {
		return serrors.New(serrors.ErrCodeNotAcknowledged, what+" not acknowledged", nil)
	}
	return nil
}

func rejected(what string, res *esapi.Response) error {
	var body struct {
		Error json.RawMessage `json:"error"`
	}
	_ = json.NewDecoder(res.Body).Decode(&body)

	reason := strings.TrimSpace(string(body.Error))
	if reason == "" {
		reason = res.Status()
	}
	return serrors.New(serrors.ErrCodeBackendRejected, fmt.Sprintf("%s: status %d", what, res.StatusCode), nil).
		WithDetail("status", fmt.Sprint(res.StatusCode)).
		WithDetail("reason", reason)
}

func drain(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}
}
