package gateway

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Aman-CERP/searchsync/internal/schema"
)

const instrumentationName = "github.com/Aman-CERP/searchsync/internal/gateway"

// Traced wraps a Gateway and records one span per backend call.
type Traced struct {
	inner  Gateway
	tracer trace.Tracer
}

// NewTraced wraps inner. A nil provider falls back to the global one.
func NewTraced(inner Gateway, provider trace.TracerProvider) *Traced {
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Traced{inner: inner, tracer: provider.Tracer(instrumentationName)}
}

func (t *Traced) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "searchsync.gateway."+name, trace.WithAttributes(attrs...))
}

func end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *Traced) CreateIndex(ctx context.Context, name string) (err error) {
	ctx, span := t.start(ctx, "create_index", attribute.String("index", name))
	defer func() { end(span, err) }()
	return t.inner.CreateIndex(ctx, name)
}

func (t *Traced) PutMapping(ctx context.Context, index string, mapping *schema.Mapping) (err error) {
	ctx, span := t.start(ctx, "put_mapping",
		attribute.String("index", index), attribute.String("type", mapping.TypeName))
	defer func() { end(span, err) }()
	return t.inner.PutMapping(ctx, index, mapping)
}

func (t *Traced) IndexExists(ctx context.Context, name string) (ok bool, err error) {
	ctx, span := t.start(ctx, "index_exists", attribute.String("index", name))
	defer func() {
		span.SetAttributes(attribute.Bool("exists", ok))
		end(span, err)
	}()
	return t.inner.IndexExists(ctx, name)
}

func (t *Traced) GetAlias(ctx context.Context, alias string) (bound map[string][]string, err error) {
	ctx, span := t.start(ctx, "get_alias", attribute.String("alias", alias))
	defer func() {
		span.SetAttributes(attribute.Int("indices", len(bound)))
		end(span, err)
	}()
	return t.inner.GetAlias(ctx, alias)
}

func (t *Traced) UpdateAliases(ctx context.Context, actions []AliasAction) (err error) {
	ctx, span := t.start(ctx, "update_aliases", attribute.Int("actions", len(actions)))
	defer func() { end(span, err) }()
	return t.inner.UpdateAliases(ctx, actions)
}

func (t *Traced) DeleteIndex(ctx context.Context, name string) (err error) {
	ctx, span := t.start(ctx, "delete_index", attribute.String("index", name))
	defer func() { end(span, err) }()
	return t.inner.DeleteIndex(ctx, name)
}

func (t *Traced) PutSettings(ctx context.Context, index string, settings map[string]string) (err error) {
	ctx, span := t.start(ctx, "put_settings", attribute.String("index", index))
	defer func() { end(span, err) }()
	return t.inner.PutSettings(ctx, index, settings)
}

func (t *Traced) Index(ctx context.Context, req IndexRequest) (err error) {
	ctx, span := t.start(ctx, "index",
		attribute.String("index", req.Index),
		attribute.String("id", req.ID),
		attribute.Int64("version", req.Version))
	defer func() { end(span, err) }()
	return t.inner.Index(ctx, req)
}

func (t *Traced) Delete(ctx context.Context, index, id string, refresh RefreshPolicy) (err error) {
	ctx, span := t.start(ctx, "delete", attribute.String("index", index), attribute.String("id", id))
	defer func() { end(span, err) }()
	return t.inner.Delete(ctx, index, id, refresh)
}

func (t *Traced) Bulk(ctx context.Context, ops []BulkOp, refresh RefreshPolicy) (resp *BulkResponse, err error) {
	ctx, span := t.start(ctx, "bulk", attribute.Int("ops", len(ops)))
	defer func() {
		if resp != nil {
			span.SetAttributes(attribute.Int("failed", len(resp.Failures())))
		}
		end(span, err)
	}()
	return t.inner.Bulk(ctx, ops, refresh)
}

func (t *Traced) Get(ctx context.Context, index, id string) (hit *Hit, err error) {
	ctx, span := t.start(ctx, "get", attribute.String("index", index), attribute.String("id", id))
	defer func() {
		span.SetAttributes(attribute.Bool("found", hit != nil))
		end(span, err)
	}()
	return t.inner.Get(ctx, index, id)
}

func (t *Traced) Close() error {
	return t.inner.Close()
}
