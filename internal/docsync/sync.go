package docsync

import (
	"context"
	"log/slog"
	"net/http"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/gateway"
)

// Upsert loads the records for id and writes each under its natural key
// with an external version taken from the wall clock. The newest version
// wins at the backend regardless of arrival order.
func (s *Service[T]) Upsert(ctx context.Context, id string) Outcome {
	recs, err := s.src.ByID(ctx, id)
	if err != nil {
		err = serrors.New(serrors.ErrCodeSourceFailed, "load "+s.typeName+" "+id, err)
		slog.Warn("upsert_source_failed", append(serrors.LogAttrs(err), slog.String("id", id))...)
		return absorbed(err)
	}
	if len(recs) == 0 {
		slog.Info("upsert_not_found", slog.String("type", s.typeName), slog.String("id", id))
		return Outcome{Status: StatusNotFound}
	}

	var out Outcome
	for _, rec := range recs {
		doc, err := encode(rec, s.idField.Name)
		if err != nil {
			out.Failed++
			out.Err = err
			slog.Warn("upsert_record_skipped", append(serrors.LogAttrs(err), slog.String("id", id))...)
			continue
		}

		err = s.gw.Index(ctx, gateway.IndexRequest{
			Index:       s.alias,
			ID:          doc.Key,
			Body:        doc.Body,
			Version:     s.now().UnixMilli(),
			VersionType: gateway.VersionExternal,
			Refresh:     s.opts.Refresh,
		})
		if err != nil {
			out.Failed++
			out.Err = err
			if gateway.Status(err) == http.StatusConflict {
				slog.Debug("upsert_version_conflict", slog.String("alias", s.alias), slog.String("key", doc.Key))
			} else {
				slog.Warn("upsert_failed", append(serrors.LogAttrs(err), slog.String("key", doc.Key))...)
			}
			continue
		}
		out.Written++
	}

	out = settle(out)
	slog.Debug("upsert_done", slog.String("id", id), slog.String("status", string(out.Status)),
		slog.Int("written", out.Written), slog.Int("failed", out.Failed))
	return out
}

// Delete removes the document with the given id from the alias.
func (s *Service[T]) Delete(ctx context.Context, id string) Outcome {
	key := NaturalKey(id)
	err := s.gw.Delete(ctx, s.alias, key, s.opts.Refresh)
	switch {
	case err == nil:
		return Outcome{Status: StatusOK, Written: 1}
	case gateway.Status(err) == http.StatusNotFound:
		slog.Info("delete_not_found", slog.String("alias", s.alias), slog.String("key", key))
		return Outcome{Status: StatusNotFound}
	default:
		slog.Warn("delete_failed", append(serrors.LogAttrs(err), slog.String("key", key))...)
		return absorbed(err)
	}
}

// BatchDelete removes all ids in one bulk request. An empty list makes no
// backend call. Rejected items are logged and counted, never retried.
func (s *Service[T]) BatchDelete(ctx context.Context, ids []string) Outcome {
	if len(ids) == 0 {
		return Outcome{Status: StatusSkipped}
	}

	ops := make([]gateway.BulkOp, len(ids))
	for i, id := range ids {
		ops[i] = gateway.BulkOp{Op: gateway.OpDelete, Index: s.alias, ID: NaturalKey(id)}
	}

	resp, err := s.gw.Bulk(ctx, ops, s.opts.Refresh)
	if err != nil {
		slog.Warn("batch_delete_failed", append(serrors.LogAttrs(err), slog.Int("ids", len(ids)))...)
		return Outcome{Status: StatusAbsorbed, Failed: len(ids), Err: err}
	}

	out := Outcome{}
	for _, item := range resp.Items {
		if item.Failed() {
			out.Failed++
			slog.Warn("bulk_item_failed", slog.String("op", string(item.Op)), slog.String("key", item.ID),
				slog.Int("status", item.Status), slog.String("error", item.Error))
			continue
		}
		out.Written++
	}
	if out.Failed > 0 {
		out.Err = serrors.New(serrors.ErrCodeBulkPartial, "bulk delete had rejected items", nil)
	}
	return settle(out)
}

// Get reads the document stored for id through the alias back into a
// record. Unlike the write operations it returns errors to the caller.
func (s *Service[T]) Get(ctx context.Context, id string) (T, *gateway.Hit, error) {
	var zero T
	hit, err := s.gw.Get(ctx, s.alias, NaturalKey(id))
	if err != nil || hit == nil {
		return zero, nil, err
	}
	recs, err := Decode[T]([]gateway.Hit{*hit})
	if err != nil {
		return zero, nil, err
	}
	return recs[0], hit, nil
}
