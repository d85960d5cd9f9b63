package local

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/gateway"
)

func sourceKey(id string) []byte  { return []byte("src:" + id) }
func versionKey(id string) []byte { return []byte("ver:" + id) }

// pendingBatch accumulates the writes of one request against one index.
type pendingBatch struct {
	p     *physical
	batch *bleve.Batch

	// staged holds versions written earlier in the same request;
	// -1 marks a staged delete.
	staged map[string]int64
}

func newPending(p *physical) *pendingBatch {
	return &pendingBatch{p: p, batch: p.index.NewBatch(), staged: make(map[string]int64)}
}

// current returns the stored version and whether the document exists.
func (pb *pendingBatch) current(id string) (int64, bool, error) {
	if v, ok := pb.staged[id]; ok {
		return v, v >= 0, nil
	}
	src, err := pb.p.index.GetInternal(sourceKey(id))
	if err != nil {
		return 0, false, err
	}
	if src == nil {
		return 0, false, nil
	}
	raw, err := pb.p.index.GetInternal(versionKey(id))
	if err != nil || raw == nil {
		return 0, true, err
	}
	v, _ := strconv.ParseInt(string(raw), 10, 64)
	return v, true, nil
}

// index stages a write and returns the item status.
func (pb *pendingBatch) index(id string, body []byte, version int64, versionType string) (int, error) {
	stored, exists, err := pb.current(id)
	if err != nil {
		return 500, serrors.BackendError("read version of "+id, err)
	}
	if versionType == gateway.VersionExternal && exists && version <= stored {
		return 409, rejected(409, "version_conflict_engine_exception",
			"["+id+"]: version conflict, current version ["+strconv.FormatInt(stored, 10)+
				"] is higher or equal to the one provided ["+strconv.FormatInt(version, 10)+"]")
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return 400, rejected(400, "mapper_parsing_exception", "failed to parse document ["+id+"]: "+err.Error())
	}
	if im, ok := pb.p.index.Mapping().(*mapping.IndexMappingImpl); ok {
		epochDates(im.DefaultMapping, doc)
	}
	if err := pb.batch.Index(id, doc); err != nil {
		return 400, rejected(400, "mapper_parsing_exception", err.Error())
	}
	if versionType != gateway.VersionExternal {
		version = stored + 1
	}
	pb.batch.SetInternal(sourceKey(id), body)
	pb.batch.SetInternal(versionKey(id), []byte(strconv.FormatInt(version, 10)))
	pb.staged[id] = version

	if exists {
		return 200, nil
	}
	return 201, nil
}

// remove stages a delete and returns the item status.
func (pb *pendingBatch) remove(id string) (int, error) {
	_, exists, err := pb.current(id)
	if err != nil {
		return 500, serrors.BackendError("read version of "+id, err)
	}
	if !exists {
		return 404, nil
	}
	pb.batch.Delete(id)
	pb.batch.DeleteInternal(sourceKey(id))
	pb.batch.DeleteInternal(versionKey(id))
	pb.staged[id] = -1
	return 200, nil
}

func (pb *pendingBatch) commit() error {
	if pb.batch.Size() == 0 {
		return nil
	}
	if err := pb.p.index.Batch(pb.batch); err != nil {
		return serrors.BackendError("commit batch to "+pb.p.name, err)
	}
	return nil
}

// Index writes one document.
func (b *Backend) Index(_ context.Context, req gateway.IndexRequest) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	pb, err := b.pendingFor(req.Index)
	if err != nil {
		return err
	}
	if _, err := pb.index(req.ID, req.Body, req.Version, req.VersionType); err != nil {
		return err
	}
	return pb.commit()
}

// Delete removes one document; a missing document is rejected with 404.
func (b *Backend) Delete(_ context.Context, index, id string, _ gateway.RefreshPolicy) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	pb, err := b.pendingFor(index)
	if err != nil {
		return err
	}
	status, err := pb.remove(id)
	if err != nil {
		return err
	}
	if status == 404 {
		return rejected(404, "not_found", "document ["+id+"] not found in ["+index+"]")
	}
	return pb.commit()
}

// Bulk applies ops, committing one bleve batch per target index.
func (b *Backend) Bulk(_ context.Context, ops []gateway.BulkOp, _ gateway.RefreshPolicy) (*gateway.BulkResponse, error) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	start := time.Now()
	resp := &gateway.BulkResponse{Items: make([]gateway.BulkItem, 0, len(ops))}
	pending := make(map[string]*pendingBatch)
	var order []*pendingBatch

	for _, op := range ops {
		item := gateway.BulkItem{Op: op.Op, Index: op.Index, ID: op.ID}

		pb, ok := pending[op.Index]
		if !ok {
			var err error
			pb, err = b.pendingFor(op.Index)
			if err != nil {
				item.Status, item.Error = 404, err.Error()
				resp.Items = append(resp.Items, item)
				continue
			}
			pending[op.Index] = pb
			order = append(order, pb)
		}
		item.Index = pb.p.name

		var err error
		switch op.Op {
		case gateway.OpIndex:
			item.Status, err = pb.index(op.ID, op.Body, op.Version, op.VersionType)
		case gateway.OpDelete:
			item.Status, err = pb.remove(op.ID)
		default:
			item.Status, err = 400, rejected(400, "illegal_argument_exception", "unknown bulk op "+string(op.Op))
		}
		if err != nil {
			item.Error = err.Error()
		}
		resp.Items = append(resp.Items, item)
	}

	for _, pb := range order {
		if err := pb.commit(); err != nil {
			return nil, err
		}
	}

	resp.TookMs = time.Since(start).Milliseconds()
	return resp, nil
}

func (b *Backend) pendingFor(name string) (*pendingBatch, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	p, err := b.resolveWrite(name)
	if err != nil {
		return nil, err
	}
	return newPending(p), nil
}

// Count returns the number of documents in name.
func (b *Backend) Count(_ context.Context, name string) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	targets, err := b.resolve(name)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, p := range targets {
		n, err := p.index.DocCount()
		if err != nil {
			return 0, serrors.BackendError("count documents in "+p.name, err)
		}
		total += n
	}
	return total, nil
}

// Get returns the stored source of a document and its version.
func (b *Backend) Get(_ context.Context, name, id string) (*gateway.Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	targets, err := b.resolve(name)
	if err != nil {
		return nil, err
	}
	for _, p := range targets {
		pb := &pendingBatch{p: p, staged: map[string]int64{}}
		version, exists, err := pb.current(id)
		if err != nil {
			return nil, serrors.BackendError("read document "+id, err)
		}
		if !exists {
			continue
		}
		src, err := p.index.GetInternal(sourceKey(id))
		if err != nil {
			return nil, serrors.BackendError("read document "+id, err)
		}
		return &gateway.Hit{Index: p.name, ID: id, Version: version, Source: src}, nil
	}
	return nil, nil
}

// epochDates replaces epoch millisecond numbers on datetime fields with
// times. bleve only indexes dates it parses from strings or receives as
// time.Time.
func epochDates(dm *mapping.DocumentMapping, doc map[string]any) {
	if dm == nil {
		return
	}
	for name, v := range doc {
		sub := dm.Properties[name]
		if sub == nil {
			continue
		}
		if len(sub.Fields) > 0 && sub.Fields[0].Type == "datetime" {
			doc[name] = epochValue(v)
			continue
		}
		switch v := v.(type) {
		case map[string]any:
			epochDates(sub, v)
		case []any:
			for _, elem := range v {
				if m, ok := elem.(map[string]any); ok {
					epochDates(sub, m)
				}
			}
		}
	}
}

func epochValue(v any) any {
	switch v := v.(type) {
	case float64:
		return time.UnixMilli(int64(v)).UTC()
	case []any:
		for i, elem := range v {
			v[i] = epochValue(elem)
		}
		return v
	default:
		return v
	}
}
