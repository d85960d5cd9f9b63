package docsync

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchsync/internal/gateway"
	"github.com/Aman-CERP/searchsync/internal/schema"
	"github.com/Aman-CERP/searchsync/internal/source"
)

type product struct {
	SKU   string  `json:"sku"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

func productCompiler(t *testing.T) *schema.Compiler {
	t.Helper()
	reg, err := schema.NewRegistry(
		schema.TypeDef{
			Name: "product",
			Fields: []schema.FieldDescriptor{
				{Name: "sku", Type: schema.Keyword, SearchID: true},
				{Name: "name", Type: schema.Text},
				{Name: "price", Type: schema.Double},
			},
		},
		schema.TypeDef{
			Name:   "keyless",
			Fields: []schema.FieldDescriptor{{Name: "name", Type: schema.Text}},
		},
	)
	require.NoError(t, err)
	return schema.NewCompiler(reg)
}

func catalog(n int) []product {
	out := make([]product, n)
	for i := range out {
		out[i] = product{SKU: fmt.Sprintf("SKU%04d", i), Name: fmt.Sprintf("product %d", i), Price: float64(i)}
	}
	return out
}

// pageCall is one Page request seen by a recordingSource.
type pageCall struct {
	Offset, Limit int
}

// recordingSource serves a slice and records every page request.
type recordingSource struct {
	mu    sync.Mutex
	data  []product
	calls []pageCall

	// failAt makes Page fail for offsets in [lo, hi).
	failAt func(offset int) error
}

func (s *recordingSource) Page(_ context.Context, offset, limit int) ([]product, error) {
	s.mu.Lock()
	s.calls = append(s.calls, pageCall{offset, limit})
	s.mu.Unlock()

	if s.failAt != nil {
		if err := s.failAt(offset); err != nil {
			return nil, err
		}
	}
	if offset >= len(s.data) {
		return nil, nil
	}
	end := min(offset+limit, len(s.data))
	return s.data[offset:end], nil
}

func (s *recordingSource) ByID(_ context.Context, id string) ([]product, error) {
	var out []product
	for _, p := range s.data {
		if p.SKU == id {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *recordingSource) sortedCalls() []pageCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]pageCall(nil), s.calls...)
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

var _ source.Source[product] = (*recordingSource)(nil)

// fakeGateway records calls and answers from canned state.
type fakeGateway struct {
	mu sync.Mutex

	calls   []string
	bulks   [][]gateway.BulkOp
	actions []gateway.AliasAction
	deleted []string
	indexed []gateway.IndexRequest

	exists  bool
	bound   map[string][]string
	bulkFn  func(ops []gateway.BulkOp) (*gateway.BulkResponse, error)
	failOn  map[string]error
	settled map[string]string
	stored  map[string]*gateway.Hit
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failOn: map[string]error{}}
}

func (f *fakeGateway) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.failOn[call]
}

func (f *fakeGateway) CreateIndex(_ context.Context, _ string) error {
	return f.record("CreateIndex")
}

func (f *fakeGateway) PutMapping(_ context.Context, _ string, _ *schema.Mapping) error {
	return f.record("PutMapping")
}

func (f *fakeGateway) IndexExists(_ context.Context, _ string) (bool, error) {
	return f.exists, f.record("IndexExists")
}

func (f *fakeGateway) GetAlias(_ context.Context, _ string) (map[string][]string, error) {
	if f.bound == nil {
		return map[string][]string{}, f.record("GetAlias")
	}
	return f.bound, f.record("GetAlias")
}

func (f *fakeGateway) UpdateAliases(_ context.Context, actions []gateway.AliasAction) error {
	if err := f.record("UpdateAliases"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, actions...)
	return nil
}

func (f *fakeGateway) DeleteIndex(_ context.Context, name string) error {
	if err := f.record("DeleteIndex"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, name)
	return nil
}

func (f *fakeGateway) PutSettings(_ context.Context, _ string, settings map[string]string) error {
	if err := f.record("PutSettings"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settled = settings
	return nil
}

func (f *fakeGateway) Index(_ context.Context, req gateway.IndexRequest) error {
	if err := f.record("Index"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, req)
	return nil
}

func (f *fakeGateway) Delete(_ context.Context, _, _ string, _ gateway.RefreshPolicy) error {
	return f.record("Delete")
}

func (f *fakeGateway) Bulk(_ context.Context, ops []gateway.BulkOp, _ gateway.RefreshPolicy) (*gateway.BulkResponse, error) {
	if err := f.record("Bulk"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.bulks = append(f.bulks, ops)
	fn := f.bulkFn
	f.mu.Unlock()

	if fn != nil {
		return fn(ops)
	}
	resp := &gateway.BulkResponse{}
	for _, op := range ops {
		resp.Items = append(resp.Items, gateway.BulkItem{Op: op.Op, Index: op.Index, ID: op.ID, Status: 201})
	}
	return resp, nil
}

func (f *fakeGateway) Get(_ context.Context, _, id string) (*gateway.Hit, error) {
	if err := f.record("Get"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stored[id], nil
}

func (f *fakeGateway) Close() error { return nil }

func (f *fakeGateway) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

var _ gateway.Gateway = (*fakeGateway)(nil)

// fixedClock returns a clock that only moves when advanced.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
