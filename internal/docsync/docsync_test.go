package docsync

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/gateway"
	"github.com/Aman-CERP/searchsync/internal/gateway/local"
	"github.com/Aman-CERP/searchsync/internal/schema"
	"github.com/Aman-CERP/searchsync/internal/source"
)

func newLocalService(t *testing.T, src source.Source[product], clock *fixedClock) (*Service[product], *local.Backend) {
	t.Helper()
	backend := local.NewMemory()
	t.Cleanup(func() { _ = backend.Close() })

	svc, err := New(Deps[product]{
		Compiler: productCompiler(t),
		TypeName: "product",
		Alias:    "products",
		Gateway:  backend,
		Source:   src,
		Options:  Options{Concurrency: 3, PageSize: 4, BatchCeiling: 10},
		Now:      clock.Now,
	})
	require.NoError(t, err)
	return svc, backend
}

func newFakeService(t *testing.T, gw *fakeGateway, src source.Source[product], opts Options) *Service[product] {
	t.Helper()
	svc, err := New(Deps[product]{
		Compiler: productCompiler(t),
		TypeName: "product",
		Alias:    "products",
		Gateway:  gw,
		Source:   src,
		Options:  opts,
	})
	require.NoError(t, err)
	return svc
}

func TestNew_MissingSearchIDIsConfigError(t *testing.T) {
	// Given: a type without a search-id field
	_, err := New(Deps[product]{
		Compiler: productCompiler(t),
		TypeName: "keyless",
		Alias:    "keyless",
		Gateway:  newFakeGateway(),
		Source:   &recordingSource{},
	})

	// Then: construction fails with a configuration error
	require.Error(t, err)
	assert.True(t, serrors.IsConfig(err))
	assert.Equal(t, serrors.ErrCodeMissingSearchID, serrors.GetCode(err))
}

func TestNew_RequiresAlias(t *testing.T) {
	_, err := New(Deps[product]{
		Compiler: productCompiler(t),
		TypeName: "product",
		Gateway:  newFakeGateway(),
		Source:   &recordingSource{},
	})
	require.Error(t, err)
	assert.True(t, serrors.IsConfig(err))
}

func TestNew_AppliesDefaults(t *testing.T) {
	svc := newFakeService(t, newFakeGateway(), &recordingSource{}, Options{})

	assert.Equal(t, DefaultOptions(), svc.opts)
	assert.Nil(t, svc.limiter)
	assert.Equal(t, "products", svc.Alias())
	_, ok := svc.Mapping().Property("name")
	assert.True(t, ok)
}

func TestNaturalKey(t *testing.T) {
	// Given: a short and a long key
	short := "SKU0001"
	long := strings.Repeat("x", 600)

	// Then: the short key is kept and the long one is hashed
	assert.Equal(t, short, NaturalKey(short))
	assert.Equal(t, strings.Repeat("y", MaxKeyLength), NaturalKey(strings.Repeat("y", MaxKeyLength)))

	sum := md5.Sum([]byte(long))
	hashed := NaturalKey(long)
	assert.Equal(t, hex.EncodeToString(sum[:]), hashed)
	assert.Len(t, hashed, 32)
}

func TestEncode_KeyRendering(t *testing.T) {
	tests := []struct {
		name string
		rec  any
		want string
	}{
		{"string", map[string]any{"id": "abc"}, "abc"},
		{"integer", map[string]any{"id": 42}, "42"},
		{"large integer", struct {
			ID int64 `json:"id"`
		}{9007199254740993}, "9007199254740993"},
		{"beyond int64", struct {
			ID uint64 `json:"id"`
		}{12345678901234567891}, "12345678901234567891"},
		{"exponent", map[string]any{"id": json.Number("1.25e3")}, "1250"},
		{"float", map[string]any{"id": 1.5}, "1.5"},
		{"bool", map[string]any{"id": true}, "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := encode(tt.rec, "id")
			require.NoError(t, err)
			assert.Equal(t, tt.want, doc.Key)
			assert.True(t, json.Valid(doc.Body))
		})
	}
}

func TestEncode_UnsignedKeysStayDistinct(t *testing.T) {
	type row struct {
		ID uint64 `json:"id"`
	}

	// Given: two keys above the int64 range one apart
	a, err := encode(row{ID: 12345678901234567891}, "id")
	require.NoError(t, err)
	b, err := encode(row{ID: 12345678901234567892}, "id")
	require.NoError(t, err)

	// Then: each key keeps every digit
	assert.NotEqual(t, a.Key, b.Key)
	assert.Equal(t, NaturalKey("12345678901234567891"), a.Key)
	assert.Equal(t, NaturalKey("12345678901234567892"), b.Key)
}

func TestEncode_TimesAsEpochMillis(t *testing.T) {
	type event struct {
		ID        string     `json:"id"`
		CreatedAt time.Time  `json:"createdAt"`
		ShippedAt *time.Time `json:"shippedAt"`
		VoidedAt  *time.Time `json:"voidedAt"`
	}
	at := time.Date(2024, 3, 9, 14, 30, 5, 250*int(time.Millisecond), time.UTC)
	shipped := at.Add(time.Hour)

	tests := []struct {
		name string
		rec  any
	}{
		{"struct", event{ID: "e1", CreatedAt: at, ShippedAt: &shipped}},
		{"map", map[string]any{"id": "e1", "createdAt": at, "shippedAt": &shipped, "voidedAt": nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: encoding a record holding times
			doc, err := encode(tt.rec, "id")
			require.NoError(t, err)

			// Then: times are epoch millis accepted by the date format
			var body map[string]any
			dec := json.NewDecoder(strings.NewReader(string(doc.Body)))
			dec.UseNumber()
			require.NoError(t, dec.Decode(&body))
			assert.Equal(t, json.Number("1709994605250"), body["createdAt"])
			assert.Equal(t, json.Number("1709998205250"), body["shippedAt"])
			assert.Nil(t, body["voidedAt"])
			assert.True(t, acceptsDate(body["createdAt"].(json.Number).String()))
			assert.True(t, acceptsDate(body["shippedAt"].(json.Number).String()))
		})
	}
}

func TestAcceptsDate_RejectsRFC3339(t *testing.T) {
	assert.True(t, acceptsDate("2024-03-09 14:30:05"))
	assert.True(t, acceptsDate("2024-03-09"))
	assert.True(t, acceptsDate("1709994605250"))
	assert.False(t, acceptsDate("2024-03-09T14:30:05.25Z"))
}

// acceptsDate reports whether v matches one of the formats in
// schema.DateFormat.
func acceptsDate(v string) bool {
	layouts := map[string]string{
		"yyyy-MM-dd HH:mm:ss": "2006-01-02 15:04:05",
		"yyyy-MM-dd":          "2006-01-02",
	}
	for _, format := range strings.Split(schema.DateFormat, "||") {
		if format == "epoch_millis" {
			if _, err := strconv.ParseInt(v, 10, 64); err == nil {
				return true
			}
			continue
		}
		if _, err := time.Parse(layouts[format], v); err == nil {
			return true
		}
	}
	return false
}

func TestEncode_MissingKey(t *testing.T) {
	for _, rec := range []map[string]any{{"name": "x"}, {"id": nil}, {"id": ""}} {
		_, err := encode(rec, "id")
		require.Error(t, err)
		assert.Equal(t, serrors.ErrCodeMissingKey, serrors.GetCode(err))
	}
}

func TestEncode_LongKeyHashed(t *testing.T) {
	// Given: a record whose key exceeds the limit
	rec := product{SKU: strings.Repeat("k", 513)}

	// When: encoding
	doc, err := encode(rec, "sku")
	require.NoError(t, err)

	// Then: the id is the fixed-length hash, the body keeps the raw value
	assert.Len(t, doc.Key, 32)
	assert.Contains(t, string(doc.Body), rec.SKU)
}

func TestDedupe_FirstWins(t *testing.T) {
	docs := []document{
		{Key: "a", Body: []byte(`{"v":1}`)},
		{Key: "b", Body: []byte(`{"v":2}`)},
		{Key: "a", Body: []byte(`{"v":3}`)},
	}

	kept, dropped := dedupe(docs)

	assert.Equal(t, 1, dropped)
	require.Len(t, kept, 2)
	assert.Equal(t, `{"v":1}`, string(kept[0].Body))
	assert.Equal(t, "b", kept[1].Key)
}

func TestUpsert_WritesWithExternalVersion(t *testing.T) {
	// Given: a built alias and a fixed clock
	ctx := context.Background()
	clock := &fixedClock{now: time.UnixMilli(1_700_000_000_000)}
	src := &recordingSource{data: catalog(5)}
	svc, backend := newLocalService(t, src, clock)
	_, err := svc.Reindex(ctx, "_v1")
	require.NoError(t, err)

	// When: upserting after the clock moved on
	clock.Advance(time.Second)
	src.data[2].Name = "renamed"
	out := svc.Upsert(ctx, "SKU0002")

	// Then: the new body is stored under the clock's version
	assert.Equal(t, StatusOK, out.Status)
	assert.Equal(t, 1, out.Written)
	hit, err := backend.Get(ctx, "products", "SKU0002")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, clock.Now().UnixMilli(), hit.Version)
	assert.Contains(t, string(hit.Source), "renamed")
}

func TestUpsert_OlderVersionIsAbsorbed(t *testing.T) {
	// Given: a document written at the current clock
	ctx := context.Background()
	clock := &fixedClock{now: time.UnixMilli(1_700_000_000_000)}
	svc, _ := newLocalService(t, &recordingSource{data: catalog(2)}, clock)
	_, err := svc.Reindex(ctx, "_v1")
	require.NoError(t, err)

	// When: upserting again without the clock moving
	out := svc.Upsert(ctx, "SKU0001")

	// Then: the backend rejects the stale version and the call returns normally
	assert.Equal(t, StatusAbsorbed, out.Status)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, 409, gateway.Status(out.Err))
}

func TestUpsert_NotFound(t *testing.T) {
	gw := newFakeGateway()
	svc := newFakeService(t, gw, &recordingSource{data: catalog(1)}, Options{})

	out := svc.Upsert(context.Background(), "missing")

	assert.Equal(t, StatusNotFound, out.Status)
	assert.Zero(t, gw.count("Index"))
}

func TestUpsert_SourceFailureIsAbsorbed(t *testing.T) {
	gw := newFakeGateway()
	src := source.Funcs[product]{
		ByIDFunc: func(context.Context, string) ([]product, error) { return nil, errors.New("db down") },
	}
	svc := newFakeService(t, gw, src, Options{})

	out := svc.Upsert(context.Background(), "SKU0001")

	assert.Equal(t, StatusAbsorbed, out.Status)
	assert.Equal(t, serrors.ErrCodeSourceFailed, serrors.GetCode(out.Err))
}

func TestUpsert_OneWritePerRecord(t *testing.T) {
	// Given: two records sharing a domain id but not a key
	gw := newFakeGateway()
	src := source.Funcs[product]{
		ByIDFunc: func(context.Context, string) ([]product, error) {
			return []product{{SKU: "A1"}, {SKU: "A2"}, {Name: "no key"}}, nil
		},
	}
	svc := newFakeService(t, gw, src, Options{Refresh: gateway.RefreshWaitFor})

	// When: upserting
	out := svc.Upsert(context.Background(), "A")

	// Then: keyed records are written one by one, the keyless one is skipped
	assert.Equal(t, StatusPartial, out.Status)
	assert.Equal(t, 2, out.Written)
	assert.Equal(t, 1, out.Failed)
	require.Len(t, gw.indexed, 2)
	for _, req := range gw.indexed {
		assert.Equal(t, "products", req.Index)
		assert.Equal(t, gateway.VersionExternal, req.VersionType)
		assert.Equal(t, gateway.RefreshWaitFor, req.Refresh)
	}
}

func TestDelete(t *testing.T) {
	// Given: a built alias
	ctx := context.Background()
	clock := &fixedClock{now: time.UnixMilli(1_700_000_000_000)}
	svc, backend := newLocalService(t, &recordingSource{data: catalog(3)}, clock)
	_, err := svc.Reindex(ctx, "_v1")
	require.NoError(t, err)

	// When: deleting an existing and a missing id
	ok := svc.Delete(ctx, "SKU0000")
	missing := svc.Delete(ctx, "SKU9999")

	// Then: the document is gone and the missing one is reported
	assert.Equal(t, StatusOK, ok.Status)
	assert.Equal(t, StatusNotFound, missing.Status)
	n, err := backend.Count(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}

func TestDelete_TransportFailureIsAbsorbed(t *testing.T) {
	gw := newFakeGateway()
	gw.failOn["Delete"] = serrors.BackendError("connection refused", nil)
	svc := newFakeService(t, gw, &recordingSource{}, Options{})

	out := svc.Delete(context.Background(), "SKU0001")

	assert.Equal(t, StatusAbsorbed, out.Status)
	assert.Error(t, out.Err)
}

func TestBatchDelete_EmptyMakesNoCalls(t *testing.T) {
	gw := newFakeGateway()
	svc := newFakeService(t, gw, &recordingSource{}, Options{})

	out := svc.BatchDelete(context.Background(), nil)

	assert.Equal(t, StatusSkipped, out.Status)
	assert.Empty(t, gw.calls)
}

func TestBatchDelete_PartialFailure(t *testing.T) {
	// Given: a bulk response rejecting one item and missing another
	gw := newFakeGateway()
	gw.bulkFn = func(ops []gateway.BulkOp) (*gateway.BulkResponse, error) {
		return &gateway.BulkResponse{Items: []gateway.BulkItem{
			{Op: gateway.OpDelete, ID: ops[0].ID, Status: 200},
			{Op: gateway.OpDelete, ID: ops[1].ID, Status: 404},
			{Op: gateway.OpDelete, ID: ops[2].ID, Status: 429, Error: "es_rejected_execution_exception"},
		}}, nil
	}
	svc := newFakeService(t, gw, &recordingSource{}, Options{})

	// When: deleting three ids
	out := svc.BatchDelete(context.Background(), []string{"a", "b", "c"})

	// Then: one bulk call is made and only the rejection counts as failed
	assert.Equal(t, 1, gw.count("Bulk"))
	require.Len(t, gw.bulks[0], 3)
	assert.Equal(t, gateway.OpDelete, gw.bulks[0][0].Op)
	assert.Equal(t, "products", gw.bulks[0][0].Index)
	assert.Equal(t, StatusPartial, out.Status)
	assert.Equal(t, 2, out.Written)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, serrors.ErrCodeBulkPartial, serrors.GetCode(out.Err))
}

func TestOutcome_String(t *testing.T) {
	out := Outcome{Status: StatusPartial, Written: 2, Failed: 1}
	assert.Equal(t, "partial (written=2 failed=1)", out.String())
	assert.Empty(t, out.Message())
}
