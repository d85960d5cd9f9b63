package docsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/searchsync/internal/gateway"
)

func TestDecode(t *testing.T) {
	hits := []gateway.Hit{
		{ID: "a", Source: []byte(`{"sku":"a","name":"Lamp","price":12.5}`)},
		{ID: "b", Source: []byte(`{"sku":"b","name":"Desk"}`)},
	}

	recs, err := Decode[product](hits)
	require.NoError(t, err)
	assert.Equal(t, []product{{SKU: "a", Name: "Lamp", Price: 12.5}, {SKU: "b", Name: "Desk"}}, recs)

	_, err = Decode[product](append(hits, gateway.Hit{ID: "c", Source: []byte(`[1]`)}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hit c")
}

func TestDecode_TimesFromEveryDateForm(t *testing.T) {
	type event struct {
		ID string     `json:"id"`
		At time.Time  `json:"at"`
		To *time.Time `json:"to"`
	}
	at := time.Date(2024, 3, 9, 14, 30, 5, 0, time.UTC)

	// Given: a record encoded for the backend
	doc, err := encode(event{ID: "e1", At: at, To: &at}, "id")
	require.NoError(t, err)

	tests := []struct {
		name   string
		source string
		want   time.Time
	}{
		{"epoch millis", string(doc.Body), at},
		{"second precision", `{"id":"e1","at":"2024-03-09 14:30:05","to":null}`, at},
		{"date only", `{"id":"e1","at":"2024-03-09"}`, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: decoding the stored source
			recs, err := Decode[event]([]gateway.Hit{{ID: "e1", Source: []byte(tt.source)}})
			require.NoError(t, err)

			// Then: the instant survives
			assert.True(t, tt.want.Equal(recs[0].At), "got %s", recs[0].At)
		})
	}

	_, err = Decode[event]([]gateway.Hit{{ID: "e1", Source: []byte(`{"at":"next tuesday"}`)}})
	assert.Error(t, err)
}

func TestDecodeHighlighted(t *testing.T) {
	mark := func(s string) string { return HighlightPreTag + s + HighlightPostTag }
	hits := []gateway.Hit{
		{
			ID:     "a",
			Source: []byte(`{"sku":"a","name":"Green Tea","price":3.5}`),
			Highlight: map[string][]string{
				"name": {"Green " + mark("Tea"), "second fragment"},
				"sku":  {mark("a")},
			},
		},
		{ID: "b", Source: []byte(`{"sku":"b","name":"Black Tea"}`)},
		{ID: "broken", Source: []byte(`{"sku":`)},
		{ID: "mistyped", Source: []byte(`{"sku":"m","price":1}`), Highlight: map[string][]string{"price": {mark("1")}}},
	}

	// When: decoding with name and price highlighted
	recs := DecodeHighlighted[product](hits, []string{"name", "price"})

	// Then: the first fragment replaces the field; undecodable hits are dropped
	require.Len(t, recs, 2)
	assert.Equal(t, product{SKU: "a", Name: "Green " + mark("Tea"), Price: 3.5}, recs[0])
	assert.Equal(t, product{SKU: "b", Name: "Black Tea"}, recs[1])
}

func TestDecodeHighlighted_NoFieldsIsPlainDecode(t *testing.T) {
	hits := []gateway.Hit{{ID: "a", Source: []byte(`{"sku":"a","name":"Lamp"}`), Highlight: map[string][]string{"name": {"x"}}}}

	recs := DecodeHighlighted[product](hits, nil)
	assert.Equal(t, []product{{SKU: "a", Name: "Lamp"}}, recs)
}

func TestGet_ReadsThroughAlias(t *testing.T) {
	// Given: a built alias
	ctx := context.Background()
	clock := &fixedClock{now: time.UnixMilli(1_700_000_000_000)}
	svc, _ := newLocalService(t, &recordingSource{data: catalog(3)}, clock)
	_, err := svc.Reindex(ctx, "_v1")
	require.NoError(t, err)

	// When: reading a stored and a missing id
	rec, hit, err := svc.Get(ctx, "SKU0001")
	require.NoError(t, err)
	_, missing, missErr := svc.Get(ctx, "SKU9999")

	// Then: the stored record decodes, the missing one is nil without error
	require.NotNil(t, hit)
	assert.Equal(t, catalog(3)[1], rec)
	assert.Equal(t, "products_v1", hit.Index)
	assert.Equal(t, clock.Now().UnixMilli(), hit.Version)
	require.NoError(t, missErr)
	assert.Nil(t, missing)
}

func TestGet_UsesNaturalKey(t *testing.T) {
	gw := newFakeGateway()
	long := make([]byte, MaxKeyLength+1)
	for i := range long {
		long[i] = 'k'
	}
	gw.stored = map[string]*gateway.Hit{
		NaturalKey(string(long)): {ID: NaturalKey(string(long)), Source: []byte(`{"sku":"` + string(long) + `"}`)},
	}
	svc := newFakeService(t, gw, &recordingSource{}, Options{})

	rec, hit, err := svc.Get(context.Background(), string(long))
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, string(long), rec.SKU)
}
