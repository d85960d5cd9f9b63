package docsync

import (
	"encoding/json"
	"log/slog"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
	"github.com/Aman-CERP/searchsync/internal/gateway"
)

// Markers a highlight request asks the backend to wrap matches in.
// Zero-width characters keep highlighted values printable as plain text.
const (
	HighlightPreTag  = "\u200b"
	HighlightPostTag = "\u200c"
)

// Decode turns hits back into records, in hit order. The first hit that
// does not decode fails the call.
func Decode[T any](hits []gateway.Hit) ([]T, error) {
	out := make([]T, 0, len(hits))
	for _, hit := range hits {
		var rec T
		if err := recordJSON.Unmarshal(hit.Source, &rec); err != nil {
			return nil, serrors.ValidationError("hit "+hit.ID+" does not decode", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// DecodeHighlighted decodes hits and replaces each named top-level field
// with its first highlight fragment. Hits that fail to decode are logged and
// left out.
func DecodeHighlighted[T any](hits []gateway.Hit, fields []string) []T {
	out := make([]T, 0, len(hits))
	for _, hit := range hits {
		rec, err := highlighted[T](hit, fields)
		if err != nil {
			slog.Error("decode_hit_failed",
				slog.String("index", hit.Index),
				slog.String("id", hit.ID),
				slog.String("error", err.Error()))
			continue
		}
		out = append(out, rec)
	}
	return out
}

func highlighted[T any](hit gateway.Hit, fields []string) (T, error) {
	var rec T
	var doc map[string]json.RawMessage
	if err := recordJSON.Unmarshal(hit.Source, &doc); err != nil {
		return rec, err
	}
	for _, f := range fields {
		frags := hit.Highlight[f]
		if len(frags) == 0 {
			continue
		}
		frag, err := recordJSON.Marshal(frags[0])
		if err != nil {
			return rec, err
		}
		doc[f] = frag
	}

	body, err := recordJSON.Marshal(doc)
	if err != nil {
		return rec, err
	}
	err = recordJSON.Unmarshal(body, &rec)
	return rec, err
}
