package docsync

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
	"time"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
	"github.com/modern-go/reflect2"

	serrors "github.com/Aman-CERP/searchsync/internal/errors"
)

// MaxKeyLength is the longest document id sent to the backend as is.
// Longer keys are replaced by their hex MD5.
const MaxKeyLength = 512

// document is a serialized record ready to be written.
type document struct {
	Key  string
	Body []byte
}

// NaturalKey returns the document id for a raw key value.
func NaturalKey(raw string) string {
	if len(raw) <= MaxKeyLength {
		return raw
	}
	sum := md5.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// recordJSON marshals like encoding/json except that time.Time values,
// wherever they sit in a record, are written as epoch milliseconds. DATE
// leaves accept epoch_millis; RFC 3339 text matches none of their formats.
// Decoding reads times back from epoch millis or any DATE text format.
var recordJSON = func() jsoniter.API {
	api := jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
	}.Froze()
	api.RegisterExtension(&epochMillisExtension{})
	return api
}()

var timeType = reflect2.TypeOf(time.Time{}).Type1()

type epochMillisExtension struct {
	jsoniter.DummyExtension
}

func (e *epochMillisExtension) CreateEncoder(typ reflect2.Type) jsoniter.ValEncoder {
	if typ.Type1() == timeType {
		return epochMillisEncoder{}
	}
	return nil
}

func (e *epochMillisExtension) CreateDecoder(typ reflect2.Type) jsoniter.ValDecoder {
	if typ.Type1() == timeType {
		return epochMillisDecoder{}
	}
	return nil
}

type epochMillisEncoder struct{}

func (epochMillisEncoder) IsEmpty(unsafe.Pointer) bool { return false }

func (epochMillisEncoder) Encode(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	stream.WriteInt64((*time.Time)(ptr).UnixMilli())
}

// dateLayouts are the text forms of schema.DateFormat, plus RFC 3339.
var dateLayouts = []string{"2006-01-02 15:04:05", "2006-01-02", time.RFC3339Nano}

type epochMillisDecoder struct{}

func (epochMillisDecoder) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	t := (*time.Time)(ptr)
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		*t = time.Time{}
	case jsoniter.NumberValue:
		*t = time.UnixMilli(iter.ReadInt64()).UTC()
	case jsoniter.StringValue:
		text := iter.ReadString()
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, text); err == nil {
				*t = parsed
				return
			}
		}
		iter.ReportError("decode time", "unsupported date "+strconv.Quote(text))
	default:
		iter.ReportError("decode time", "date must be a number or a string")
	}
}

// encode serializes rec and derives its document id from idField.
func encode[T any](rec T, idField string) (document, error) {
	body, err := recordJSON.Marshal(rec)
	if err != nil {
		return document{}, serrors.ValidationError("record is not serializable", err)
	}

	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return document{}, serrors.ValidationError("record does not serialize to an object", err)
	}

	raw, err := keyValue(fields[idField])
	if err != nil {
		return document{}, serrors.New(serrors.ErrCodeMissingKey, "record has no value for "+idField, err).
			WithDetail("field", idField)
	}
	return document{Key: NaturalKey(raw), Body: body}, nil
}

// keyValue renders a decoded JSON value as a key string: strings verbatim,
// numbers in canonical decimal, anything else as its JSON encoding.
func keyValue(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", serrors.ErrMissingKey
	case string:
		if v == "" {
			return "", serrors.ErrMissingKey
		}
		return v, nil
	case json.Number:
		return canonicalNumber(v.String()), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// canonicalNumber renders a JSON number literal without going through
// float64: integers of any size keep every digit, decimals are printed in
// plain notation.
func canonicalNumber(lit string) string {
	if !strings.ContainsAny(lit, ".eE") {
		if n, ok := new(big.Int).SetString(lit, 10); ok {
			return n.String()
		}
		return lit
	}
	f, _, err := big.ParseFloat(lit, 10, 256, big.ToNearestEven)
	if err != nil {
		return lit
	}
	if f.IsInt() {
		n, _ := f.Int(nil)
		return n.String()
	}
	return f.Text('f', -1)
}

// dedupe drops documents whose key already appeared earlier in docs.
func dedupe(docs []document) (kept []document, dropped int) {
	seen := make(map[string]struct{}, len(docs))
	kept = make([]document, 0, len(docs))
	for _, d := range docs {
		if _, dup := seen[d.Key]; dup {
			dropped++
			continue
		}
		seen[d.Key] = struct{}{}
		kept = append(kept, d)
	}
	return kept, dropped
}
