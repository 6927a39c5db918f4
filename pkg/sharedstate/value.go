package sharedstate

import (
	"encoding/json"
	"reflect"

	"github.com/vango-dev/sharedstate/internal/errors"
)

// Raw is a durable value that has not been decoded to a Go type yet.
// Values loaded from storage or received from other contexts are stored as
// Raw until a typed binding reads them.
type Raw struct {
	data  []byte
	codec Codec
}

// Bytes returns the encoded record.
func (r Raw) Bytes() []byte {
	return r.data
}

// String returns the encoded record as text.
func (r Raw) String() string {
	return string(r.data)
}

// Decode unmarshals the record into v.
func (r Raw) Decode(v any) error {
	if err := r.codec.Unmarshal(r.data, v); err != nil {
		return errors.New("E102").Wrap(err)
	}
	return nil
}

// MarshalJSON renders the record as JSON regardless of its codec.
func (r Raw) MarshalJSON() ([]byte, error) {
	if _, ok := r.codec.(JSONCodec); ok {
		return r.data, nil
	}
	var v any
	if err := r.codec.Unmarshal(r.data, &v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// decodeAs converts a cell value to T. Raw values are always decoded, even
// when T is an interface that Raw itself would satisfy; anything else must
// already be a T.
func decodeAs[T any](v any) (T, bool) {
	var zero T
	switch x := v.(type) {
	case nil:
		return zero, false
	case Raw:
		if isRawType[T]() {
			return any(x).(T), true
		}
		var out T
		if err := x.Decode(&out); err != nil {
			return zero, false
		}
		return out, true
	case T:
		return x, true
	}
	return zero, false
}

func isRawType[T any]() bool {
	_, ok := any(*new(T)).(Raw)
	return ok
}

// defaultEquals compares values for change detection. Values of different
// dynamic types are never equal.
func defaultEquals[T any](a, b T) bool {
	switch av := any(a).(type) {
	case int:
		bv, ok := any(b).(int)
		return ok && av == bv
	case int64:
		bv, ok := any(b).(int64)
		return ok && av == bv
	case float64:
		bv, ok := any(b).(float64)
		return ok && av == bv
	case string:
		bv, ok := any(b).(string)
		return ok && av == bv
	case bool:
		bv, ok := any(b).(bool)
		return ok && av == bv
	}
	return reflect.DeepEqual(a, b)
}
