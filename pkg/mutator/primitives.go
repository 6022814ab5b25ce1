package mutator

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/spf13/cast"

	"github.com/turtacn/littlejwt/pkg/claims"
)

const (
	floatInf    = "Infinity"
	floatNegInf = "-Infinity"
	floatNaN    = "NaN"
)

type boolMutator struct{}

func (boolMutator) Serialize(_ context.Context, _ Target, value interface{}) (interface{}, error) {
	return value, nil
}

func (boolMutator) Unserialize(_ context.Context, _ Target, value interface{}) (interface{}, error) {
	return cast.ToBoolE(value)
}

type intMutator struct{}

func (intMutator) Serialize(_ context.Context, _ Target, value interface{}) (interface{}, error) {
	return value, nil
}

func (intMutator) Unserialize(_ context.Context, _ Target, value interface{}) (interface{}, error) {
	return cast.ToInt64E(value)
}

type arrayMutator struct{}

func (arrayMutator) Serialize(_ context.Context, _ Target, value interface{}) (interface{}, error) {
	return value, nil
}

func (arrayMutator) Unserialize(_ context.Context, _ Target, value interface{}) (interface{}, error) {
	return toArray(value), nil
}

// toArray keeps maps as they are (associative arrays) and wraps scalars.
func toArray(value interface{}) interface{} {
	if value == nil {
		return []interface{}{}
	}
	if s, err := cast.ToSliceE(value); err == nil {
		return s
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Map:
		return value
	default:
		return []interface{}{value}
	}
}

// jsonMutator stores a value as a JSON document inside a string claim.
type jsonMutator struct {
	object bool
}

func (m jsonMutator) Serialize(_ context.Context, _ Target, value interface{}) (interface{}, error) {
	data, err := claims.CanonicalJSON(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (m jsonMutator) Unserialize(_ context.Context, _ Target, value interface{}) (interface{}, error) {
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return nil, fmt.Errorf("expected a JSON string, got %T", value)
	}
	if m.object {
		return claims.DecodeObject(data)
	}
	return claims.DecodeValue(data)
}

type floatMutator struct{}

func (floatMutator) Serialize(_ context.Context, _ Target, value interface{}) (interface{}, error) {
	f, err := cast.ToFloat64E(value)
	if err != nil {
		return nil, err
	}
	switch {
	case math.IsNaN(f):
		return floatNaN, nil
	case math.IsInf(f, 1):
		return floatInf, nil
	case math.IsInf(f, -1):
		return floatNegInf, nil
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

func (floatMutator) Unserialize(_ context.Context, _ Target, value interface{}) (interface{}, error) {
	if s, ok := value.(string); ok {
		switch s {
		case floatNaN:
			return math.NaN(), nil
		case floatInf:
			return math.Inf(1), nil
		case floatNegInf:
			return math.Inf(-1), nil
		}
	}
	return cast.ToFloat64E(value)
}

// decimalMutator formats with a fixed number of decimals taken from the first argument.
type decimalMutator struct{}

func (decimalMutator) Serialize(_ context.Context, target Target, value interface{}) (interface{}, error) {
	places := 0
	if len(target.Args) > 0 && target.Args[0] != "" {
		n, err := cast.ToIntE(target.Args[0])
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid decimal places %q", target.Args[0])
		}
		places = n
	}
	f, err := cast.ToFloat64E(value)
	if err != nil {
		return nil, err
	}
	return strconv.FormatFloat(f, 'f', places, 64), nil
}

func (decimalMutator) Unserialize(_ context.Context, _ Target, value interface{}) (interface{}, error) {
	return cast.ToFloat64E(value)
}
