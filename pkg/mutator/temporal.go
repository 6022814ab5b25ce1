package mutator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"
)

const dateLayout = "2006-01-02"

// timeMutator formats time-like values with a layout. When fromArgs is set the
// layout is the definition's arguments joined back together, so layouts
// containing commas survive the argument split.
type timeMutator struct {
	layout     string
	fromArgs   bool
	startOfDay bool
	loc        *time.Location
}

func (m timeMutator) layoutFor(target Target) (string, error) {
	if !m.fromArgs {
		return m.layout, nil
	}
	layout := strings.Join(target.Args, ",")
	if layout == "" {
		return "", fmt.Errorf("custom_datetime requires a layout argument")
	}
	return layout, nil
}

func (m timeMutator) Serialize(_ context.Context, target Target, value interface{}) (interface{}, error) {
	layout, err := m.layoutFor(target)
	if err != nil {
		return nil, err
	}
	t, err := toTime(value, m.loc)
	if err != nil {
		return nil, err
	}
	return t.In(m.loc).Format(layout), nil
}

func (m timeMutator) Unserialize(_ context.Context, target Target, value interface{}) (interface{}, error) {
	layout, err := m.layoutFor(target)
	if err != nil {
		return nil, err
	}
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected a formatted time string, got %T", value)
	}
	t, err := time.ParseInLocation(layout, s, m.loc)
	if err != nil {
		return nil, err
	}
	t = t.In(m.loc)
	if m.startOfDay {
		y, mo, d := t.Date()
		t = time.Date(y, mo, d, 0, 0, 0, 0, m.loc)
	}
	return t, nil
}

// timestampMutator stores unix seconds.
type timestampMutator struct {
	loc *time.Location
}

func (m timestampMutator) Serialize(_ context.Context, _ Target, value interface{}) (interface{}, error) {
	t, err := toTime(value, m.loc)
	if err != nil {
		return nil, err
	}
	return t.Unix(), nil
}

func (m timestampMutator) Unserialize(_ context.Context, _ Target, value interface{}) (interface{}, error) {
	secs, err := cast.ToInt64E(value)
	if err != nil {
		return nil, err
	}
	return time.Unix(secs, 0).In(m.loc), nil
}

func toTime(value interface{}, loc *time.Location) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return *v, nil
	}
	return cast.ToTimeInDefaultLocationE(value, loc)
}
