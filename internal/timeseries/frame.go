package timeseries

import "time"

// Frame is a set of named series sharing one date index: the in-memory form
// of each persisted table. Adding a column with new dates re-indexes every
// existing column onto the union of dates, filling NaN for dates a column
// did not observe. Columns keep insertion order.
type Frame struct {
	Dates   []time.Time
	Columns []string
	data    map[string]*Series
}

// NewFrame returns an empty frame.
func NewFrame() *Frame {
	return &Frame{data: map[string]*Series{}}
}

// AddColumn merges a series into the frame under the given name. The frame's
// index becomes the union of its current index and the series' index; all
// columns, new and old, are re-indexed onto it.
func (f *Frame) AddColumn(name string, s *Series) {
	all := append([]*Series{s}, f.columnSeries()...)
	union := UnionIndex(all...)

	for _, col := range f.Columns {
		f.data[col] = f.data[col].Reindex(union)
	}
	if _, exists := f.data[name]; !exists {
		f.Columns = append(f.Columns, name)
	}
	f.data[name] = s.Reindex(union)
	f.Dates = union
}

// Column returns the named series, or nil if absent.
func (f *Frame) Column(name string) *Series {
	return f.data[name]
}

func (f *Frame) columnSeries() []*Series {
	out := make([]*Series, 0, len(f.Columns))
	for _, col := range f.Columns {
		out = append(out, f.data[col])
	}
	return out
}
