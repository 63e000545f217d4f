package zcp

import "fmt"

// TagSet is the ordered universe of tag names. A zone's tags lower to a
// membership vector indexed by this order.
type TagSet struct {
	names []string
	index map[string]int
}

// NewTagSet builds a tag set. Duplicate names are rejected.
func NewTagSet(names ...string) (*TagSet, error) {
	ts := &TagSet{index: make(map[string]int, len(names))}
	for _, n := range names {
		if n == "" {
			return nil, fmt.Errorf("empty tag name")
		}
		if _, dup := ts.index[n]; dup {
			return nil, fmt.Errorf("duplicate tag %q", n)
		}
		ts.index[n] = len(ts.names)
		ts.names = append(ts.names, n)
	}
	return ts, nil
}

// Len returns the number of tags.
func (ts *TagSet) Len() int { return len(ts.names) }

// Names returns the tag names in vector order.
func (ts *TagSet) Names() []string { return append([]string(nil), ts.names...) }

// Index returns the vector position of a tag.
func (ts *TagSet) Index(name string) (int, bool) {
	i, ok := ts.index[name]
	return i, ok
}

// Vector converts tag names to a membership vector.
func (ts *TagSet) Vector(tags []string) ([]bool, error) {
	vec := make([]bool, len(ts.names))
	for _, t := range tags {
		i, ok := ts.index[t]
		if !ok {
			return nil, fmt.Errorf("%q: %w", t, ErrUnknownTag)
		}
		vec[i] = true
	}
	return vec, nil
}

// Decode converts a membership vector back to names.
func (ts *TagSet) Decode(vec []bool) []string {
	var out []string
	for i, on := range vec {
		if on && i < len(ts.names) {
			out = append(out, ts.names[i])
		}
	}
	return out
}
