package vm

import (
	"fmt"
	"sort"
)

// Extractor collects, per lane, the output tokens whose tag vector
// intersects a named set of tags.
type Extractor struct {
	masks map[string][]bool
	out   map[string][][]Token
}

// NewExtractor builds an extractor for batch lanes. Each rule maps a name
// to the tags it selects.
func NewExtractor(p *Program, batch int, rules map[string][]string) (*Extractor, error) {
	index := make(map[string]int, len(p.TagNames))
	for i, n := range p.TagNames {
		index[n] = i
	}
	x := &Extractor{masks: make(map[string][]bool), out: make(map[string][][]Token)}
	for name, tags := range rules {
		mask := make([]bool, len(p.TagNames))
		for _, t := range tags {
			i, ok := index[t]
			if !ok {
				return nil, fmt.Errorf("extract %q: unknown tag %q", name, t)
			}
			mask[i] = true
		}
		x.masks[name] = mask
		x.out[name] = make([][]Token, batch)
	}
	return x, nil
}

// Observe records one step's output.
func (x *Extractor) Observe(out *StepOutput) {
	for name, mask := range x.masks {
		lanes := x.out[name]
		for i := range out.Tokens {
			if i < len(lanes) && intersects(out.Tags[i], mask) {
				lanes[i] = append(lanes[i], out.Tokens[i])
			}
		}
	}
}

// Tokens returns what a rule collected for a lane.
func (x *Extractor) Tokens(name string, lane int) []Token {
	lanes, ok := x.out[name]
	if !ok || lane < 0 || lane >= len(lanes) {
		return nil
	}
	return lanes[lane]
}

// Names returns the rule names, sorted.
func (x *Extractor) Names() []string {
	names := make([]string, 0, len(x.masks))
	for n := range x.masks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func intersects(tags, mask []bool) bool {
	for i, on := range tags {
		if on && i < len(mask) && mask[i] {
			return true
		}
	}
	return false
}
