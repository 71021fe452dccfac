// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package rank turns centrality scores into tie-aware rankings.
//
// Tied scores share the average of the 1-based positions they span
// (fractional ranking), so the ranks of N regions always sum to N(N+1)/2.
package rank

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/gpseq/centrality"
	"github.com/grailbio/gpseq/region"
)

// Direction selects which end of the score range gets rank 1.
type Direction int

const (
	// Descending gives rank 1 to the highest score, i.e. the most central
	// region.
	Descending Direction = iota
	// Ascending gives rank 1 to the lowest score.  This is the order of the
	// legacy rank tables.
	Ascending
)

func (d Direction) String() string {
	switch d {
	case Descending:
		return "descending"
	case Ascending:
		return "ascending"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// ParseDirection parses "descending" or "ascending".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "descending", "desc":
		return Descending, nil
	case "ascending", "asc":
		return Ascending, nil
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("rank: unknown direction %q", s))
}

// Ranking is an ordering of regions by score.  Regions, Ranks and Scores are
// parallel; Regions is sorted best-first.
type Ranking struct {
	Name      string
	Direction Direction
	Regions   []region.Region
	Ranks     []float64
	Scores    []float64

	index map[region.Region]int
}

// Len returns the number of ranked regions.
func (r *Ranking) Len() int { return len(r.Regions) }

// RankOf returns the rank of reg, and whether reg is part of the ranking.
func (r *Ranking) RankOf(reg region.Region) (float64, bool) {
	i, ok := r.index[reg]
	if !ok {
		return 0, false
	}
	return r.Ranks[i], true
}

// Labels returns the region labels in rank order.  With chromWide set, only
// the chromosome name is used, which is the convention for tables of whole
// chromosomes.
func (r *Ranking) Labels(chromWide bool) []string {
	labels := make([]string, len(r.Regions))
	for i, reg := range r.Regions {
		if chromWide {
			labels[i] = reg.Chrom
		} else {
			labels[i] = reg.String()
		}
	}
	return labels
}

// order returns the permutation of values sorted in direction dir.  The sort
// is stable, so tied values keep their input order.
func order(values []float64, dir Direction) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	if dir == Ascending {
		sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })
	} else {
		sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] > values[idx[b]] })
	}
	return idx
}

// assign writes fractional ranks of values, visited in the given order, into
// ranks.
func assign(values []float64, idx []int, ranks []float64) {
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && values[idx[end]] == values[idx[start]] {
			end++
		}
		// Positions start+1..end, 1-based.
		avg := float64(start+1+end) / 2
		for k := start; k < end; k++ {
			ranks[idx[k]] = avg
		}
		start = end
	}
}

// Fractional returns the fractional rank of each element of values, in input
// order.  NaN values are not allowed.
func Fractional(values []float64, dir Direction) []float64 {
	ranks := make([]float64, len(values))
	assign(values, order(values, dir), ranks)
	return ranks
}

// Build ranks the regions of s.  An empty Scores yields an empty Ranking.
func Build(s *centrality.Scores, dir Direction) *Ranking {
	idx := order(s.Values, dir)
	ranks := make([]float64, len(s.Values))
	assign(s.Values, idx, ranks)
	r := &Ranking{
		Name:      s.Variant.String(),
		Direction: dir,
		Regions:   make([]region.Region, len(idx)),
		Ranks:     make([]float64, len(idx)),
		Scores:    make([]float64, len(idx)),
		index:     make(map[region.Region]int, len(idx)),
	}
	for pos, i := range idx {
		r.Regions[pos] = s.Regions[i]
		r.Ranks[pos] = ranks[i]
		r.Scores[pos] = s.Values[i]
		r.index[s.Regions[i]] = pos
	}
	return r
}

// FromOrder builds a Ranking from an ordered list of regions without scores,
// as found in legacy rank tables.  Position i gets rank i+1 and there are no
// ties.  The score of a region is its position, so rebuilding a ranking from
// Scores gives the same order.
func FromOrder(name string, regions []region.Region) (*Ranking, error) {
	r := &Ranking{
		Name:      name,
		Direction: Ascending,
		Regions:   append([]region.Region(nil), regions...),
		Ranks:     make([]float64, len(regions)),
		Scores:    make([]float64, len(regions)),
		index:     make(map[region.Region]int, len(regions)),
	}
	for i, reg := range regions {
		if _, dup := r.index[reg]; dup {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("rank.FromOrder: %s lists region %v twice", name, reg))
		}
		r.index[reg] = i
		r.Ranks[i] = float64(i + 1)
		r.Scores[i] = float64(i)
	}
	return r, nil
}
