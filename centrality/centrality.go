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

package centrality

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/gpseq/region"
)

// Reason says why a region has no score.
type Reason int

const (
	// ZeroSignal means every condition of the region has zero reads.
	ZeroSignal Reason = iota
	// ZeroDenominator means a library size, site count, mean or reference
	// quantity needed by the formula is zero.
	ZeroDenominator
	// NonFinite means the formula produced an infinite or NaN value, e.g. the
	// log of a zero variance ratio.
	NonFinite
	// Missing means the score was absent from an external score table.
	Missing
)

func (r Reason) String() string {
	switch r {
	case ZeroSignal:
		return "zero-signal"
	case ZeroDenominator:
		return "zero-denominator"
	case NonFinite:
		return "non-finite"
	case Missing:
		return "missing"
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Undefined records a region that was left out of a Scores.
type Undefined struct {
	Region region.Region
	Reason Reason
}

// Scores is the output of one variant over one table.  Regions and Values are
// parallel and only contain regions with a defined score, in table order.
type Scores struct {
	Variant   Variant
	Regions   []region.Region
	Values    []float64
	Undefined []Undefined

	indexOnce sync.Once
	index     map[region.Region]int
}

// NewScores builds a Scores from externally supplied values.  NaN values are
// moved to Undefined with reason Missing; infinite values and duplicate
// regions are errors.
func NewScores(v Variant, regions []region.Region, values []float64) (*Scores, error) {
	if len(regions) != len(values) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("centrality.NewScores: %d regions but %d values", len(regions), len(values)))
	}
	s := &Scores{Variant: v, index: make(map[region.Region]int, len(regions))}
	seen := make(map[region.Region]bool, len(regions))
	for i, r := range regions {
		if seen[r] {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("centrality.NewScores: duplicate region %v", r))
		}
		seen[r] = true
		switch x := values[i]; {
		case math.IsNaN(x):
			s.Undefined = append(s.Undefined, Undefined{r, Missing})
		case math.IsInf(x, 0):
			return nil, errors.E(errors.Invalid, fmt.Sprintf("centrality.NewScores: infinite score for %v", r))
		default:
			s.index[r] = len(s.Regions)
			s.Regions = append(s.Regions, r)
			s.Values = append(s.Values, x)
		}
	}
	return s, nil
}

// Len returns the number of regions with a defined score.
func (s *Scores) Len() int { return len(s.Regions) }

// Value returns the score of r, and whether it is defined.  It is safe for
// concurrent use.
func (s *Scores) Value(r region.Region) (float64, bool) {
	s.indexOnce.Do(func() {
		if s.index == nil {
			s.buildIndex()
		}
	})
	i, ok := s.index[r]
	if !ok {
		return math.NaN(), false
	}
	return s.Values[i], true
}

func (s *Scores) buildIndex() {
	s.index = make(map[region.Region]int, len(s.Regions))
	for i, r := range s.Regions {
		s.index[r] = i
	}
}

// Compute evaluates variant v on every region of t.
//
// Regions whose score is undefined are reported in Scores.Undefined rather
// than scored; this is a data quality issue, not an error.  Errors are only
// returned for invalid input: fewer than two conditions, an unknown variant,
// or a std-based variant on a table without std.
func Compute(t *region.Table, v Variant) (*Scores, error) {
	if !v.valid() {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("centrality.Compute: unknown metric variant %d", int(v)))
	}
	if t == nil || t.Len() == 0 {
		return nil, errors.E(errors.Invalid, "centrality.Compute: table must contain at least one region")
	}
	nCond := t.NConditions()
	if nCond < 2 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("centrality.Compute: %v needs at least 2 conditions, table has %d", v, nCond))
	}
	if v.NeedsStd() && !t.HasStd() {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("centrality.Compute: %v needs per-site std for every region and condition", v))
	}
	libSizes := make([]float64, nCond)
	for c := range libSizes {
		libSizes[c] = float64(t.CondReads(c))
	}
	s := &Scores{
		Variant: v,
		Regions: make([]region.Region, 0, t.Len()),
		Values:  make([]float64, 0, t.Len()),
		index:   make(map[region.Region]int, t.Len()),
	}
	x := make([]float64, nCond)
	for i := 0; i < t.Len(); i++ {
		r := t.Region(i)
		row := t.Row(i)
		score, reason, ok := regionScore(v, row, libSizes, x)
		if !ok {
			log.Debug.Printf("centrality.Compute: %v undefined for %v (%v)", v, r, reason)
			s.Undefined = append(s.Undefined, Undefined{r, reason})
			continue
		}
		s.index[r] = len(s.Regions)
		s.Regions = append(s.Regions, r)
		s.Values = append(s.Values, score)
	}
	if len(s.Undefined) > 0 {
		log.Printf("centrality.Compute: %v: %d of %d region(s) have no defined score", v, len(s.Undefined), t.Len())
	}
	return s, nil
}

// regionScore computes the score of one region.  x is scratch space of
// length len(row).
func regionScore(v Variant, row []region.Condition, libSizes, x []float64) (float64, Reason, bool) {
	var total int64
	for _, c := range row {
		total += c.Reads
	}
	if total == 0 {
		return 0, ZeroSignal, false
	}
	quantities(v.Quantity(), row, libSizes, x)
	last := len(x) - 1
	var (
		score float64
		ok    = true
	)
	switch v.Mode() {
	case TwoPoint:
		score, ok = combine(v.Quantity(), x[last], x[0])
	case Fixed:
		for i := 1; i <= last && ok; i++ {
			var y float64
			y, ok = combine(v.Quantity(), x[i], x[0])
			score += y
		}
	case Global:
		for i := 1; i <= last && ok; i++ {
			var y float64
			y, ok = combine(v.Quantity(), x[i], x[i-1])
			score += y
		}
	}
	if !ok {
		return 0, ZeroDenominator, false
	}
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, NonFinite, false
	}
	return score, 0, true
}

// quantities fills x with the condition-wise quantity q.  A condition whose
// quantity has a zero denominator is set to NaN; combine rejects it only if
// the variant actually uses it.
func quantities(q Quantity, row []region.Condition, libSizes, x []float64) {
	var (
		cumProb  float64
		cumReads int64
		cumDenom float64
	)
	for i, c := range row {
		denom := libSizes[i] * float64(c.NSites())
		var p float64
		if denom > 0 {
			p = float64(c.Reads) / denom
		} else {
			p = math.NaN()
		}
		switch q {
		case Prob:
			x[i] = p
		case CumProb:
			cumProb += p
			x[i] = cumProb
		case ProbCum:
			cumReads += c.Reads
			cumDenom += denom
			if cumDenom > 0 {
				x[i] = float64(cumReads) / cumDenom
			} else {
				x[i] = math.NaN()
			}
		case Var:
			x[i] = c.Std * c.Std
		case Fano:
			if mean := c.Mean(); mean > 0 {
				x[i] = c.Std * c.Std / mean
			} else {
				x[i] = math.NaN()
			}
		case CV:
			if mean := c.Mean(); mean > 0 {
				x[i] = c.Std / mean
			} else {
				x[i] = math.NaN()
			}
		}
	}
}

// combine merges the quantity b of a later condition with the quantity a of
// an earlier one.
func combine(q Quantity, b, a float64) (float64, bool) {
	if math.IsNaN(a) || math.IsNaN(b) {
		return 0, false
	}
	switch q {
	case Prob, CumProb, ProbCum:
		if a == 0 {
			return 0, false
		}
		return b / a, true
	case Var:
		if a == 0 {
			return 0, false
		}
		return math.Log(b / a), true
	default:
		return a - b, true
	}
}

// ComputeAll evaluates several variants on the same table, using up to
// parallelism goroutines (0 means runtime.NumCPU()).  Results are returned in
// the order of variants.
func ComputeAll(t *region.Table, variants []Variant, parallelism int) ([]*Scores, error) {
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if parallelism > len(variants) {
		parallelism = len(variants)
	}
	out := make([]*Scores, len(variants))
	if len(variants) == 0 {
		return out, nil
	}
	log.Printf("centrality.ComputeAll: computing %d metric(s) over %d region(s) (%d jobs)", len(variants), t.Len(), parallelism)
	err := traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * len(variants)) / parallelism
		endIdx := ((jobIdx + 1) * len(variants)) / parallelism
		for i := startIdx; i < endIdx; i++ {
			s, err := Compute(t, variants[i])
			if err != nil {
				return err
			}
			out[i] = s
			log.Debug.Printf("centrality.ComputeAll: %v done", variants[i])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
