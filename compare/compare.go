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

// Package compare measures the agreement between two rankings of regions.
//
// Both supported measures range over [-1, 1], are symmetric in their two
// arguments, and give exactly 1 when a non-degenerate ranking is compared
// with itself.
package compare

import (
	"fmt"
	"math"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/gpseq/rank"
	"github.com/grailbio/gpseq/region"
	"gonum.org/v1/gonum/stat"
)

// Measure is a rank agreement statistic.
type Measure int

const (
	// Spearman is the Pearson correlation of the two fractional rank vectors.
	Spearman Measure = iota
	// WeightedTau is a weighted Kendall tau-b:
	//
	//   sum_{i<j} w_ij sgn(x_i-x_j) sgn(y_i-y_j)
	//   / sqrt(sum_{i<j} w_ij [x_i != x_j] * sum_{i<j} w_ij [y_i != y_j])
	//
	// with w_ij = (h(x_i) + h(y_i) + h(x_j) + h(y_j)) / 2 for the configured
	// weigher h.  Since h decreases with rank, discordant pairs near the top of
	// either ranking are penalized more.  Averaging the weights of both
	// rankings makes the measure symmetric.
	WeightedTau
)

func (m Measure) String() string {
	switch m {
	case Spearman:
		return "spearman"
	case WeightedTau:
		return "weighted-tau"
	}
	return fmt.Sprintf("Measure(%d)", int(m))
}

// ParseMeasure maps "spearman" or "weighted-tau" to a Measure.
func ParseMeasure(name string) (Measure, error) {
	switch name {
	case "spearman":
		return Spearman, nil
	case "weighted-tau", "wtau":
		return WeightedTau, nil
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("compare: unknown correlation measure %q", name))
}

// Weigher maps a 1-based rank to the importance of that position.  Every
// weigher is positive and strictly decreasing in the rank.
type Weigher int

const (
	// Hyperbolic weighs rank r by 1/r.
	Hyperbolic Weigher = iota
	// Logarithmic weighs rank r by 1/log2(r+1), the discount used by DCG.
	Logarithmic
)

func (w Weigher) String() string {
	switch w {
	case Hyperbolic:
		return "hyperbolic"
	case Logarithmic:
		return "logarithmic"
	}
	return fmt.Sprintf("Weigher(%d)", int(w))
}

// ParseWeigher maps "hyperbolic" or "logarithmic" to a Weigher.
func ParseWeigher(name string) (Weigher, error) {
	switch name {
	case "hyperbolic":
		return Hyperbolic, nil
	case "logarithmic":
		return Logarithmic, nil
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("compare: unknown weigher %q", name))
}

func (w Weigher) weight(r float64) float64 {
	if w == Logarithmic {
		return 1 / math.Log2(r+1)
	}
	return 1 / r
}

// Opts configures the comparison.
type Opts struct {
	// Weigher is used by WeightedTau.
	Weigher Weigher
}

// DefaultOpts uses the hyperbolic weigher.
var DefaultOpts = Opts{
	Weigher: Hyperbolic,
}

// Status tells whether a Result carries a statistic.
type Status int

const (
	// OK means Result.Statistic is valid.
	OK Status = iota
	// Degenerate means at least one of the rankings has no variance over the
	// shared regions (every region tied, or fewer than two regions), so the
	// measure is undefined.  This is different from a zero correlation.
	Degenerate
	// NoOverlap means the rankings share no region.
	NoOverlap
)

func (s Status) String() string {
	switch s {
	case OK:
		return "ok"
	case Degenerate:
		return "undefined: degenerate ranking"
	case NoOverlap:
		return "insufficient data: no shared regions"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result is the outcome of comparing two rankings.
type Result struct {
	Measure Measure
	Status  Status
	// Statistic is only meaningful when Status == OK.
	Statistic float64
	// N is the number of regions shared by both rankings.
	N int
	// OnlyA and OnlyB count the regions excluded because they appear in only
	// one of the rankings.
	OnlyA, OnlyB int
}

func (r Result) String() string {
	s := fmt.Sprintf("%v: ", r.Measure)
	if r.Status == OK {
		s += fmt.Sprintf("%.6g", r.Statistic)
	} else {
		s += r.Status.String()
	}
	return s + fmt.Sprintf(" (n=%d, excluded %d+%d)", r.N, r.OnlyA, r.OnlyB)
}

func (m Measure) valid() bool { return m == Spearman || m == WeightedTau }

// Compare computes measure m between rankings a and b over their shared
// regions.  The shared regions are re-ranked within the intersection first,
// so that the ranks on both sides are valid fractional ranks of the compared
// set.  Regions in only one ranking are counted in the result.  Both
// rankings must have the same direction.
func Compare(a, b *rank.Ranking, m Measure, opts Opts) (Result, error) {
	if !m.valid() {
		return Result{}, errors.E(errors.Invalid, fmt.Sprintf("compare.Compare: unknown correlation measure %d", int(m)))
	}
	if a.Direction != b.Direction {
		return Result{}, errors.E(errors.Invalid, fmt.Sprintf("compare.Compare: %s is ranked %v but %s is ranked %v",
			a.Name, a.Direction, b.Name, b.Direction))
	}
	res := Result{Measure: m}
	var shared []region.Region
	for _, reg := range a.Regions {
		if _, ok := b.RankOf(reg); ok {
			shared = append(shared, reg)
		}
	}
	// Visit shared regions in coordinate order, so that Compare(a, b) and
	// Compare(b, a) accumulate in the same order.
	sort.Slice(shared, func(i, j int) bool { return shared[i].Less(shared[j]) })
	ra := make([]float64, len(shared))
	rb := make([]float64, len(shared))
	for i, reg := range shared {
		ra[i], _ = a.RankOf(reg)
		rb[i], _ = b.RankOf(reg)
	}
	res.N = len(shared)
	res.OnlyA = a.Len() - res.N
	res.OnlyB = b.Len() - res.N
	if res.OnlyA > 0 || res.OnlyB > 0 {
		log.Printf("compare.Compare: %s vs %s: %d region(s) only in the first ranking and %d only in the second were excluded",
			a.Name, b.Name, res.OnlyA, res.OnlyB)
	}
	if res.N == 0 {
		res.Status = NoOverlap
		return res, nil
	}
	x := rank.Fractional(ra, rank.Ascending)
	y := rank.Fractional(rb, rank.Ascending)
	res.Statistic, res.Status = Statistic(x, y, m, opts)
	return res, nil
}

// CompareOrders is the entry point for legacy rank tables, which only list
// regions in ascending score order.  It delegates to Compare.
func CompareOrders(orderA, orderB []region.Region, m Measure, opts Opts) (Result, error) {
	a, err := rank.FromOrder("a", orderA)
	if err != nil {
		return Result{}, err
	}
	b, err := rank.FromOrder("b", orderB)
	if err != nil {
		return Result{}, err
	}
	return Compare(a, b, m, opts)
}

// Statistic computes m over paired rank vectors x and y, where rank 1 is the
// top.  It is the kernel shared by Compare and the bootstrap.  The returned
// statistic is 0 unless the status is OK.
func Statistic(x, y []float64, m Measure, opts Opts) (float64, Status) {
	if len(x) != len(y) {
		panic(fmt.Sprintf("compare.Statistic: %d vs %d ranks", len(x), len(y)))
	}
	if len(x) == 0 {
		return 0, NoOverlap
	}
	if constant(x) || constant(y) {
		return 0, Degenerate
	}
	var v float64
	switch m {
	case Spearman:
		v = stat.Correlation(x, y, nil)
	case WeightedTau:
		var ok bool
		if v, ok = weightedTau(x, y, opts.Weigher); !ok {
			return 0, Degenerate
		}
	default:
		panic(fmt.Sprintf("compare.Statistic: unknown measure %d", int(m)))
	}
	if math.IsNaN(v) {
		return 0, Degenerate
	}
	return math.Max(-1, math.Min(1, v)), OK
}

// constant reports whether every element of x is equal, including the
// single-element case.
func constant(x []float64) bool {
	for _, v := range x[1:] {
		if v != x[0] {
			return false
		}
	}
	return true
}

// lexLess reports whether a precedes b in lexicographic order.
func lexLess(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// sortedIndex returns 0..n-1 stably sorted by less.
func sortedIndex(n int, less func(i, j int) bool) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return less(idx[a], idx[b]) })
	return idx
}

// tieGroups walks order, in which equal elements are adjacent, and returns
// for each element the size of its tie group and the dense index of the
// group in order.
func tieGroups(order []int, same func(i, j int) bool) (size, group []int) {
	n := len(order)
	size = make([]int, n)
	group = make([]int, n)
	nGroup := 0
	for start := 0; start < n; nGroup++ {
		end := start + 1
		for end < n && same(order[start], order[end]) {
			end++
		}
		for _, i := range order[start:end] {
			size[i] = end - start
			group[i] = nGroup
		}
		start = end
	}
	return size, group
}

// fenwick is a binary indexed tree of element counts and weight sums.
type fenwick struct {
	count, sum []float64
}

func newFenwick(n int) *fenwick {
	return &fenwick{count: make([]float64, n+1), sum: make([]float64, n+1)}
}

func (f *fenwick) add(pos int, w float64) {
	for i := pos + 1; i < len(f.count); i += i & -i {
		f.count[i]++
		f.sum[i] += w
	}
}

// prefix returns the count and weight of the elements at positions < pos.
func (f *fenwick) prefix(pos int) (count, sum float64) {
	for i := pos; i > 0; i -= i & -i {
		count += f.count[i]
		sum += f.sum[i]
	}
	return count, sum
}

// weightedTau computes WeightedTau in O(n log n).  It returns false if all
// pairs are tied in x or in y.
//
// With h_i = w(x_i) + w(y_i), a pair weight (h_i + h_j)/2 splits into one
// half per element, so the weight of all pairs of a kind is the sum of
// h_i/2 times the number of such pairs involving i.  Tie counts come from
// sorting; the discordant weight is accumulated with a Fenwick tree over y
// while sweeping x in increasing order.
func weightedTau(x, y []float64, w Weigher) (float64, bool) {
	// A canonical argument order keeps the result bitwise symmetric.
	if lexLess(y, x) {
		x, y = y, x
	}
	n := len(x)
	h := make([]float64, n)
	for i := range h {
		h[i] = w.weight(x[i]) + w.weight(y[i])
	}
	byX := sortedIndex(n, func(i, j int) bool { return x[i] < x[j] })
	byY := sortedIndex(n, func(i, j int) bool { return y[i] < y[j] })
	byXY := sortedIndex(n, func(i, j int) bool { return x[i] < x[j] || (x[i] == x[j] && y[i] < y[j]) })
	tiesX, _ := tieGroups(byX, func(i, j int) bool { return x[i] == x[j] })
	tiesY, yGroup := tieGroups(byY, func(i, j int) bool { return y[i] == y[j] })
	tiesXY, _ := tieGroups(byXY, func(i, j int) bool { return x[i] == x[j] && y[i] == y[j] })

	// dx, dy: weight of pairs untied in x, y.  untied: untied in both.
	var dx, dy, untied float64
	for i := range h {
		half := h[i] / 2
		dx += half * float64(n-tiesX[i])
		dy += half * float64(n-tiesY[i])
		untied += half * float64(n-tiesX[i]-tiesY[i]+tiesXY[i])
	}
	if dx == 0 || dy == 0 {
		return 0, false
	}

	// Positions in the tree run from the largest y down, so that a prefix
	// holds exactly the elements with a larger y.
	nY := yGroup[byY[n-1]] + 1
	tree := newFenwick(nY)
	var discordant float64
	for start := 0; start < n; {
		end := start + 1
		for end < n && x[byXY[end]] == x[byXY[start]] {
			end++
		}
		group := byXY[start:end]
		for _, j := range group {
			count, sum := tree.prefix(nY - 1 - yGroup[j])
			discordant += (sum + count*h[j]) / 2
		}
		for _, j := range group {
			tree.add(nY-1-yGroup[j], h[j])
		}
		start = end
	}
	return (untied - 2*discordant) / math.Sqrt(dx*dy), true
}
