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

// Package bootstrap estimates confidence intervals and permutation p-values
// for rank comparisons by resampling regions.
//
// Problem:
// Given two score vectors over (mostly) the same regions, we want the
// sampling distribution of a rank agreement statistic.  Each resample draws
// the shared regions with replacement, re-ranks both sides over the drawn
// multiset (duplicates tie with each other) and recomputes the statistic.
//
// Implementation strategy:
// Resamples are independent, so they are split into contiguous chunks and
// run with traverse.Each.  Task i seeds its own generator from
// farmhash(i, seed) and writes only slot i of the output, so there is no
// shared accumulator and no locking.  All aggregation (sorting, percentile
// extraction, counting) happens on one goroutine after the pool finishes, in
// index order; a seeded run is therefore bitwise reproducible for any
// parallelism.
package bootstrap

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"time"

	farm "github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/gpseq/centrality"
	"github.com/grailbio/gpseq/compare"
	"github.com/grailbio/gpseq/rank"
	"github.com/grailbio/gpseq/region"
	"gonum.org/v1/gonum/stat"
)

// Opts configures Estimate.
type Opts struct {
	// Resamples is the number of bootstrap resamples, and also the number of
	// permutations when Permutation is set.  Must be at least 1.
	Resamples int
	// Confidence is the coverage of the percentile interval, in (0, 1).
	Confidence float64
	// Seed makes the run reproducible when Seeded is set.  Otherwise a
	// time-derived seed is used and reported in the result.
	Seed   int64
	Seeded bool
	// Permutation requests a two-sided p-value against the null hypothesis of
	// no association.
	Permutation bool
	// Parallelism is the maximum number of concurrent tasks; 0 means
	// runtime.NumCPU().
	Parallelism int
	// Direction is used to rank the scores.
	Direction rank.Direction
	// Compare is passed to the comparison measure.
	Compare compare.Opts
}

// DefaultOpts runs 1000 unseeded resamples for a 95% interval.
var DefaultOpts = Opts{
	Resamples:  1000,
	Confidence: 0.95,
	Direction:  rank.Descending,
	Compare:    compare.DefaultOpts,
}

// Result is the outcome of Estimate.
type Result struct {
	// Observed is the comparison over all shared regions.  When its status is
	// not OK no resampling is done.
	Observed compare.Result
	// Confidence is the requested interval coverage.
	Confidence float64
	// Lower and Upper bound the percentile interval.  Only set when
	// HasInterval is true.
	Lower, Upper float64
	HasInterval  bool
	// PValue is the permutation p-value.  Only set when HasPValue is true.
	PValue    float64
	HasPValue bool
	// Requested and Completed count bootstrap resamples.
	Requested, Completed int
	// Permutations counts completed permutations.
	Permutations int
	// Degenerate counts completed resamples whose statistic was undefined
	// (e.g. every drawn region was the same).  They are left out of the
	// interval.
	Degenerate int
	// Cancelled is set when the context was done before all resamples
	// completed.  A cancelled result carries neither interval nor p-value.
	Cancelled bool
	// Reproducible is set when the caller supplied the seed.
	Reproducible bool
	Seed         int64
}

func (r *Result) String() string {
	if r.Cancelled {
		return fmt.Sprintf("%v; incomplete: %d/%d resamples completed", r.Observed, r.Completed, r.Requested)
	}
	s := r.Observed.String()
	if r.HasInterval {
		s += fmt.Sprintf("; %g%% CI [%.6g, %.6g]", 100*r.Confidence, r.Lower, r.Upper)
	}
	if r.HasPValue {
		s += fmt.Sprintf("; p=%.6g", r.PValue)
	}
	if r.Observed.Status == compare.OK {
		s += fmt.Sprintf("; %d resamples", r.Completed)
		if r.Degenerate > 0 {
			s += fmt.Sprintf(" (%d degenerate)", r.Degenerate)
		}
		if r.Reproducible {
			s += fmt.Sprintf(", seed %d", r.Seed)
		} else {
			s += fmt.Sprintf(", best-effort seed %d", r.Seed)
		}
	}
	return s
}

// taskSeed derives the generator seed of task i.
func taskSeed(seed int64, i int) int64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(i))
	return int64(farm.Hash64WithSeed(buf[:], uint64(seed)))
}

// paired returns the scores of the regions shared by a and b, in coordinate
// order.
func paired(a, b *centrality.Scores) (xa, xb []float64) {
	var shared []region.Region
	for _, r := range a.Regions {
		if _, ok := b.Value(r); ok {
			shared = append(shared, r)
		}
	}
	sort.Slice(shared, func(i, j int) bool { return shared[i].Less(shared[j]) })
	xa = make([]float64, len(shared))
	xb = make([]float64, len(shared))
	for i, r := range shared {
		xa[i], _ = a.Value(r)
		xb[i], _ = b.Value(r)
	}
	return
}

// slot is the output of one task.
type slot struct {
	done   bool
	status compare.Status
	stat   float64
}

// taskState is the per-job scratch space.
type taskState struct {
	sa, sb []float64
	py     []float64
}

// Estimate compares the rankings induced by a and b under measure m, and
// estimates the sampling distribution of the statistic by resampling the
// shared regions.
//
// Invalid options are reported as errors.Invalid.  Cancellation of ctx is not
// an error: the partial result is returned with Cancelled set.
func Estimate(ctx context.Context, a, b *centrality.Scores, m compare.Measure, opts Opts) (*Result, error) {
	if opts.Resamples < 1 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("bootstrap.Estimate: resamples must be at least 1, got %d", opts.Resamples))
	}
	if !(opts.Confidence > 0 && opts.Confidence < 1) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("bootstrap.Estimate: confidence must be in (0, 1), got %v", opts.Confidence))
	}
	if a == nil || b == nil {
		return nil, errors.E(errors.Invalid, "bootstrap.Estimate: both score vectors are required")
	}
	observed, err := compare.Compare(rank.Build(a, opts.Direction), rank.Build(b, opts.Direction), m, opts.Compare)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Observed:     observed,
		Confidence:   opts.Confidence,
		Requested:    opts.Resamples,
		Reproducible: opts.Seeded,
		Seed:         opts.Seed,
	}
	if !opts.Seeded {
		res.Seed = time.Now().UnixNano()
	}
	if observed.Status != compare.OK {
		log.Printf("bootstrap.Estimate: observed statistic is %v, skipping resampling", observed.Status)
		return res, nil
	}

	xa, xb := paired(a, b)
	n := len(xa)
	ra := rank.Fractional(xa, opts.Direction)
	rb := rank.Fractional(xb, opts.Direction)
	nTask := opts.Resamples
	if opts.Permutation {
		nTask *= 2
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}
	if parallelism > nTask {
		parallelism = nTask
	}
	slots := make([]slot, nTask)
	log.Printf("bootstrap.Estimate: %d task(s) over %d region(s) (%d jobs, seed %d)", nTask, n, parallelism, res.Seed)
	err = traverse.Each(parallelism, func(jobIdx int) error {
		startIdx := (jobIdx * nTask) / parallelism
		endIdx := ((jobIdx + 1) * nTask) / parallelism
		ts := taskState{
			sa: make([]float64, n),
			sb: make([]float64, n),
			py: make([]float64, n),
		}
		for i := startIdx; i < endIdx; i++ {
			if ctx.Err() != nil {
				return nil
			}
			rnd := rand.New(rand.NewSource(taskSeed(res.Seed, i)))
			s := &slots[i]
			if i < opts.Resamples {
				s.stat, s.status = ts.resample(rnd, xa, xb, m, opts)
			} else {
				s.stat, s.status = ts.permute(rnd, ra, rb, m, opts)
			}
			s.done = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	aggregate(res, slots, opts)
	if res.Cancelled {
		log.Printf("bootstrap.Estimate: cancelled, %d/%d resamples completed", res.Completed, res.Requested)
	}
	return res, nil
}

// resample draws len(xa) regions with replacement and computes the statistic
// over the drawn multiset.
func (ts *taskState) resample(rnd *rand.Rand, xa, xb []float64, m compare.Measure, opts Opts) (float64, compare.Status) {
	n := len(xa)
	for k := 0; k < n; k++ {
		j := rnd.Intn(n)
		ts.sa[k] = xa[j]
		ts.sb[k] = xb[j]
	}
	x := rank.Fractional(ts.sa, opts.Direction)
	y := rank.Fractional(ts.sb, opts.Direction)
	return compare.Statistic(x, y, m, opts.Compare)
}

// permute shuffles the second ranking relative to the first.  Permuting
// ranks is equivalent to permuting scores and re-ranking.
func (ts *taskState) permute(rnd *rand.Rand, ra, rb []float64, m compare.Measure, opts Opts) (float64, compare.Status) {
	copy(ts.py, rb)
	rnd.Shuffle(len(ts.py), func(i, j int) { ts.py[i], ts.py[j] = ts.py[j], ts.py[i] })
	return compare.Statistic(ra, ts.py, m, opts.Compare)
}

// aggregate fills the summary fields of res from the task slots.  It visits
// the slots in index order and sorts before extracting percentiles, so it
// does not depend on how the tasks were scheduled.
func aggregate(res *Result, slots []slot, opts Opts) {
	var stats []float64
	for _, s := range slots[:opts.Resamples] {
		if !s.done {
			continue
		}
		res.Completed++
		if s.status != compare.OK {
			res.Degenerate++
			continue
		}
		stats = append(stats, s.stat)
	}
	var nPerm, extreme int
	if opts.Permutation {
		obs := math.Abs(res.Observed.Statistic)
		for _, s := range slots[opts.Resamples:] {
			if !s.done {
				continue
			}
			nPerm++
			if s.status == compare.OK && math.Abs(s.stat) >= obs {
				extreme++
			}
		}
	}
	res.Permutations = nPerm
	if res.Completed < res.Requested || (opts.Permutation && nPerm < res.Requested) {
		res.Cancelled = true
		return
	}
	if len(stats) > 0 {
		sort.Float64s(stats)
		alpha := (1 - opts.Confidence) / 2
		res.Lower = stat.Quantile(alpha, stat.LinInterp, stats, nil)
		res.Upper = stat.Quantile(1-alpha, stat.LinInterp, stats, nil)
		res.HasInterval = true
	}
	if opts.Permutation {
		res.PValue = float64(1+extreme) / float64(1+nPerm)
		res.HasPValue = true
	}
}
