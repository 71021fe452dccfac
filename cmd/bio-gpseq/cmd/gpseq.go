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

package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/gpseq/bootstrap"
	"github.com/grailbio/gpseq/centrality"
	"github.com/grailbio/gpseq/compare"
	"github.com/grailbio/gpseq/encoding/gpseqtsv"
	"github.com/grailbio/gpseq/interval"
	"github.com/grailbio/gpseq/rank"
	"github.com/grailbio/gpseq/region"
)

type estimateOpts struct {
	metrics     string
	condReads   string
	keepBED     string
	excludeBED  string
	regions     string
	parallelism int
}

type rankOpts struct {
	metrics   string
	direction string
	chromWide bool
}

type compareOpts struct {
	metricA, metricB string
	measure, weigher string
	direction        string
	resamples        int
	confidence       float64
	seed             int64
	seeded           bool
	permutation      bool
	parallelism      int
	timeout          time.Duration
}

func parseCondReads(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	var condReads []int64
	for _, field := range strings.Split(s, ",") {
		n, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
		if err != nil {
			return nil, errors.E(errors.Invalid, err, "-cond-reads")
		}
		condReads = append(condReads, n)
	}
	return condReads, nil
}

// masks loads the keep and exclude interval sets.  A nil Masker means no
// restriction.
func masks(ctx context.Context, opts estimateOpts) (keep, exclude region.Masker, err error) {
	if opts.keepBED != "" && opts.regions != "" {
		return nil, nil, errors.E(errors.Invalid, "-keep and -regions are mutually exclusive")
	}
	if opts.keepBED != "" {
		u, err := interval.NewBEDUnionFromPath(ctx, opts.keepBED, interval.NewBEDOpts{})
		if err != nil {
			return nil, nil, err
		}
		keep = &u
	}
	if opts.regions != "" {
		u, err := interval.NewBEDUnionFromRegionStrings(strings.Split(opts.regions, ","), interval.NewBEDOpts{})
		if err != nil {
			return nil, nil, err
		}
		keep = &u
	}
	if opts.excludeBED != "" {
		u, err := interval.NewBEDUnionFromPath(ctx, opts.excludeBED, interval.NewBEDOpts{})
		if err != nil {
			return nil, nil, err
		}
		exclude = &u
	}
	return
}

// selectVariants parses the -metrics flag.  With "all", the variants which
// need per-site std are dropped when the table has none.
func selectVariants(metrics string, t *region.Table) ([]centrality.Variant, error) {
	variants, err := centrality.ParseVariants(metrics)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(metrics) != "all" || t.HasStd() {
		return variants, nil
	}
	var kept []centrality.Variant
	for _, v := range variants {
		if v.NeedsStd() {
			log.Printf("skipping %v: the count table has no per-site std", v)
			continue
		}
		kept = append(kept, v)
	}
	return kept, nil
}

func estimate(opts estimateOpts, countsPath, scoresPath string) error {
	ctx := vcontext.Background()
	condReads, err := parseCondReads(opts.condReads)
	if err != nil {
		return err
	}
	t, err := gpseqtsv.ReadCounts(ctx, countsPath, condReads)
	if err != nil {
		return err
	}
	keep, exclude, err := masks(ctx, opts)
	if err != nil {
		return err
	}
	if keep != nil || exclude != nil {
		if t, err = t.Mask(keep, exclude); err != nil {
			return err
		}
	}
	variants, err := selectVariants(opts.metrics, t)
	if err != nil {
		return err
	}
	scores, err := centrality.ComputeAll(t, variants, opts.parallelism)
	if err != nil {
		return err
	}
	for _, s := range scores {
		if len(s.Undefined) == 0 {
			continue
		}
		counts := map[centrality.Reason]int{}
		for _, u := range s.Undefined {
			counts[u.Reason]++
		}
		for reason, n := range counts {
			log.Printf("%v: %d region(s) undefined (%v)", s.Variant, n, reason)
		}
	}
	if err := gpseqtsv.WriteScores(ctx, scoresPath, scores); err != nil {
		return err
	}
	log.Printf("wrote %d metric(s) over %d region(s) to %s", len(scores), t.Len(), scoresPath)
	return nil
}

// sortedMetrics returns the metrics of a score table in canonical variant
// order.
func sortedMetrics(scores map[string]*centrality.Scores) []*centrality.Scores {
	list := make([]*centrality.Scores, 0, len(scores))
	for _, s := range scores {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Variant < list[j].Variant })
	return list
}

func rankScores(opts rankOpts, scoresPath, ranksPath string) error {
	ctx := vcontext.Background()
	dir, err := rank.ParseDirection(opts.direction)
	if err != nil {
		return err
	}
	scores, err := gpseqtsv.ReadScores(ctx, scoresPath)
	if err != nil {
		return err
	}
	selected := sortedMetrics(scores)
	if strings.TrimSpace(opts.metrics) != "all" {
		variants, err := centrality.ParseVariants(opts.metrics)
		if err != nil {
			return err
		}
		selected = selected[:0]
		for _, v := range variants {
			s, ok := scores[v.String()]
			if !ok {
				return errors.E(errors.NotExist, fmt.Sprintf("metric %v is not in %s", v, scoresPath))
			}
			selected = append(selected, s)
		}
	}
	rankings := make([]*rank.Ranking, len(selected))
	for i, s := range selected {
		rankings[i] = rank.Build(s, dir)
	}
	return gpseqtsv.WriteRanks(ctx, ranksPath, rankings, opts.chromWide)
}

func (opts compareOpts) metrics() (string, string, error) {
	if opts.metricA == "" {
		return "", "", errors.E(errors.Invalid, "-metric-a is required")
	}
	if opts.metricB == "" {
		return opts.metricA, opts.metricA, nil
	}
	return opts.metricA, opts.metricB, nil
}

func (opts compareOpts) measureOpts() (compare.Measure, compare.Opts, error) {
	m, err := compare.ParseMeasure(opts.measure)
	if err != nil {
		return 0, compare.Opts{}, err
	}
	w, err := compare.ParseWeigher(opts.weigher)
	if err != nil {
		return 0, compare.Opts{}, err
	}
	return m, compare.Opts{Weigher: w}, nil
}

func lookupScores(ctx context.Context, path, metric string) (*centrality.Scores, error) {
	scores, err := gpseqtsv.ReadScores(ctx, path)
	if err != nil {
		return nil, err
	}
	s, ok := scores[metric]
	if !ok {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("metric %s is not in %s", metric, path))
	}
	return s, nil
}

func compareScores(opts compareOpts, pathA, pathB string, out io.Writer) error {
	ctx := vcontext.Background()
	metricA, metricB, err := opts.metrics()
	if err != nil {
		return err
	}
	m, mopts, err := opts.measureOpts()
	if err != nil {
		return err
	}
	dir, err := rank.ParseDirection(opts.direction)
	if err != nil {
		return err
	}
	a, err := lookupScores(ctx, pathA, metricA)
	if err != nil {
		return err
	}
	b, err := lookupScores(ctx, pathB, metricB)
	if err != nil {
		return err
	}
	if opts.resamples == 0 {
		res, err := compare.Compare(rank.Build(a, dir), rank.Build(b, dir), m, mopts)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "%s vs %s: %v\n", metricA, metricB, res)
		return err
	}
	bopts := bootstrap.Opts{
		Resamples:   opts.resamples,
		Confidence:  opts.confidence,
		Seed:        opts.seed,
		Seeded:      opts.seeded,
		Permutation: opts.permutation,
		Parallelism: opts.parallelism,
		Direction:   dir,
		Compare:     mopts,
	}
	var bctx context.Context = ctx
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(bctx, opts.timeout)
		defer cancel()
	}
	res, err := bootstrap.Estimate(bctx, a, b, m, bopts)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s vs %s: %v\n", metricA, metricB, res)
	return err
}

func compareLegacy(opts compareOpts, pathA, pathB string, out io.Writer) error {
	ctx := vcontext.Background()
	metricA, metricB, err := opts.metrics()
	if err != nil {
		return err
	}
	m, mopts, err := opts.measureOpts()
	if err != nil {
		return err
	}
	lookup := func(path, metric string) ([]region.Region, error) {
		orders, err := gpseqtsv.ReadOrders(ctx, path)
		if err != nil {
			return nil, err
		}
		order, ok := orders[metric]
		if !ok {
			return nil, errors.E(errors.NotExist, fmt.Sprintf("column %s is not in %s", metric, path))
		}
		return order, nil
	}
	orderA, err := lookup(pathA, metricA)
	if err != nil {
		return err
	}
	orderB, err := lookup(pathB, metricB)
	if err != nil {
		return err
	}
	res, err := compare.CompareOrders(orderA, orderB, m, mopts)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%s vs %s: %v\n", metricA, metricB, res)
	return err
}
