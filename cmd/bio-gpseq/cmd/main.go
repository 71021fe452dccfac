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
	"flag"
	"fmt"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/gpseq/bootstrap"
	"github.com/grailbio/gpseq/compare"
	"github.com/grailbio/gpseq/rank"
	"v.io/x/lib/cmdline"
)

func newCmdEstimate() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "estimate",
		Short:    "Compute centrality metrics from a count table",
		ArgsName: "countspath scorespath",
	}
	opts := estimateOpts{}
	cmd.Flags.StringVar(&opts.metrics, "metrics", "all", `Comma-separated list of metrics to compute, or "all".
Metrics are named <quantity>_<mode>, where quantity is one of prob, cor, roc,
var, ff, cv and mode is one of 2p (two-point), f (fixed) and g (global).
var, ff and cv need per-site std in the count table; with "all" they are
skipped when it is missing.`)
	cmd.Flags.StringVar(&opts.condReads, "cond-reads", "", "Comma-separated library size of each condition, in count-table order. By default, the total reads of each condition in the table")
	cmd.Flags.StringVar(&opts.keepBED, "keep", "", "Only score regions overlapping this sorted BED file")
	cmd.Flags.StringVar(&opts.excludeBED, "exclude", "", "Do not score regions overlapping this sorted BED file")
	cmd.Flags.StringVar(&opts.regions, "regions", "", "Comma-separated list of regions to score, formatted as <chrom>, <chrom>:<1-based pos> or <chrom>:<1-based first pos>-<last pos>. Mutually exclusive with -keep")
	cmd.Flags.IntVar(&opts.parallelism, "parallelism", 0, "Maximum number of metrics computed at once; 0 = runtime.NumCPU()")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("estimate takes countspath and scorespath, but got %v", argv)
		}
		return estimate(opts, argv[0], argv[1])
	})
	return cmd
}

func newCmdRank() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "rank",
		Short:    "Rank regions by each metric of a score table",
		ArgsName: "scorespath rankspath",
	}
	opts := rankOpts{}
	cmd.Flags.StringVar(&opts.metrics, "metrics", "all", `Comma-separated list of metrics to rank, or "all" for every metric in the score table`)
	cmd.Flags.StringVar(&opts.direction, "direction", rank.Descending.String(), `"descending" puts the most central region first; "ascending" puts it last`)
	cmd.Flags.BoolVar(&opts.chromWide, "chrom-wide", false, "Label regions by chromosome name only, for chromosome-wide scores")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("rank takes scorespath and rankspath, but got %v", argv)
		}
		return rankScores(opts, argv[0], argv[1])
	})
	return cmd
}

// addComparisonFlags registers the flags shared by compare and
// compare-legacy.
func addComparisonFlags(fs *flag.FlagSet, opts *compareOpts) {
	fs.StringVar(&opts.metricA, "metric-a", "", "Metric (column) of the first table; required")
	fs.StringVar(&opts.metricB, "metric-b", "", "Metric (column) of the second table; by default, the same as -metric-a")
	fs.StringVar(&opts.measure, "measure", compare.Spearman.String(), `Rank agreement measure, "spearman" or "weighted-tau"`)
	fs.StringVar(&opts.weigher, "weigher", compare.DefaultOpts.Weigher.String(), `Rank weighting of weighted-tau, "hyperbolic" (1/r) or "logarithmic" (1/log2(r+1))`)
}

func newCmdCompare() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "compare",
		Short:    "Compare the rankings induced by two metrics, with bootstrap confidence intervals",
		ArgsName: "scorespath-a scorespath-b",
	}
	opts := compareOpts{}
	addComparisonFlags(&cmd.Flags, &opts)
	cmd.Flags.StringVar(&opts.direction, "direction", rank.Descending.String(), `Ranking direction, "descending" or "ascending"`)
	cmd.Flags.IntVar(&opts.resamples, "resamples", bootstrap.DefaultOpts.Resamples, "Number of bootstrap resamples; 0 disables resampling")
	cmd.Flags.Float64Var(&opts.confidence, "confidence", bootstrap.DefaultOpts.Confidence, "Coverage of the bootstrap confidence interval")
	cmd.Flags.Int64Var(&opts.seed, "seed", 0, "Random seed.  If unset, a time-derived seed is used and reported, and the run is not reproducible")
	cmd.Flags.BoolVar(&opts.permutation, "permutation", false, "Also compute a permutation p-value against no association")
	cmd.Flags.IntVar(&opts.parallelism, "parallelism", 0, "Maximum number of concurrent resampling jobs; 0 = runtime.NumCPU()")
	cmd.Flags.DurationVar(&opts.timeout, "timeout", 0, "Stop resampling after this long and report an incomplete result; 0 = no limit")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("compare takes two score table paths, but got %v", argv)
		}
		cmd.Flags.Visit(func(f *flag.Flag) {
			if f.Name == "seed" {
				opts.seeded = true
			}
		})
		return compareScores(opts, argv[0], argv[1], env.Stdout)
	})
	return cmd
}

func newCmdCompareLegacy() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "compare-legacy",
		Short:    "Compare two columns of rank tables, which list regions from rank 1 down",
		ArgsName: "rankspath-a rankspath-b",
	}
	opts := compareOpts{}
	addComparisonFlags(&cmd.Flags, &opts)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("compare-legacy takes two rank table paths, but got %v", argv)
		}
		return compareLegacy(opts, argv[0], argv[1], env.Stdout)
	})
	return cmd
}

// Run is the entry point of bio-gpseq.
func Run() {
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-gpseq",
			Short:    "Nuclear centrality estimation and rank comparison for GPSeq",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdEstimate(),
				newCmdRank(),
				newCmdCompare(),
				newCmdCompareLegacy(),
			},
		})
}
