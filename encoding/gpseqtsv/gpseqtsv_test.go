package gpseqtsv

import (
	"bytes"
	"io/ioutil"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/gpseq/centrality"
	"github.com/grailbio/gpseq/rank"
	"github.com/grailbio/gpseq/region"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const countTable = `chrom	start	end	condition	reads	sites	std
chr1	0	100	10min	10	2	nan
chr1	100	200	10min	5	1	nan
chr1	0	100	30min	20	2	1.5
chr1	100	200	30min	5	1	0.5
chr2	0	100	10min	1	1	nan
chr2	0	100	30min	40	4	2
`

func TestReadCounts(t *testing.T) {
	tab, err := ReadCountsFrom(strings.NewReader(countTable), nil)
	require.NoError(t, err)
	expect.EQ(t, tab.Len(), 3)
	expect.EQ(t, tab.ConditionNames(), []string{"10min", "30min"})
	expect.EQ(t, tab.Regions(), []region.Region{
		{Chrom: "chr1", Start: 0, End: 100},
		{Chrom: "chr1", Start: 100, End: 200},
		{Chrom: "chr2", Start: 0, End: 100},
	})
	row := tab.Row(0)
	expect.EQ(t, row[0].Reads, int64(10))
	expect.EQ(t, row[0].Sites, int64(2))
	expect.True(t, math.IsNaN(row[0].Std))
	expect.EQ(t, row[1].Std, 1.5)
	expect.EQ(t, tab.CondReads(0), int64(16))
	expect.EQ(t, tab.CondReads(1), int64(65))
	expect.False(t, tab.HasStd())

	tab, err = ReadCountsFrom(strings.NewReader(countTable), []int64{1000, 2000})
	require.NoError(t, err)
	expect.EQ(t, tab.CondReads(1), int64(2000))
}

func TestReadCountsErrors(t *testing.T) {
	for _, bad := range []string{
		// Missing condition for chr2.
		"chrom\tstart\tend\tcondition\treads\tsites\tstd\nchr1\t0\t10\ta\t1\t1\tnan\nchr1\t0\t10\tb\t1\t1\tnan\nchr2\t0\t10\ta\t1\t1\tnan\n",
		// Duplicate cell.
		"chrom\tstart\tend\tcondition\treads\tsites\tstd\nchr1\t0\t10\ta\t1\t1\tnan\nchr1\t0\t10\ta\t1\t1\tnan\n",
		// Not a number.
		"chrom\tstart\tend\tcondition\treads\tsites\tstd\nchr1\t0\t10\ta\tx\t1\tnan\n",
		// Empty region.
		"chrom\tstart\tend\tcondition\treads\tsites\tstd\nchr1\t10\t10\ta\t1\t1\tnan\n",
		// No data.
		"chrom\tstart\tend\tcondition\treads\tsites\tstd\n",
	} {
		_, err := ReadCountsFrom(strings.NewReader(bad), nil)
		assert.Error(t, err, bad)
	}
}

func TestReadCountsFromPath(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	path := filepath.Join(tempDir, "counts.tsv")
	require.NoError(t, ioutil.WriteFile(path, []byte(countTable), 0644))
	tab, err := ReadCounts(ctx, path, nil)
	require.NoError(t, err)
	expect.EQ(t, tab.Len(), 3)

	_, err = ReadCounts(ctx, filepath.Join(tempDir, "missing.tsv"), nil)
	assert.Error(t, err)
}

func TestScoresRoundTrip(t *testing.T) {
	tab, err := ReadCountsFrom(strings.NewReader(countTable), nil)
	require.NoError(t, err)
	scores, err := centrality.ComputeAll(tab, []centrality.Variant{centrality.ProbTwoPoint, centrality.CumProbGlobal}, 2)
	require.NoError(t, err)
	undefined, err := centrality.NewScores(centrality.ProbFixed,
		[]region.Region{{Chrom: "chr1", Start: 0, End: 10}, {Chrom: "chr1", Start: 10, End: 20}},
		[]float64{1.0 / 3, math.NaN()})
	require.NoError(t, err)
	scores = append(scores, undefined)

	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	for _, name := range []string{"scores.tsv", "scores.tsv.gz", "scores.tsv.sz"} {
		path := filepath.Join(tempDir, name)
		require.NoError(t, WriteScores(ctx, path, scores))
		got, err := ReadScores(ctx, path)
		require.NoError(t, err)
		require.Equal(t, len(scores), len(got))
		for _, want := range scores {
			s, ok := got[want.Variant.String()]
			require.True(t, ok, want.Variant)
			expect.EQ(t, s.Variant, want.Variant)
			expect.EQ(t, s.Regions, want.Regions)
			expect.EQ(t, s.Values, want.Values)
			expect.EQ(t, len(s.Undefined), len(want.Undefined))
		}
		u := got["prob_f"].Undefined
		require.Len(t, u, 1)
		expect.EQ(t, u[0].Reason, centrality.Missing)
	}
}

func TestReadScoresUnknownMetric(t *testing.T) {
	_, err := ReadScoresFrom(strings.NewReader("chrom\tstart\tend\tmetric\tscore\nchr1\t0\t10\tfoo\t1\n"))
	assert.Error(t, err)
}

func TestRanksRoundTrip(t *testing.T) {
	rs := []region.Region{
		{Chrom: "chr1", Start: 0, End: 10},
		{Chrom: "chr1", Start: 10, End: 20},
		{Chrom: "chr2", Start: 0, End: 10},
	}
	a, err := centrality.NewScores(centrality.ProbTwoPoint, rs, []float64{0.5, 3, 1})
	require.NoError(t, err)
	b, err := centrality.NewScores(centrality.VarFixed, rs[:2], []float64{2, 1})
	require.NoError(t, err)
	rankings := []*rank.Ranking{rank.Build(a, rank.Descending), rank.Build(b, rank.Descending)}

	var buf bytes.Buffer
	require.NoError(t, WriteRanksTo(&buf, rankings, false))
	expect.EQ(t, buf.String(), "prob_2p\tvar_f\n"+
		"chr1:10-20\tchr1:0-10\n"+
		"chr2:0-10\tchr1:10-20\n"+
		"chr1:0-10\t\n")

	orders, err := ReadOrdersFrom(&buf)
	require.NoError(t, err)
	expect.EQ(t, orders, map[string][]region.Region{
		"prob_2p": {rs[1], rs[2], rs[0]},
		"var_f":   {rs[0], rs[1]},
	})

	buf.Reset()
	require.NoError(t, WriteRanksTo(&buf, rankings[:1], true))
	expect.EQ(t, buf.String(), "prob_2p\nchr1\nchr2\nchr1\n")
}

func TestReadOrdersLegacy(t *testing.T) {
	// Row index column, as written by data frame libraries.
	legacy := "\tprob_2p\tcv_f\n" +
		"0\tchr1:0-10\tchr2:0-10\n" +
		"1\tchr2:0-10\tchr1:0-10\n"
	orders, err := ReadOrdersFrom(strings.NewReader(legacy))
	require.NoError(t, err)
	a := region.Region{Chrom: "chr1", Start: 0, End: 10}
	b := region.Region{Chrom: "chr2", Start: 0, End: 10}
	expect.EQ(t, orders["prob_2p"], []region.Region{a, b})
	expect.EQ(t, orders["cv_f"], []region.Region{b, a})

	for _, bad := range []string{
		"",
		"a\ta\n",
		"a\nchr1\n",
		"a\nchr1:0-10\tchr1:10-20\n",
	} {
		_, err := ReadOrdersFrom(strings.NewReader(bad))
		assert.Error(t, err, bad)
	}
}

func TestRanksFromPath(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := vcontext.Background()
	rs := []region.Region{{Chrom: "chr1", Start: 0, End: 10}, {Chrom: "chr1", Start: 10, End: 20}}
	s, err := centrality.NewScores(centrality.ProbFixed, rs, []float64{1, 2})
	require.NoError(t, err)
	path := filepath.Join(tempDir, "ranks.tsv.gz")
	require.NoError(t, WriteRanks(ctx, path, []*rank.Ranking{rank.Build(s, rank.Ascending)}, false))
	orders, err := ReadOrders(ctx, path)
	require.NoError(t, err)
	expect.EQ(t, orders["prob_f"], rs)
}
