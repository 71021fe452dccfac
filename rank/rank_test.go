package rank

import (
	"math/rand"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/gpseq/centrality"
	"github.com/grailbio/gpseq/region"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func regions(n int) []region.Region {
	rs := make([]region.Region, n)
	for i := range rs {
		rs[i] = region.Region{Chrom: "chr1", Start: int64(i * 10), End: int64(i*10 + 10)}
	}
	return rs
}

func TestFractional(t *testing.T) {
	tests := []struct {
		values []float64
		dir    Direction
		want   []float64
	}{
		{[]float64{3, 1, 2}, Ascending, []float64{3, 1, 2}},
		{[]float64{3, 1, 2}, Descending, []float64{1, 3, 2}},
		{[]float64{1, 2, 2, 3}, Ascending, []float64{1, 2.5, 2.5, 4}},
		{[]float64{5, 5, 5}, Descending, []float64{2, 2, 2}},
		{[]float64{2, 1, 2, 1, 2}, Descending, []float64{2, 4.5, 2, 4.5, 2}},
		{nil, Descending, []float64{}},
	}
	for _, test := range tests {
		expect.EQ(t, Fractional(test.values, test.dir), test.want)
	}
}

func TestRankSum(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for trial := 0; trial < 50; trial++ {
		n := 1 + rnd.Intn(200)
		values := make([]float64, n)
		for i := range values {
			// Few distinct values, so there are many ties.
			values[i] = float64(rnd.Intn(7))
		}
		for _, dir := range []Direction{Ascending, Descending} {
			ranks := Fractional(values, dir)
			var sum float64
			for i, r := range ranks {
				sum += r
				for j := range ranks {
					if values[i] == values[j] {
						require.Equal(t, r, ranks[j])
					}
				}
			}
			assert.Equal(t, float64(n*(n+1))/2, sum)
		}
	}
}

func TestBuild(t *testing.T) {
	rs := regions(4)
	s, err := centrality.NewScores(centrality.ProbFixed, rs, []float64{0.5, 2, 0.5, 1})
	require.NoError(t, err)

	r := Build(s, Descending)
	expect.EQ(t, r.Name, "prob_f")
	expect.EQ(t, r.Len(), 4)
	expect.EQ(t, r.Regions, []region.Region{rs[1], rs[3], rs[0], rs[2]})
	expect.EQ(t, r.Ranks, []float64{1, 2, 3.5, 3.5})
	expect.EQ(t, r.Scores, []float64{2, 1, 0.5, 0.5})
	rk, ok := r.RankOf(rs[2])
	expect.True(t, ok)
	expect.EQ(t, rk, 3.5)
	_, ok = r.RankOf(region.Region{Chrom: "chrX", Start: 0, End: 1})
	expect.False(t, ok)

	asc := Build(s, Ascending)
	expect.EQ(t, asc.Regions, []region.Region{rs[0], rs[2], rs[3], rs[1]})
	expect.EQ(t, asc.Ranks, []float64{1.5, 1.5, 3, 4})
}

func TestBuildEmpty(t *testing.T) {
	s, err := centrality.NewScores(centrality.ProbFixed, nil, nil)
	require.NoError(t, err)
	r := Build(s, Descending)
	expect.EQ(t, r.Len(), 0)
}

func TestRatioScenario(t *testing.T) {
	rs := regions(3)
	tab, err := region.NewTable(nil, rs,
		[][]region.Condition{region.Counts(10, 1), region.Counts(5, 5), region.Counts(1, 10)}, nil)
	require.NoError(t, err)
	s, err := centrality.Compute(tab, centrality.ProbTwoPoint)
	require.NoError(t, err)
	r := Build(s, Descending)
	expect.EQ(t, r.Regions, []region.Region{rs[2], rs[1], rs[0]})
	expect.EQ(t, r.Ranks, []float64{1, 2, 3})
}

func TestLabels(t *testing.T) {
	r, err := FromOrder("legacy", []region.Region{
		{Chrom: "chr2", Start: 0, End: 10},
		{Chrom: "chr1", Start: 5, End: 10},
	})
	require.NoError(t, err)
	expect.EQ(t, r.Labels(false), []string{"chr2:0-10", "chr1:5-10"})
	expect.EQ(t, r.Labels(true), []string{"chr2", "chr1"})
	expect.EQ(t, r.Ranks, []float64{1, 2})
	expect.EQ(t, r.Direction, Ascending)
}

func TestFromOrderDuplicate(t *testing.T) {
	rs := regions(2)
	_, err := FromOrder("legacy", []region.Region{rs[0], rs[1], rs[0]})
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("asc")
	require.NoError(t, err)
	expect.EQ(t, d, Ascending)
	d, err = ParseDirection("descending")
	require.NoError(t, err)
	expect.EQ(t, d, Descending)
	_, err = ParseDirection("up")
	assert.Error(t, err)
}
