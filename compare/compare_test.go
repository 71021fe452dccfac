package compare

import (
	"math"
	"math/rand"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/gpseq/centrality"
	"github.com/grailbio/gpseq/rank"
	"github.com/grailbio/gpseq/region"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var measures = []Measure{Spearman, WeightedTau}

func regions(chrom string, n int) []region.Region {
	rs := make([]region.Region, n)
	for i := range rs {
		rs[i] = region.Region{Chrom: chrom, Start: int64(i * 10), End: int64(i*10 + 10)}
	}
	return rs
}

func ranking(t *testing.T, rs []region.Region, values []float64) *rank.Ranking {
	s, err := centrality.NewScores(centrality.ProbFixed, rs, values)
	require.NoError(t, err)
	return rank.Build(s, rank.Descending)
}

func randomValues(rnd *rand.Rand, n, distinct int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = float64(rnd.Intn(distinct))
	}
	return v
}

func TestSelfComparison(t *testing.T) {
	tab, err := region.NewTable(nil, regions("chr1", 3),
		[][]region.Condition{region.Counts(10, 1), region.Counts(5, 5), region.Counts(1, 10)}, nil)
	require.NoError(t, err)
	s, err := centrality.Compute(tab, centrality.ProbTwoPoint)
	require.NoError(t, err)
	r := rank.Build(s, rank.Descending)
	for _, m := range measures {
		res, err := Compare(r, r, m, DefaultOpts)
		require.NoError(t, err)
		expect.EQ(t, res.Status, OK)
		expect.EQ(t, res.Statistic, 1.0)
		expect.EQ(t, res.N, 3)
	}

	rnd := rand.New(rand.NewSource(7))
	for trial := 0; trial < 20; trial++ {
		n := 2 + rnd.Intn(60)
		r := ranking(t, regions("chr1", n), randomValues(rnd, n, 5))
		for _, m := range measures {
			for _, w := range []Weigher{Hyperbolic, Logarithmic} {
				res, err := Compare(r, r, m, Opts{Weigher: w})
				require.NoError(t, err)
				if res.Status == Degenerate {
					continue
				}
				expect.EQ(t, res.Statistic, 1.0)
			}
		}
	}
}

func TestSymmetry(t *testing.T) {
	rnd := rand.New(rand.NewSource(11))
	for trial := 0; trial < 30; trial++ {
		n := 2 + rnd.Intn(80)
		rs := regions("chr1", n)
		rnd.Shuffle(len(rs), func(i, j int) { rs[i], rs[j] = rs[j], rs[i] })
		a := ranking(t, rs, randomValues(rnd, n, 1+rnd.Intn(20)))
		sub := rs[rnd.Intn(n/2+1):]
		b := ranking(t, sub, randomValues(rnd, len(sub), 1+rnd.Intn(20)))
		for _, m := range measures {
			ab, err := Compare(a, b, m, DefaultOpts)
			require.NoError(t, err)
			ba, err := Compare(b, a, m, DefaultOpts)
			require.NoError(t, err)
			expect.EQ(t, ab.Status, ba.Status)
			expect.EQ(t, ab.Statistic, ba.Statistic)
			assert.True(t, ab.Statistic >= -1 && ab.Statistic <= 1)
		}
	}
}

func TestReversed(t *testing.T) {
	rs := regions("chr1", 10)
	up := make([]float64, 10)
	down := make([]float64, 10)
	for i := range up {
		up[i] = float64(i)
		down[i] = float64(-i)
	}
	a := ranking(t, rs, up)
	b := ranking(t, rs, down)
	for _, m := range measures {
		res, err := Compare(a, b, m, DefaultOpts)
		require.NoError(t, err)
		expect.EQ(t, res.Status, OK)
		assert.InDelta(t, -1.0, res.Statistic, 1e-12)
	}
}

func TestKnownValues(t *testing.T) {
	rs := regions("chr1", 5)
	a := ranking(t, rs, []float64{5, 4, 3, 2, 1})
	b := ranking(t, rs, []float64{4, 5, 2, 3, 1})
	res, err := Compare(a, b, Spearman, DefaultOpts)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, res.Statistic, 1e-12)

	x := []float64{1, 2, 3}
	y := []float64{1, 3, 2}
	v, status := Statistic(x, y, WeightedTau, DefaultOpts)
	expect.EQ(t, status, OK)
	assert.InDelta(t, 6.0/11.0, v, 1e-12)
}

func TestTopWeighting(t *testing.T) {
	rs := regions("chr1", 10)
	base := make([]float64, 10)
	for i := range base {
		base[i] = float64(10 - i)
	}
	topSwap := append([]float64(nil), base...)
	topSwap[0], topSwap[1] = topSwap[1], topSwap[0]
	bottomSwap := append([]float64(nil), base...)
	bottomSwap[8], bottomSwap[9] = bottomSwap[9], bottomSwap[8]

	a := ranking(t, rs, base)
	top, err := Compare(a, ranking(t, rs, topSwap), WeightedTau, DefaultOpts)
	require.NoError(t, err)
	bottom, err := Compare(a, ranking(t, rs, bottomSwap), WeightedTau, DefaultOpts)
	require.NoError(t, err)
	assert.True(t, top.Statistic < bottom.Statistic, "top %v bottom %v", top.Statistic, bottom.Statistic)

	// Spearman does not care where the swap happens.
	top, err = Compare(a, ranking(t, rs, topSwap), Spearman, DefaultOpts)
	require.NoError(t, err)
	bottom, err = Compare(a, ranking(t, rs, bottomSwap), Spearman, DefaultOpts)
	require.NoError(t, err)
	assert.InDelta(t, top.Statistic, bottom.Statistic, 1e-12)
}

func TestDegenerate(t *testing.T) {
	rs := regions("chr1", 4)
	tied := ranking(t, rs, []float64{1, 1, 1, 1})
	varied := ranking(t, rs, []float64{1, 2, 3, 4})
	for _, m := range measures {
		res, err := Compare(tied, varied, m, DefaultOpts)
		require.NoError(t, err)
		expect.EQ(t, res.Status, Degenerate)
		res, err = Compare(tied, tied, m, DefaultOpts)
		require.NoError(t, err)
		expect.EQ(t, res.Status, Degenerate)

		single := ranking(t, rs[:1], []float64{3})
		res, err = Compare(single, varied, m, DefaultOpts)
		require.NoError(t, err)
		expect.EQ(t, res.Status, Degenerate)
		expect.EQ(t, res.N, 1)
		expect.EQ(t, res.OnlyB, 3)
	}
}

func TestNoOverlap(t *testing.T) {
	a := ranking(t, regions("chr1", 3), []float64{1, 2, 3})
	b := ranking(t, regions("chr2", 4), []float64{1, 2, 3, 4})
	for _, m := range measures {
		res, err := Compare(a, b, m, DefaultOpts)
		require.NoError(t, err)
		expect.EQ(t, res.Status, NoOverlap)
		expect.EQ(t, res.N, 0)
		expect.EQ(t, res.OnlyA, 3)
		expect.EQ(t, res.OnlyB, 4)
	}
	empty := ranking(t, nil, nil)
	res, err := Compare(empty, empty, Spearman, DefaultOpts)
	require.NoError(t, err)
	expect.EQ(t, res.Status, NoOverlap)
}

func TestPartialOverlapReranks(t *testing.T) {
	rs := regions("chr1", 6)
	// b only has the last four regions of a, in the same order.
	a := ranking(t, rs, []float64{6, 5, 4, 3, 2, 1})
	b := ranking(t, rs[2:], []float64{4, 3, 2, 1})
	for _, m := range measures {
		res, err := Compare(a, b, m, DefaultOpts)
		require.NoError(t, err)
		expect.EQ(t, res.Status, OK)
		expect.EQ(t, res.Statistic, 1.0)
		expect.EQ(t, res.N, 4)
		expect.EQ(t, res.OnlyA, 2)
		expect.EQ(t, res.OnlyB, 0)
	}
}

func TestCompareOrders(t *testing.T) {
	rs := regions("chr1", 5)
	orderA := []region.Region{rs[0], rs[1], rs[2], rs[3], rs[4]}
	orderB := []region.Region{rs[1], rs[0], rs[3], rs[2], rs[4]}
	legacy, err := CompareOrders(orderA, orderB, Spearman, DefaultOpts)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, legacy.Statistic, 1e-12)

	// The legacy path is the same algorithm as the modern one.
	a, err := rank.FromOrder("a", orderA)
	require.NoError(t, err)
	b, err := rank.FromOrder("b", orderB)
	require.NoError(t, err)
	for _, m := range measures {
		modern, err := Compare(a, b, m, DefaultOpts)
		require.NoError(t, err)
		legacy, err := CompareOrders(orderA, orderB, m, DefaultOpts)
		require.NoError(t, err)
		expect.EQ(t, legacy, modern)
	}

	_, err = CompareOrders([]region.Region{rs[0], rs[0]}, orderB, Spearman, DefaultOpts)
	assert.True(t, errors.Is(errors.Invalid, err))
}

func TestInvalidMeasure(t *testing.T) {
	r := ranking(t, regions("chr1", 3), []float64{1, 2, 3})
	_, err := Compare(r, r, Measure(7), DefaultOpts)
	assert.True(t, errors.Is(errors.Invalid, err))

	m, err := ParseMeasure("weighted-tau")
	require.NoError(t, err)
	expect.EQ(t, m, WeightedTau)
	_, err = ParseMeasure("kendall")
	assert.True(t, errors.Is(errors.Invalid, err))
	w, err := ParseWeigher("logarithmic")
	require.NoError(t, err)
	expect.EQ(t, w, Logarithmic)
	_, err = ParseWeigher("flat")
	assert.Error(t, err)
}

func TestDirectionMismatch(t *testing.T) {
	rs := regions("chr1", 5)
	s, err := centrality.NewScores(centrality.ProbFixed, rs, []float64{1, 2, 3, 4, 5})
	require.NoError(t, err)
	desc := rank.Build(s, rank.Descending)
	asc := rank.Build(s, rank.Ascending)
	for _, m := range measures {
		_, err := Compare(desc, asc, m, DefaultOpts)
		assert.True(t, errors.Is(errors.Invalid, err), "%v", err)
		res, err := Compare(asc, asc, m, DefaultOpts)
		require.NoError(t, err)
		expect.EQ(t, res.Statistic, 1.0)
	}
}

func testSign(d float64) float64 {
	switch {
	case d > 0:
		return 1
	case d < 0:
		return -1
	}
	return 0
}

// quadraticWeightedTau evaluates the WeightedTau definition pair by pair.
func quadraticWeightedTau(x, y []float64, w Weigher) (float64, bool) {
	n := len(x)
	var num, dx, dy float64
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			wij := (w.weight(x[i]) + w.weight(y[i]) + w.weight(x[j]) + w.weight(y[j])) / 2
			sx := testSign(x[i] - x[j])
			sy := testSign(y[i] - y[j])
			num += wij * sx * sy
			if sx != 0 {
				dx += wij
			}
			if sy != 0 {
				dy += wij
			}
		}
	}
	if dx == 0 || dy == 0 {
		return 0, false
	}
	return num / math.Sqrt(dx*dy), true
}

func TestWeightedTauMatchesDefinition(t *testing.T) {
	rnd := rand.New(rand.NewSource(13))
	for trial := 0; trial < 200; trial++ {
		n := 1 + rnd.Intn(60)
		distinct := 1 + rnd.Intn(12)
		x := rank.Fractional(randomValues(rnd, n, distinct), rank.Descending)
		y := rank.Fractional(randomValues(rnd, n, distinct), rank.Descending)
		if trial%5 == 0 {
			// Partially shared order, so that concordant, discordant and
			// doubly tied pairs all occur.
			copy(y[:n/2], x[:n/2])
		}
		for _, w := range []Weigher{Hyperbolic, Logarithmic} {
			want, wantOK := quadraticWeightedTau(x, y, w)
			got, gotOK := weightedTau(x, y, w)
			require.Equal(t, wantOK, gotOK, "trial %d", trial)
			assert.InDelta(t, want, got, 1e-9, "trial %d: x=%v y=%v", trial, x, y)
		}
	}
}

func TestWeightedTauLarge(t *testing.T) {
	const n = 50000
	rnd := rand.New(rand.NewSource(17))
	rs := regions("chr1", n)
	va := make([]float64, n)
	vb := make([]float64, n)
	for i := range va {
		common := rnd.NormFloat64()
		va[i] = common + 0.5*rnd.NormFloat64()
		vb[i] = common + 0.5*rnd.NormFloat64()
	}
	a := ranking(t, rs, va)
	b := ranking(t, rs, vb)
	res, err := Compare(a, b, WeightedTau, DefaultOpts)
	require.NoError(t, err)
	expect.EQ(t, res.Status, OK)
	assert.True(t, res.Statistic > 0.3 && res.Statistic < 1, "%v", res.Statistic)
	self, err := Compare(a, a, WeightedTau, DefaultOpts)
	require.NoError(t, err)
	expect.EQ(t, self.Statistic, 1.0)
}
