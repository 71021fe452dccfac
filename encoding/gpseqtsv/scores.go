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

package gpseqtsv

import (
	"context"
	"io"
	"math"
	"strconv"

	"github.com/grailbio/base/tsv"
	"github.com/grailbio/gpseq/centrality"
	"github.com/grailbio/gpseq/region"
	"github.com/pkg/errors"
)

// ScoreRow is one line of a score table.
type ScoreRow struct {
	Chrom  string  `tsv:"chrom"`
	Start  int64   `tsv:"start"`
	End    int64   `tsv:"end"`
	Metric string  `tsv:"metric"`
	Score  float64 `tsv:"score"`
}

var scoreHeader = []string{"chrom", "start", "end", "metric", "score"}

func writeScoreLine(w *tsv.Writer, r region.Region, metric string, score float64) error {
	w.WriteString(r.Chrom)
	w.WriteInt64(r.Start)
	w.WriteInt64(r.End)
	w.WriteString(metric)
	if math.IsNaN(score) {
		w.WriteString("nan")
	} else {
		w.WriteString(strconv.FormatFloat(score, 'g', -1, 64))
	}
	return w.EndLine()
}

// WriteScoresTo writes scores as a long-format score table.  Undefined
// regions are written with score nan after the defined ones.  Scores are
// written with full precision, so ReadScoresFrom recovers them exactly.
func WriteScoresTo(out io.Writer, scores []*centrality.Scores) error {
	w := tsv.NewWriter(out)
	for _, col := range scoreHeader {
		w.WriteString(col)
	}
	if err := w.EndLine(); err != nil {
		return err
	}
	for _, s := range scores {
		metric := s.Variant.String()
		for i, r := range s.Regions {
			if err := writeScoreLine(w, r, metric, s.Values[i]); err != nil {
				return err
			}
		}
		for _, u := range s.Undefined {
			if err := writeScoreLine(w, u.Region, metric, math.NaN()); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// WriteScores writes scores to path.  See WriteScoresTo.
func WriteScores(ctx context.Context, path string, scores []*centrality.Scores) (err error) {
	out, err := createOutput(ctx, path)
	if err != nil {
		return err
	}
	err = WriteScoresTo(out.w, scores)
	if err = out.close(ctx, err); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// ReadScoresFrom parses a score table, keyed by metric name.  nan scores
// become undefined regions with reason centrality.Missing.
func ReadScoresFrom(r io.Reader) (map[string]*centrality.Scores, error) {
	reader := tsv.NewReader(r)
	reader.HasHeaderRow = true
	reader.UseHeaderNames = true
	type column struct {
		variant centrality.Variant
		regions []region.Region
		values  []float64
	}
	var (
		columns = map[string]*column{}
		nLine   = 1
	)
	for {
		var row ScoreRow
		if err := reader.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrapf(err, "score table line %d", nLine+1)
		}
		nLine++
		col, ok := columns[row.Metric]
		if !ok {
			v, err := centrality.ParseVariant(row.Metric)
			if err != nil {
				return nil, errors.Wrapf(err, "score table line %d", nLine)
			}
			col = &column{variant: v}
			columns[row.Metric] = col
		}
		col.regions = append(col.regions, region.Region{Chrom: row.Chrom, Start: row.Start, End: row.End})
		col.values = append(col.values, row.Score)
	}
	result := make(map[string]*centrality.Scores, len(columns))
	for name, col := range columns {
		s, err := centrality.NewScores(col.variant, col.regions, col.values)
		if err != nil {
			return nil, errors.Wrapf(err, "score table metric %s", name)
		}
		result[name] = s
	}
	return result, nil
}

// ReadScores reads the score table at path.  See ReadScoresFrom.
func ReadScores(ctx context.Context, path string) (map[string]*centrality.Scores, error) {
	in, err := openInput(ctx, path)
	if err != nil {
		return nil, err
	}
	scores, err := ReadScoresFrom(in.r)
	if cerr := in.close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return scores, nil
}
