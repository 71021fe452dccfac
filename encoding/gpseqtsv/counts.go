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

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/gpseq/region"
	"github.com/pkg/errors"
)

// CountRow is one line of a count table.
type CountRow struct {
	Chrom     string  `tsv:"chrom"`
	Start     int64   `tsv:"start"`
	End       int64   `tsv:"end"`
	Condition string  `tsv:"condition"`
	Reads     int64   `tsv:"reads"`
	Sites     int64   `tsv:"sites"`
	Std       float64 `tsv:"std"`
}

// ReadCountsFrom parses a count table from r.  Conditions are numbered in
// first-seen order, and every region must appear under every condition.
// condReads is passed to region.NewTable; nil means library sizes are the
// per-condition read totals of the table.
func ReadCountsFrom(r io.Reader, condReads []int64) (*region.Table, error) {
	reader := tsv.NewReader(r)
	reader.HasHeaderRow = true
	reader.UseHeaderNames = true
	b := region.NewBuilder()
	nLine := 0
	for {
		var row CountRow
		if err := reader.Read(&row); err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrapf(err, "count table line %d", nLine+2)
		}
		nLine++
		reg := region.Region{Chrom: row.Chrom, Start: row.Start, End: row.End}
		c := region.Condition{Reads: row.Reads, Sites: row.Sites, Std: row.Std}
		if err := b.Add(reg, row.Condition, c); err != nil {
			return nil, errors.Wrapf(err, "count table line %d", nLine+1)
		}
	}
	t, err := b.Build(condReads)
	if err != nil {
		return nil, errors.Wrap(err, "count table")
	}
	log.Debug.Printf("gpseqtsv: read %d count line(s), %d region(s) x %d condition(s)", nLine, t.Len(), t.NConditions())
	return t, nil
}

// ReadCounts reads the count table at path.  See ReadCountsFrom.
func ReadCounts(ctx context.Context, path string, condReads []int64) (*region.Table, error) {
	in, err := openInput(ctx, path)
	if err != nil {
		return nil, err
	}
	t, err := ReadCountsFrom(in.r, condReads)
	if cerr := in.close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	log.Printf("gpseqtsv: %s: %d region(s), conditions %v", path, t.Len(), t.ConditionNames())
	return t, nil
}
