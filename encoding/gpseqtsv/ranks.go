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
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/gpseq/rank"
	"github.com/grailbio/gpseq/region"
	pkgerrors "github.com/pkg/errors"
)

// WriteRanksTo writes a rank table with one column per ranking, named after
// the ranking.  Row k holds the label of the region at position k of each
// ranking; shorter rankings leave their trailing cells empty.  With chromWide
// set, labels are chromosome names only, which is what chromosome-wide
// analyses use, but such tables cannot be read back by ReadOrdersFrom.
func WriteRanksTo(out io.Writer, rankings []*rank.Ranking, chromWide bool) error {
	w := tsv.NewWriter(out)
	labels := make([][]string, len(rankings))
	nRow := 0
	for i, r := range rankings {
		w.WriteString(r.Name)
		labels[i] = r.Labels(chromWide)
		if len(labels[i]) > nRow {
			nRow = len(labels[i])
		}
	}
	if err := w.EndLine(); err != nil {
		return err
	}
	for row := 0; row < nRow; row++ {
		for _, col := range labels {
			if row < len(col) {
				w.WriteString(col[row])
			} else {
				w.WriteString("")
			}
		}
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteRanks writes a rank table to path.  See WriteRanksTo.
func WriteRanks(ctx context.Context, path string, rankings []*rank.Ranking, chromWide bool) error {
	out, err := createOutput(ctx, path)
	if err != nil {
		return err
	}
	err = WriteRanksTo(out.w, rankings, chromWide)
	if err = out.close(ctx, err); err != nil {
		return pkgerrors.Wrapf(err, "write %s", path)
	}
	return nil
}

// ReadOrdersFrom parses a rank table into the region order of each column,
// keyed by column name.  Cells are chrom:start-end labels; empty cells are
// skipped.  Columns are variable in number, so lines are split directly
// rather than through a struct reader.  A leading unnamed column, as written
// by data frame libraries for the row index, is ignored.
func ReadOrdersFrom(r io.Reader) (map[string][]region.Region, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64<<10), 64<<20)
	var (
		names  []string
		orders [][]region.Region
		skip   int
		lineNo int
	)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if names == nil {
			if strings.TrimSpace(line) == "" {
				continue
			}
			names = strings.Split(line, "\t")
			if names[0] == "" {
				skip = 1
			}
			names = names[skip:]
			seen := map[string]bool{}
			for _, name := range names {
				if name == "" || seen[name] {
					return nil, errors.E(errors.Invalid, fmt.Sprintf("gpseqtsv: rank table header has an empty or duplicate column name %q", name))
				}
				seen[name] = true
			}
			orders = make([][]region.Region, len(names))
			continue
		}
		if line == "" {
			continue
		}
		cells := strings.Split(line, "\t")
		if len(cells) > len(names)+skip {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("gpseqtsv: rank table line %d has %d cells, header has %d", lineNo, len(cells), len(names)+skip))
		}
		for i := skip; i < len(cells); i++ {
			if cells[i] == "" {
				continue
			}
			reg, err := region.ParseLabel(cells[i])
			if err != nil {
				return nil, errors.E(err, fmt.Sprintf("gpseqtsv: rank table line %d column %s", lineNo, names[i-skip]))
			}
			orders[i-skip] = append(orders[i-skip], reg)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if names == nil {
		return nil, errors.E(errors.Invalid, "gpseqtsv: rank table has no header")
	}
	result := make(map[string][]region.Region, len(names))
	for i, name := range names {
		result[name] = orders[i]
	}
	return result, nil
}

// ReadOrders reads the rank table at path.  See ReadOrdersFrom.
func ReadOrders(ctx context.Context, path string) (map[string][]region.Region, error) {
	in, err := openInput(ctx, path)
	if err != nil {
		return nil, err
	}
	orders, err := ReadOrdersFrom(in.r)
	if cerr := in.close(ctx); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "read %s", path)
	}
	return orders, nil
}
