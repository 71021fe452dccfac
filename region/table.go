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

package region

import (
	"fmt"
	"math"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Table maps each region to one Condition per experimental condition.  All
// regions share the same number and order of conditions.  A Table is never
// modified after construction, so it can be shared freely across goroutines.
type Table struct {
	names     []string
	regions   []Region
	rows      [][]Condition
	condReads []int64
	index     map[Region]int
	hasStd    bool
}

// Counts is a convenience constructor for a row of conditions which only
// carries read counts.
func Counts(reads ...int64) []Condition {
	row := make([]Condition, len(reads))
	for i, r := range reads {
		row[i] = Condition{Reads: r, Sites: 1, Std: math.NaN()}
	}
	return row
}

// NewTable validates and copies the given regions and rows into a Table.
// names may be nil, in which case conditions are named c0, c1, ...
// condReads may be nil, in which case the library size of each condition is
// the sum of its reads over all regions.
func NewTable(names []string, regions []Region, rows [][]Condition, condReads []int64) (*Table, error) {
	if len(regions) == 0 {
		return nil, errors.E(errors.Invalid, "region.NewTable: table must contain at least one region")
	}
	if len(regions) != len(rows) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("region.NewTable: %d regions but %d count rows", len(regions), len(rows)))
	}
	nCond := len(rows[0])
	if nCond == 0 {
		return nil, errors.E(errors.Invalid, "region.NewTable: regions must have at least one condition")
	}
	if names == nil {
		names = make([]string, nCond)
		for i := range names {
			names[i] = fmt.Sprintf("c%d", i)
		}
	}
	if len(names) != nCond {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("region.NewTable: %d condition names for %d conditions", len(names), nCond))
	}
	t := &Table{
		names:   append([]string(nil), names...),
		regions: make([]Region, len(regions)),
		rows:    make([][]Condition, len(rows)),
		index:   make(map[Region]int, len(regions)),
		hasStd:  true,
	}
	for i, r := range regions {
		if !r.Valid() {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("region.NewTable: region %d (%v) is empty", i, r))
		}
		if _, dup := t.index[r]; dup {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("region.NewTable: duplicate region %v", r))
		}
		if len(rows[i]) != nCond {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("region.NewTable: region %v has %d conditions, expected %d", r, len(rows[i]), nCond))
		}
		for c, cond := range rows[i] {
			if cond.Reads < 0 || cond.Sites < 0 {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("region.NewTable: region %v condition %s has negative counts", r, names[c]))
			}
			if !cond.HasStd() {
				t.hasStd = false
			} else if cond.Std < 0 {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("region.NewTable: region %v condition %s has negative std", r, names[c]))
			}
		}
		t.regions[i] = r
		t.rows[i] = append([]Condition(nil), rows[i]...)
		t.index[r] = i
	}
	if condReads == nil {
		t.condReads = make([]int64, nCond)
		for _, row := range t.rows {
			for c, cond := range row {
				t.condReads[c] += cond.Reads
			}
		}
	} else {
		if len(condReads) != nCond {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("region.NewTable: %d library sizes for %d conditions", len(condReads), nCond))
		}
		for c, n := range condReads {
			if n < 0 {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("region.NewTable: negative library size for condition %s", names[c]))
			}
		}
		t.condReads = append([]int64(nil), condReads...)
	}
	return t, nil
}

// Len returns the number of regions.
func (t *Table) Len() int { return len(t.regions) }

// NConditions returns the number of conditions per region.
func (t *Table) NConditions() int { return len(t.names) }

// ConditionNames returns a copy of the condition names, in table order.
func (t *Table) ConditionNames() []string { return append([]string(nil), t.names...) }

// Region returns the i'th region.
func (t *Table) Region(i int) Region { return t.regions[i] }

// Regions returns a copy of all regions, in table order.
func (t *Table) Regions() []Region { return append([]Region(nil), t.regions...) }

// Row returns a copy of the conditions of the i'th region.
func (t *Table) Row(i int) []Condition { return append([]Condition(nil), t.rows[i]...) }

// CondReads returns the library size of condition c.
func (t *Table) CondReads(c int) int64 { return t.condReads[c] }

// HasStd reports whether every condition of every region has a known std.
func (t *Table) HasStd() bool { return t.hasStd }

// Index returns the position of r in the table, or -1.
func (t *Table) Index(r Region) int {
	if i, ok := t.index[r]; ok {
		return i
	}
	return -1
}

// Masker is implemented by interval sets which can tell whether a region
// overlaps them.
type Masker interface {
	Intersects(chrom string, start, end int64) bool
}

// Mask returns a new table restricted to the regions which overlap keep (if
// non-nil) and do not overlap exclude (if non-nil).  Library sizes are
// carried over from t, so normalization is unaffected by masking.
func (t *Table) Mask(keep, exclude Masker) (*Table, error) {
	var (
		regions []Region
		rows    [][]Condition
	)
	for i, r := range t.regions {
		if keep != nil && !keep.Intersects(r.Chrom, r.Start, r.End) {
			continue
		}
		if exclude != nil && exclude.Intersects(r.Chrom, r.Start, r.End) {
			continue
		}
		regions = append(regions, r)
		rows = append(rows, t.rows[i])
	}
	log.Printf("region.Mask: kept %d of %d region(s)", len(regions), len(t.regions))
	return NewTable(t.names, regions, rows, t.condReads)
}

// Builder accumulates a table one (region, condition) cell at a time, which
// is the shape of long-format count files.  Conditions are numbered in
// first-seen order.
type Builder struct {
	names     []string
	condIndex map[string]int
	regions   []Region
	regIndex  map[Region]int
	cells     []map[int]Condition
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		condIndex: map[string]int{},
		regIndex:  map[Region]int{},
	}
}

// Add records the statistics of region r under condition cond.  Adding the
// same cell twice is an error.
func (b *Builder) Add(r Region, cond string, c Condition) error {
	ci, ok := b.condIndex[cond]
	if !ok {
		ci = len(b.names)
		b.condIndex[cond] = ci
		b.names = append(b.names, cond)
	}
	ri, ok := b.regIndex[r]
	if !ok {
		ri = len(b.regions)
		b.regIndex[r] = ri
		b.regions = append(b.regions, r)
		b.cells = append(b.cells, map[int]Condition{})
	}
	if _, dup := b.cells[ri][ci]; dup {
		return errors.E(errors.Invalid, fmt.Sprintf("region.Builder: duplicate entry for region %v condition %s", r, cond))
	}
	b.cells[ri][ci] = c
	return nil
}

// Build returns the table.  Every region must have an entry for every
// condition.  condReads is passed through to NewTable.
func (b *Builder) Build(condReads []int64) (*Table, error) {
	rows := make([][]Condition, len(b.regions))
	for ri, cells := range b.cells {
		if len(cells) != len(b.names) {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("region.Builder: region %v has %d of %d conditions", b.regions[ri], len(cells), len(b.names)))
		}
		row := make([]Condition, len(b.names))
		for ci, c := range cells {
			row[ci] = c
		}
		rows[ri] = row
	}
	return NewTable(b.names, b.regions, rows, condReads)
}
