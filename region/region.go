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

// Package region holds the immutable per-region, per-condition read count
// table that every centrality computation starts from.
package region

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// Region is a 0-based half-open genomic interval [Start, End) on Chrom.
type Region struct {
	Chrom      string
	Start, End int64
}

// String renders the region as chrom:start-end, with the 0-based start.  This
// is the label format used by rank tables.
func (r Region) String() string {
	return r.Chrom + ":" + strconv.FormatInt(r.Start, 10) + "-" + strconv.FormatInt(r.End, 10)
}

// Valid reports whether the region is non-empty and has a chromosome name.
func (r Region) Valid() bool {
	return r.Chrom != "" && r.Start >= 0 && r.Start < r.End
}

// Less orders regions by chromosome name, then start, then end.
func (r Region) Less(o Region) bool {
	if r.Chrom != o.Chrom {
		return r.Chrom < o.Chrom
	}
	if r.Start != o.Start {
		return r.Start < o.Start
	}
	return r.End < o.End
}

// ParseLabel is the inverse of Region.String.  The chromosome name may itself
// contain ':' characters; only the last one separates the coordinates.
func ParseLabel(label string) (Region, error) {
	colonPos := strings.LastIndexByte(label, ':')
	if colonPos <= 0 {
		return Region{}, errors.E(errors.Invalid, fmt.Sprintf("region.ParseLabel: %q is not of the form chrom:start-end", label))
	}
	rangeStr := label[colonPos+1:]
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		return Region{}, errors.E(errors.Invalid, fmt.Sprintf("region.ParseLabel: %q has no '-' in its range", label))
	}
	start, err := strconv.ParseInt(rangeStr[:dashPos], 10, 64)
	if err != nil {
		return Region{}, errors.E(errors.Invalid, err, "region.ParseLabel:", label)
	}
	end, err := strconv.ParseInt(rangeStr[dashPos+1:], 10, 64)
	if err != nil {
		return Region{}, errors.E(errors.Invalid, err, "region.ParseLabel:", label)
	}
	r := Region{Chrom: label[:colonPos], Start: start, End: end}
	if !r.Valid() {
		return Region{}, errors.E(errors.Invalid, fmt.Sprintf("region.ParseLabel: %q is empty or negative", label))
	}
	return r, nil
}

// Condition contains the statistics of one region under one experimental
// condition.
type Condition struct {
	// Reads is the number of reads over all restriction sites of the region.
	Reads int64
	// Sites is the number of restriction sites in the region.  Zero is treated
	// as one, so tables without site information can leave it unset.
	Sites int64
	// Std is the standard deviation of per-site read counts, or NaN if
	// unknown.
	Std float64
}

// NSites returns Sites, with zero mapped to one.
func (c Condition) NSites() int64 {
	if c.Sites <= 0 {
		return 1
	}
	return c.Sites
}

// Mean returns the mean number of reads per restriction site.
func (c Condition) Mean() float64 {
	return float64(c.Reads) / float64(c.NSites())
}

// HasStd reports whether Std is known.
func (c Condition) HasStd() bool {
	return !math.IsNaN(c.Std)
}
