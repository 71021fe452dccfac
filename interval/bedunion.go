package interval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/grailbio/base/log"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/klauspost/compress/gzip"
)

// getTokens identifies up to the first len(tokens) tokens from curLine,
// returning the number of tokens saved.  Any (group of) characters <= ' ' is
// treated as a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

// NewBEDOpts defines behavior of this package's BED-loading function(s).
type NewBEDOpts struct {
	// Invert causes the complement of the interval-union to be returned.  The
	// complement extends down to position -1 at the beginning of each
	// chromosome, and 2^31 - 1 at the end.  Only the chromosomes mentioned in
	// the BED are included; a single empty interval qualifies as a mention.
	Invert bool
	// OneBasedInput interprets the BED interval boundaries as one-based [start,
	// end] instead of the usual zero-based [start, end).
	OneBasedInput bool
}

// PosType is BEDUnion's coordinate type.
type PosType int32

const posTypeMax = math.MaxInt32

// searchPosType returns the index of x in a[], or the position where x would
// be inserted if x isn't in a (this could be len(a)).
func searchPosType(a []PosType, x PosType) int {
	return sort.Search(len(a), func(i int) bool { return a[i] >= x })
}

// clampPos converts a region coordinate to PosType, saturating at the
// representable range.
func clampPos(pos int64) PosType {
	switch {
	case pos < 0:
		return 0
	case pos > posTypeMax-1:
		return posTypeMax - 1
	}
	return PosType(pos)
}

// BEDUnion is a set of disjoint intervals per chromosome.  Each chromosome
// maps to a length-2N sequence, where N is the number of intervals, the
// (0-based) start of interval #k is in element [2k] and its end in element
// [2k+1], and the intervals are stored in increasing order.
//
// Queries do not modify the BEDUnion, so it can be shared across goroutines.
type BEDUnion struct {
	nameMap map[string][]PosType
}

// Chroms returns the names of the chromosomes mentioned by the interval set,
// in sorted order.
func (u *BEDUnion) Chroms() []string {
	names := make([]string, 0, len(u.nameMap))
	for name := range u.nameMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Contains checks whether the (0-based) position pos on chrom is covered.
func (u *BEDUnion) Contains(chrom string, pos int64) bool {
	chrIntervals := u.nameMap[chrom]
	if chrIntervals == nil {
		return false
	}
	return searchPosType(chrIntervals, clampPos(pos)+1)&1 == 1
}

// Intersects checks whether the 0-based half-open interval [start, end) on
// chrom overlaps the interval set.  It returns false for empty intervals.
func (u *BEDUnion) Intersects(chrom string, start, end int64) bool {
	chrIntervals := u.nameMap[chrom]
	if chrIntervals == nil || end <= start {
		return false
	}
	startPos := clampPos(start)
	limitPos := clampPos(end - 1)
	idx := searchPosType(chrIntervals, startPos+1)
	if idx&1 == 1 {
		return true
	}
	return idx != len(chrIntervals) && limitPos >= chrIntervals[idx]
}

// Entry represents a single interval, with 0-based coordinates.
type Entry struct {
	ChrName string
	Start0  PosType
	End     PosType
}

// unionBuilder merges sorted intervals into a BEDUnion.
type unionBuilder struct {
	opts         NewBEDOpts
	union        BEDUnion
	chr          string
	chrIntervals []PosType
	// prevStart and prevEnd hold the pending (not yet appended) interval, or
	// -1 if the chromosome has been mentioned without any covered base.
	prevStart, prevEnd PosType
	totBases           int
}

func newUnionBuilder(opts NewBEDOpts) *unionBuilder {
	return &unionBuilder{
		opts:  opts,
		union: BEDUnion{nameMap: make(map[string][]PosType)},
	}
}

// flush saves the intervals of the current chromosome.
func (b *unionBuilder) flush() {
	if b.chr == "" {
		return
	}
	if b.prevEnd != -1 {
		b.chrIntervals = append(b.chrIntervals, b.prevStart, b.prevEnd)
	}
	if b.opts.Invert {
		b.chrIntervals = append(b.chrIntervals, posTypeMax)
	}
	b.union.nameMap[b.chr] = b.chrIntervals
}

// add adds [start, end), which must not start before the previously added
// interval on the same chromosome.
func (b *unionBuilder) add(chr string, start, end PosType) error {
	if start < 0 {
		return fmt.Errorf("negative start coordinate %d", start)
	}
	if end < start || end >= posTypeMax {
		return fmt.Errorf("invalid coordinate pair [%d, %d)", start, end)
	}
	if chr != b.chr {
		b.flush()
		if _, found := b.union.nameMap[chr]; found {
			return fmt.Errorf("unsorted input (split chromosome %v)", chr)
		}
		b.chr = chr
		b.chrIntervals = []PosType{}
		if b.opts.Invert {
			b.chrIntervals = append(b.chrIntervals, -1)
		}
		b.prevStart, b.prevEnd = -1, -1
	}
	if end == start {
		return nil
	}
	switch {
	case b.prevEnd == -1:
		b.prevStart, b.prevEnd = start, end
		b.totBases += int(end - start)
	case start > b.prevEnd:
		// Disjoint from the pending interval, which can be saved.
		b.chrIntervals = append(b.chrIntervals, b.prevStart, b.prevEnd)
		b.prevStart, b.prevEnd = start, end
		b.totBases += int(end - start)
	case start < b.prevStart:
		return fmt.Errorf("unsorted input on %v", chr)
	case end > b.prevEnd:
		// Overlapping or touching; merge.
		b.totBases += int(end - b.prevEnd)
		b.prevEnd = end
	}
	return nil
}

func (b *unionBuilder) finish() BEDUnion {
	b.flush()
	return b.union
}

// NewBEDUnion loads just the intervals from a sorted (by first coordinate)
// interval-BED, merging touching/overlapping intervals and eliminating empty
// ones in the process.  Blank lines and "#", "track" or "browser" header
// lines are skipped.
func NewBEDUnion(reader io.Reader, opts NewBEDOpts) (BEDUnion, error) {
	var startSubtract PosType
	if opts.OneBasedInput {
		startSubtract = 1
	}
	b := newUnionBuilder(opts)
	scanner := bufio.NewScanner(reader)
	var tokens [3][]byte
	lineIdx := 0
	for scanner.Scan() {
		lineIdx++
		curLine := scanner.Bytes()
		nToken := getTokens(tokens[:], curLine)
		if nToken == 0 {
			continue
		}
		if first := gunsafe.BytesToString(tokens[0]); strings.HasPrefix(first, "#") || first == "track" || first == "browser" {
			continue
		}
		if nToken != 3 {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnion: line %d has fewer tokens than expected", lineIdx)
		}
		start, err := strconv.Atoi(gunsafe.BytesToString(tokens[1]))
		if err != nil {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnion: line %d: %v", lineIdx, err)
		}
		end, err := strconv.Atoi(gunsafe.BytesToString(tokens[2]))
		if err != nil {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnion: line %d: %v", lineIdx, err)
		}
		if start < 0 || end < 0 || end >= posTypeMax {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnion: coordinate out of range on line %d", lineIdx)
		}
		// The chromosome name must be copied, since tokens[0] refers to the
		// scanner's buffer.
		if err := b.add(string(tokens[0]), PosType(start)-startSubtract, PosType(end)); err != nil {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnion: line %d: %v", lineIdx, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return BEDUnion{}, err
	}
	log.Printf("BED loaded, %d base(s) covered.", b.totBases)
	return b.finish(), nil
}

// NewBEDUnionFromPath is a wrapper for NewBEDUnion that takes a path instead
// of an io.Reader.  Gzipped files are recognized by their extension.
func NewBEDUnionFromPath(ctx context.Context, path string, opts NewBEDOpts) (bedUnion BEDUnion, err error) {
	var infile file.File
	if infile, err = file.Open(ctx, path); err != nil {
		return
	}
	defer func() {
		if cerr := infile.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	reader := io.Reader(infile.Reader(ctx))
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		if reader, err = gzip.NewReader(reader); err != nil {
			return
		}
	}
	return NewBEDUnion(reader, opts)
}

// NewBEDUnionFromEntries initializes a BEDUnion from a []Entry sorted by start
// within each chromosome.  opts.OneBasedInput is ignored, since Start0 is
// defined to be zero-based.
func NewBEDUnionFromEntries(entries []Entry, opts NewBEDOpts) (BEDUnion, error) {
	b := newUnionBuilder(opts)
	for _, entry := range entries {
		if err := b.add(entry.ChrName, entry.Start0, entry.End); err != nil {
			return BEDUnion{}, fmt.Errorf("interval.NewBEDUnionFromEntries: %v", err)
		}
	}
	return b.finish(), nil
}

// ParseRegionString parses a region string of one of the forms
//   [contig ID]:[1-based first pos]-[last pos]
//   [contig ID]:[1-based pos]
//   [contig ID]
// returning a contig ID and 0-based interval boundaries.  The interval
// [0, posTypeMax - 1) is returned if there is no positional restriction.
func ParseRegionString(region string) (result Entry, err error) {
	if len(region) == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty region string")
		return
	}
	colonPos := strings.LastIndexByte(region, ':')
	if colonPos == -1 {
		result.ChrName = region
		result.End = posTypeMax - 1
		return
	}
	if colonPos == 0 {
		err = fmt.Errorf("interval.ParseRegionString: empty contig ID")
		return
	}
	result.ChrName = region[:colonPos]
	rangeStr := region[colonPos+1:]
	dashPos := strings.IndexByte(rangeStr, '-')
	if dashPos == -1 {
		var pos1 int64
		if pos1, err = strconv.ParseInt(rangeStr, 10, 32); err != nil {
			return
		}
		if pos1 <= 0 {
			err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", rangeStr)
			return
		}
		result.Start0 = PosType(pos1 - 1)
		result.End = PosType(pos1)
		return
	}
	var start1, end0 int
	if start1, err = strconv.Atoi(rangeStr[:dashPos]); err != nil {
		return
	}
	if start1 <= 0 {
		err = fmt.Errorf("interval.ParseRegionString: position %v in region string out of range", rangeStr[:dashPos])
		return
	}
	if end0, err = strconv.Atoi(rangeStr[dashPos+1:]); err != nil {
		return
	}
	// end0 == posTypeMax is prohibited so that the interval-array contains no
	// repeats.
	if end0 < start1 || end0 >= posTypeMax {
		err = fmt.Errorf("interval.ParseRegionString: invalid range string %v", rangeStr)
		return
	}
	result.Start0 = PosType(start1 - 1)
	result.End = PosType(end0)
	return
}

// NewBEDUnionFromRegionStrings builds a BEDUnion from region strings as
// accepted by ParseRegionString, in any order.
func NewBEDUnionFromRegionStrings(regions []string, opts NewBEDOpts) (BEDUnion, error) {
	entries := make([]Entry, 0, len(regions))
	for _, r := range regions {
		e, err := ParseRegionString(r)
		if err != nil {
			return BEDUnion{}, err
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].ChrName != entries[j].ChrName {
			return entries[i].ChrName < entries[j].ChrName
		}
		return entries[i].Start0 < entries[j].Start0
	})
	return NewBEDUnionFromEntries(entries, opts)
}
