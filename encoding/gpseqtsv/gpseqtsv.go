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

// Package gpseqtsv reads and writes the tab-separated files exchanged with
// GPSeq pipelines: long-format count tables, long-format score tables, and
// wide rank tables with one column per metric.
//
// Count table (one line per region and condition):
//
//   chrom  start  end  condition  reads  sites  std
//   chr1   0      1000000  10min  2031   12     nan
//
// Score table (one line per region and metric):
//
//   chrom  start  end  metric  score
//
// Rank table (one column per metric, row k is the region of rank k+1):
//
//   prob_2p          cor_g
//   chr3:0-1000000   chr1:0-1000000
//
// Paths ending in .gz (gzip) or .sz (framed snappy) are transparently
// (de)compressed.  Paths are opened with grailbio/base/file, so any
// registered file implementation works.
package gpseqtsv

import (
	"context"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

func isSnappy(path string) bool { return strings.HasSuffix(path, ".sz") }

// inputFile is an opened, possibly decompressed, input path.
type inputFile struct {
	f file.File
	r io.Reader
}

func openInput(ctx context.Context, path string) (*inputFile, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	in := &inputFile{f: f, r: f.Reader(ctx)}
	if isSnappy(path) {
		in.r = snappy.NewReader(in.r)
	} else if fileio.DetermineType(path) == fileio.Gzip {
		gz, err := gzip.NewReader(in.r)
		if err != nil {
			_ = f.Close(ctx)
			return nil, errors.Wrapf(err, "%s: gzip", path)
		}
		in.r = gz
	}
	return in, nil
}

func (in *inputFile) close(ctx context.Context) error {
	if gz, ok := in.r.(*gzip.Reader); ok {
		if err := gz.Close(); err != nil {
			_ = in.f.Close(ctx)
			return err
		}
	}
	return in.f.Close(ctx)
}

// outputFile is a created, possibly compressed, output path.
type outputFile struct {
	f file.File
	// compressor is nil for uncompressed output.
	compressor io.WriteCloser
	w          io.Writer
}

func createOutput(ctx context.Context, path string) (*outputFile, error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	out := &outputFile{f: f, w: f.Writer(ctx)}
	switch {
	case isSnappy(path):
		out.compressor = snappy.NewBufferedWriter(out.w)
	case fileio.DetermineType(path) == fileio.Gzip:
		out.compressor = gzip.NewWriter(out.w)
	}
	if out.compressor != nil {
		out.w = out.compressor
	}
	return out, nil
}

// close finishes the compressed stream, if any, and closes the file.  err is
// the error of the write so far; the first error is returned.
func (out *outputFile) close(ctx context.Context, err error) error {
	if out.compressor != nil {
		if e := out.compressor.Close(); e != nil && err == nil {
			err = e
		}
	}
	file.CloseAndReport(ctx, out.f, &err)
	return err
}
