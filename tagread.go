// Copyright (C) The bartseq-count Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package bartseq

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/klauspost/pgzip"
)

// ErrBarcodeTagMissing means a tagged read header has no barcode=
// marker. The upstream tagger writes one for every read, so a missing
// marker indicates the input is not a tagged-read file.
var ErrBarcodeTagMissing = errors.New("no barcode= tag in read header")

var barcodeTagRe = regexp.MustCompile(`barcode=(\w+)`)

// tagReader is a forward-only cursor over a tagged-read stream (fastq
// framing, 4 lines per record). Next returns the barcode embedded in
// each record's header line, in file order; sequence, separator, and
// quality lines are consumed and discarded. Not restartable.
type tagReader struct {
	name string
	buf  *bufio.Reader
	rec  int
}

func newTagReader(name string, rdr io.Reader) *tagReader {
	return &tagReader{name: name, buf: bufio.NewReaderSize(rdr, 1<<20)}
}

// Next returns the next record's barcode, or io.EOF after the last
// record.
func (r *tagReader) Next() (string, error) {
	header, err := r.buf.ReadString('\n')
	if err == io.EOF {
		if header == "" {
			return "", io.EOF
		}
	} else if err != nil {
		return "", fmt.Errorf("%s: %w", r.name, err)
	}
	r.rec++
	m := barcodeTagRe.FindStringSubmatch(header)
	if m == nil {
		return "", fmt.Errorf("%s: record %d: %w", r.name, r.rec, ErrBarcodeTagMissing)
	}
	for i := 0; i < 3; i++ {
		if err := r.skipLine(); err != nil {
			if err == io.EOF {
				return "", fmt.Errorf("%s: record %d: truncated fastq record", r.name, r.rec)
			}
			return "", fmt.Errorf("%s: %w", r.name, err)
		}
	}
	return m[1], nil
}

// skipLine consumes one line without retaining it.
func (r *tagReader) skipLine() error {
	for {
		buf, err := r.buf.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			continue
		} else if err == io.EOF && len(buf) > 0 {
			// final line with no trailing newline
			return nil
		}
		return err
	}
}

// mapReader is a forward-only cursor over a mapping-result stream, one
// amplicon token per line. Tokens are returned verbatim apart from
// stripped line terminators; "*" (unmapped) is interpreted downstream.
type mapReader struct {
	name string
	buf  *bufio.Reader
	line int
}

func newMapReader(name string, rdr io.Reader) *mapReader {
	return &mapReader{name: name, buf: bufio.NewReaderSize(rdr, 1<<20)}
}

// Next returns the next token, or io.EOF after the last line.
func (r *mapReader) Next() (string, error) {
	tok, err := r.buf.ReadString('\n')
	if err == io.EOF {
		if tok == "" {
			return "", io.EOF
		}
	} else if err != nil {
		return "", fmt.Errorf("%s: %w", r.name, err)
	}
	r.line++
	return strings.TrimRight(tok, "\r\n"), nil
}

type gzReadCloser struct {
	io.Reader
	gz   io.Closer
	file io.Closer
}

func (c gzReadCloser) Close() error {
	err := c.gz.Close()
	if err2 := c.file.Close(); err == nil {
		err = err2
	}
	return err
}

// openInput opens a (possibly gzip-compressed) input file for
// streaming.
func openInput(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gzr, err := pgzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: gzip: %w", path, err)
	}
	return gzReadCloser{Reader: gzr, gz: gzr, file: f}, nil
}
