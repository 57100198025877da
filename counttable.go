// Copyright (C) The bartseq-count Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package bartseq

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

const (
	unmappedToken = "*"

	// sentinel outcomes, distinct from any real amplicon id
	outcomeUnmapped  = "unmapped"
	outcomeOneMapped = "one-mapped"
)

// ErrMalformedCountRow means a persisted count table row could not be
// parsed.
var ErrMalformedCountRow = errors.New("malformed count table row")

// countKey identifies one cell of a library's count table: a canonical
// barcode pair plus the read pair's amplicon outcome.
type countKey struct {
	bcL, bcR string
	amp      string
}

type countTable map[countKey]int64

// canonicalPair normalizes an unordered barcode pair so the
// lexicographically smaller barcode comes first. Self-pairs are valid
// and stay distinct keys.
func canonicalPair(bc1, bc2 string) (bcL, bcR string) {
	if bc2 < bc1 {
		return bc2, bc1
	}
	return bc1, bc2
}

// classifyOutcome reduces the two mates' raw mapping tokens to an
// amplicon outcome: agreement yields the amplicon itself ("*"/"*"
// normalized to "unmapped"), any disagreement yields "one-mapped".
func classifyOutcome(amp1, amp2 string) string {
	if amp1 != amp2 {
		return outcomeOneMapped
	}
	if amp1 == unmappedToken {
		return outcomeUnmapped
	}
	return amp1
}

func (t countTable) add(bc1, bc2, amp1, amp2 string) {
	bcL, bcR := canonicalPair(bc1, bc2)
	t[countKey{bcL: bcL, bcR: bcR, amp: classifyOutcome(amp1, amp2)}]++
}

func (t countTable) total() int64 {
	var n int64
	for _, count := range t {
		n += count
	}
	return n
}

const countTableHeader = "bc_l\tbc_r\tamp\tcount"

// writeCountTable emits a count table as tab-delimited text, one row
// per key in sorted key order.
func writeCountTable(w io.Writer, t countTable) error {
	keys := make([]countKey, 0, len(t))
	for key := range t {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].bcL != keys[j].bcL {
			return keys[i].bcL < keys[j].bcL
		}
		if keys[i].bcR != keys[j].bcR {
			return keys[i].bcR < keys[j].bcR
		}
		return keys[i].amp < keys[j].amp
	})
	bufw := bufio.NewWriter(w)
	fmt.Fprintln(bufw, countTableHeader)
	for _, key := range keys {
		fmt.Fprintf(bufw, "%s\t%s\t%s\t%d\n", key.bcL, key.bcR, key.amp, t[key])
	}
	return bufw.Flush()
}

// countRow is one parsed row of a persisted count table. Barcodes are
// trusted to be in canonical order already (the tables are produced by
// writeCountTable) and are not re-canonicalized.
type countRow struct {
	bcL, bcR string
	amp      string
	count    int64
}

// readCountRows parses a count table written by writeCountTable. name
// is used in error messages only.
func readCountRows(name string, rdr io.Reader) ([]countRow, error) {
	var rows []countRow
	scanner := bufio.NewScanner(rdr)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if line == 1 && text == countTableHeader {
			continue
		}
		if text == "" {
			continue
		}
		fields := strings.Split(text, "\t")
		if len(fields) != 4 {
			return nil, fmt.Errorf("%s line %d: %w: got %d fields, want 4", name, line, ErrMalformedCountRow, len(fields))
		}
		count, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil || count < 0 {
			return nil, fmt.Errorf("%s line %d: %w: bad count %q", name, line, ErrMalformedCountRow, fields[3])
		}
		rows = append(rows, countRow{bcL: fields[0], bcR: fields[1], amp: fields[2], count: count})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return rows, nil
}

// readCountTable reconstructs the key→count mapping from a persisted
// count table.
func readCountTable(name string, rdr io.Reader) (countTable, error) {
	rows, err := readCountRows(name, rdr)
	if err != nil {
		return nil, err
	}
	t := countTable{}
	for _, row := range rows {
		t[countKey{bcL: row.bcL, bcR: row.bcR, amp: row.amp}] += row.count
	}
	return t, nil
}
