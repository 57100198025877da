// Copyright (C) The bartseq-count Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package bartseq

import (
	"bytes"
	"io/ioutil"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"gopkg.in/check.v1"
)

type aggregateSuite struct{}

var _ = check.Suite(&aggregateSuite{})

func checkTextEquals(c *check.C, got, want string) {
	if got != want {
		dmp := diffmatchpatch.New()
		c.Log(dmp.DiffPrettyText(dmp.DiffMain(want, got, true)))
	}
	c.Check(got, check.Equals, want)
}

func (s *aggregateSuite) TestPivotSummation(c *check.C) {
	// same key contributed by two libraries: the pivot sums, it
	// does not overwrite
	rows := []countRow{
		{bcL: "L1", bcR: "R1", amp: "ampA", count: 2},
		{bcL: "L1", bcR: "R1", amp: "ampA", count: 2},
	}
	m := pivot(rows, "ampA", false)
	c.Assert(m.rowNames, check.DeepEquals, []string{"L1"})
	c.Assert(m.colNames, check.DeepEquals, []string{"R1"})
	c.Check(m.cells.At(0, 0), check.Equals, 4.0)
}

func (s *aggregateSuite) TestUsefulPredicate(c *check.C) {
	c.Check(countRow{bcL: "L7", bcR: "R3"}.useful(), check.Equals, true)
	// stored in literal R/L column order: not useful, because the
	// predicate keys off the stored (sorted) positions rather than
	// barcode pool provenance
	c.Check(countRow{bcL: "R3", bcR: "L7"}.useful(), check.Equals, false)
	c.Check(countRow{bcL: "L1", bcR: "L2"}.useful(), check.Equals, false)
	c.Check(countRow{bcL: "R1", bcR: "R2"}.useful(), check.Equals, false)
}

func (s *aggregateSuite) TestUsefulPivotFiltersStoredOrder(c *check.C) {
	rows := []countRow{
		{bcL: "R3", bcR: "L7", amp: "ampA", count: 9},
		{bcL: "L7", bcR: "R3", amp: "ampA", count: 1},
	}
	all := pivot(rows, "ampA", false)
	c.Check(all.rowNames, check.DeepEquals, []string{"L7", "R3"})
	useful := pivot(rows, "ampA", true)
	c.Assert(useful.rowNames, check.DeepEquals, []string{"L7"})
	c.Assert(useful.colNames, check.DeepEquals, []string{"R3"})
	c.Check(useful.cells.At(0, 0), check.Equals, 1.0)
}

func (s *aggregateSuite) TestMissingAmpliconIsEmptyMatrix(c *check.C) {
	rows := []countRow{{bcL: "L1", bcR: "R1", amp: "ampA", count: 2}}
	m := pivot(rows, "ampZ", false)
	c.Check(m.rowNames, check.HasLen, 0)
	c.Check(m.colNames, check.HasLen, 0)
	c.Check(m.cells, check.IsNil)

	tmpdir := c.MkDir()
	c.Check(emitMatrixTable(tmpdir+"/ampZ.tsv", m), check.IsNil)
	c.Check(emitHeatmap(tmpdir+"/ampZ.svg", m), check.IsNil)
	buf, err := ioutil.ReadFile(tmpdir + "/ampZ.svg")
	c.Assert(err, check.IsNil)
	c.Check(strings.Contains(string(buf), "<svg"), check.Equals, true)
}

func (s *aggregateSuite) TestMatrixTableOutput(c *check.C) {
	rows := []countRow{
		{bcL: "L2", bcR: "R2", amp: "one-mapped", count: 1},
		{bcL: "L7", bcR: "R3", amp: "one-mapped", count: 1},
	}
	m := pivot(rows, "one-mapped", false)
	var buf bytes.Buffer
	c.Assert(m.writeTable(&buf), check.IsNil)
	checkTextEquals(c, buf.String(), ""+
		"\tR2\tR3\n"+
		"L2\t1\t0\n"+
		"L7\t0\t1\n")
}

func (s *aggregateSuite) TestLoadAmpliconListPlain(c *check.C) {
	path := c.MkDir() + "/amplicons.txt"
	err := ioutil.WriteFile(path, []byte("ampA\nampB\n\nampA\n"), 0644)
	c.Assert(err, check.IsNil)
	amps, err := loadAmpliconList(path)
	c.Assert(err, check.IsNil)
	c.Check(amps, check.DeepEquals, []string{"ampA", "ampB", "unmapped", "one-mapped"})
}

func (s *aggregateSuite) TestLoadAmpliconListFasta(c *check.C) {
	amps, err := loadAmpliconList("testdata/amplicons.fasta")
	c.Assert(err, check.IsNil)
	c.Check(amps, check.DeepEquals, []string{"ampA", "ampB", "unmapped", "one-mapped"})
}
