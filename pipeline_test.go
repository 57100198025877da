// Copyright (C) The bartseq-count Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package bartseq

import (
	"bytes"
	"io/ioutil"
	"os"
	"strings"

	"github.com/kshedden/gonpy"
	"gopkg.in/check.v1"
)

type pipelineSuite struct{}

var _ = check.Suite(&pipelineSuite{})

func (s *pipelineSuite) TestCountThenAggregate(c *check.C) {
	countdir := c.MkDir()
	exited := (&countcmd{}).RunCommand("count", []string{
		"-output-dir", countdir,
		"testdata/lib1", "testdata/lib2",
	}, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Assert(exited, check.Equals, 0)

	matrixdir := c.MkDir()
	exited = (&aggregatecmd{}).RunCommand("aggregate", []string{
		"-amplicons", "testdata/amplicons.fasta",
		"-output-dir", matrixdir,
		"-numpy",
		countdir + "/lib1.counts.tsv",
		countdir + "/lib2.counts.tsv",
	}, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Assert(exited, check.Equals, 0)

	// every amplicon (and sentinel outcome) gets a useful and an
	// -all variant, table and heatmap
	for _, amp := range []string{"ampA", "ampB", "unmapped", "one-mapped"} {
		for _, suffix := range []string{"", "-all"} {
			_, err := os.Stat(matrixdir + "/" + amp + suffix + ".tsv")
			c.Check(err, check.IsNil)
			_, err = os.Stat(matrixdir + "/" + amp + suffix + ".svg")
			c.Check(err, check.IsNil)
			_, err = os.Stat(matrixdir + "/" + amp + suffix + ".npy")
			c.Check(err, check.IsNil)
		}
	}

	buf, err := ioutil.ReadFile(matrixdir + "/ampA-all.tsv")
	c.Assert(err, check.IsNil)
	checkTextEquals(c, string(buf), ""+
		"\tL1\tR2\n"+
		"L1\t1\t3\n")

	buf, err = ioutil.ReadFile(matrixdir + "/ampA.tsv")
	c.Assert(err, check.IsNil)
	checkTextEquals(c, string(buf), ""+
		"\tR2\n"+
		"L1\t3\n")

	buf, err = ioutil.ReadFile(matrixdir + "/one-mapped-all.tsv")
	c.Assert(err, check.IsNil)
	checkTextEquals(c, string(buf), ""+
		"\tR2\tR3\n"+
		"L2\t1\t0\n"+
		"L7\t0\t1\n")

	// no reads mapped to ampB on both mates: empty matrix, not an
	// error
	buf, err = ioutil.ReadFile(matrixdir + "/ampB.tsv")
	c.Assert(err, check.IsNil)
	c.Check(string(buf), check.Equals, "\n")

	buf, err = ioutil.ReadFile(matrixdir + "/ampA.svg")
	c.Assert(err, check.IsNil)
	c.Check(strings.Contains(string(buf), "<svg"), check.Equals, true)

	f, err := os.Open(matrixdir + "/ampA-all.npy")
	c.Assert(err, check.IsNil)
	defer f.Close()
	npy, err := gonpy.NewReader(f)
	c.Assert(err, check.IsNil)
	c.Check(npy.Shape, check.DeepEquals, []int{1, 2})
	cells, err := npy.GetFloat64()
	c.Assert(err, check.IsNil)
	c.Check(cells, check.DeepEquals, []float64{1, 3})
}

func (s *pipelineSuite) TestAggregateMalformedTable(c *check.C) {
	tmpdir := c.MkDir()
	err := ioutil.WriteFile(tmpdir+"/bad.counts.tsv", []byte("bc_l\tbc_r\tamp\tcount\nL1\tR1\n"), 0644)
	c.Assert(err, check.IsNil)
	var stderr bytes.Buffer
	exited := (&aggregatecmd{}).RunCommand("aggregate", []string{
		"-amplicons", "testdata/amplicons.fasta",
		"-output-dir", c.MkDir(),
		tmpdir + "/bad.counts.tsv",
	}, bytes.NewReader(nil), &bytes.Buffer{}, &stderr)
	c.Check(exited, check.Equals, 1)
	c.Check(strings.Contains(stderr.String(), "malformed count table row"), check.Equals, true)
}
