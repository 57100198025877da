// Copyright (C) The bartseq-count Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package bartseq

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
)

type aggregatecmd struct {
	ampliconsFilename string
	outputDir         string
	numpy             bool
	threads           int
}

func (cmd *aggregatecmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&cmd.ampliconsFilename, "amplicons", "", "amplicon reference `file` (fasta or one id per line)")
	flags.StringVar(&cmd.outputDir, "output-dir", ".", "output `directory` for matrix tables and heatmaps")
	flags.BoolVar(&cmd.numpy, "numpy", false, "also write each matrix as .npy")
	flags.IntVar(&cmd.threads, "threads", runtime.NumCPU(), "number of count tables to load concurrently")
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if cmd.ampliconsFilename == "" {
		err = errors.New("cannot aggregate without -amplicons argument")
		return 2
	} else if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	lvl, err := log.ParseLevel(*loglevel)
	if err != nil {
		return 2
	}
	log.SetLevel(lvl)

	err = cmd.aggregate(flags.Args())
	if err != nil {
		return 1
	}
	return 0
}

func (cmd *aggregatecmd) aggregate(inputs []string) error {
	amps, err := loadAmpliconList(cmd.ampliconsFilename)
	if err != nil {
		return err
	}

	// Concatenate all libraries' rows. Library identity is dropped
	// here; same-key rows from different libraries stay separate
	// entries and are summed by the pivot.
	var mtx sync.Mutex
	var rows []countRow
	throttle := throttle{Max: cmd.threads}
	for _, input := range inputs {
		input := input
		throttle.Go(func() error {
			rdr, err := openInput(input)
			if err != nil {
				return err
			}
			defer rdr.Close()
			loaded, err := readCountRows(input, rdr)
			if err != nil {
				return err
			}
			log.Printf("%s: %d rows", input, len(loaded))
			mtx.Lock()
			rows = append(rows, loaded...)
			mtx.Unlock()
			return nil
		})
	}
	if err := throttle.Wait(); err != nil {
		return err
	}
	log.Printf("loaded %d rows from %d count tables", len(rows), len(inputs))

	err = os.MkdirAll(cmd.outputDir, 0777)
	if err != nil {
		return err
	}
	for _, amp := range amps {
		for _, variant := range []struct {
			suffix     string
			usefulOnly bool
		}{
			{suffix: "-all", usefulOnly: false},
			{suffix: "", usefulOnly: true},
		} {
			m := pivot(rows, amp, variant.usefulOnly)
			base := filepath.Join(cmd.outputDir, amp+variant.suffix)
			err = emitMatrixTable(base+".tsv", m)
			if err != nil {
				return err
			}
			err = emitHeatmap(base+".svg", m)
			if err != nil {
				return err
			}
			if cmd.numpy {
				err = emitMatrixNumpy(base+".npy", m)
				if err != nil {
					return err
				}
			}
			log.Debugf("%s: %dx%d matrix", base, len(m.rowNames), len(m.colNames))
		}
	}
	return nil
}

// useful encodes the convention that left-mate barcodes come from an
// L-prefixed pool and right-mate barcodes from an R-prefixed pool. It
// tests the stored (canonical) pair order, not mate provenance, so a
// pair whose R-pool member sorts before its L-pool member is never
// useful.
func (r countRow) useful() bool {
	return strings.HasPrefix(r.bcL, "L") && strings.HasPrefix(r.bcR, "R")
}

// pivotMatrix is one amplicon's (bc_l, bc_r) count matrix. cells is
// nil when no rows matched.
type pivotMatrix struct {
	rowNames []string
	colNames []string
	cells    *mat.Dense
}

// pivot builds the (bc_l, bc_r) matrix for one amplicon from the
// concatenated row collection. Duplicate (bc_l, bc_r) entries (from
// different libraries) are summed. Axes cover the barcodes present in
// the matching rows, sorted.
func pivot(rows []countRow, amp string, usefulOnly bool) *pivotMatrix {
	match := func(r countRow) bool {
		return r.amp == amp && (!usefulOnly || r.useful())
	}
	rowSet := map[string]bool{}
	colSet := map[string]bool{}
	for _, r := range rows {
		if match(r) {
			rowSet[r.bcL] = true
			colSet[r.bcR] = true
		}
	}
	m := &pivotMatrix{rowNames: sortedKeys(rowSet), colNames: sortedKeys(colSet)}
	if len(m.rowNames) == 0 || len(m.colNames) == 0 {
		return m
	}
	rowIdx := make(map[string]int, len(m.rowNames))
	for i, name := range m.rowNames {
		rowIdx[name] = i
	}
	colIdx := make(map[string]int, len(m.colNames))
	for j, name := range m.colNames {
		colIdx[name] = j
	}
	m.cells = mat.NewDense(len(m.rowNames), len(m.colNames), nil)
	for _, r := range rows {
		if match(r) {
			i, j := rowIdx[r.bcL], colIdx[r.bcR]
			m.cells.Set(i, j, m.cells.At(i, j)+float64(r.count))
		}
	}
	return m
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
