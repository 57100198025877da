// Copyright (C) The bartseq-count Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package bartseq

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"math"
	"os"

	"github.com/kshedden/gonpy"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// writeTable emits the matrix as tab-delimited text: a header row of
// column barcodes, then one row per row-barcode.
func (m *pivotMatrix) writeTable(w io.Writer) error {
	bufw := bufio.NewWriter(w)
	for _, col := range m.colNames {
		fmt.Fprintf(bufw, "\t%s", col)
	}
	fmt.Fprintln(bufw)
	for i, row := range m.rowNames {
		fmt.Fprint(bufw, row)
		for j := range m.colNames {
			fmt.Fprintf(bufw, "\t%d", int64(m.cells.At(i, j)))
		}
		fmt.Fprintln(bufw)
	}
	return bufw.Flush()
}

func emitMatrixTable(path string, m *pivotMatrix) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
	if err != nil {
		return err
	}
	err = m.writeTable(f)
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func emitMatrixNumpy(path string, m *pivotMatrix) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
	if err != nil {
		return err
	}
	bufw := bufio.NewWriter(f)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err == nil {
		npw.Shape = []int{len(m.rowNames), len(m.colNames)}
		data := make([]float64, 0, len(m.rowNames)*len(m.colNames))
		for i := range m.rowNames {
			for j := range m.colNames {
				data = append(data, m.cells.At(i, j))
			}
		}
		err = npw.WriteFloat64(data)
	}
	if err == nil {
		err = bufw.Flush()
	}
	if err2 := f.Close(); err == nil {
		err = err2
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// logGrid presents a pivot matrix to the heatmap plotter with every
// cell transformed to log(1+v), so a few very large counts don't
// flatten the rest of the color range and zero cells stay zero.
type logGrid struct {
	m *pivotMatrix
}

func (g logGrid) Dims() (c, r int) {
	rr, cc := g.m.cells.Dims()
	return cc, rr
}

func (g logGrid) Z(c, r int) float64 { return math.Log1p(g.m.cells.At(r, c)) }
func (g logGrid) X(c int) float64    { return float64(c) }
func (g logGrid) Y(r int) float64    { return float64(r) }

// emitHeatmap renders the log1p-transformed matrix as an SVG heatmap
// with no axes, transparent background, and no padding around the
// grid. An empty matrix yields an empty (but valid) image.
func emitHeatmap(path string, m *pivotMatrix) error {
	p, err := plot.New()
	if err != nil {
		return err
	}
	p.HideAxes()
	p.BackgroundColor = color.Transparent
	p.X.Padding, p.Y.Padding = 0, 0
	if m.cells != nil {
		hm := plotter.NewHeatMap(logGrid{m}, palette.Heat(12, 1))
		// color scale anchored at zero; an all-zero matrix must
		// not divide by a zero range
		hm.Min = 0
		if hm.Max <= 0 {
			hm.Max = 1
		}
		p.Add(hm)
	}
	width := vg.Points(math.Max(float64(len(m.colNames)), 1) * 12)
	height := vg.Points(math.Max(float64(len(m.rowNames)), 1) * 12)
	err = p.Save(width, height, path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
