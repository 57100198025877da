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
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

// ErrStreamLengthMismatch means the four per-read streams of one
// library disagree on length. The streams are strictly positionally
// aligned (line i in every stream belongs to read pair i), so a
// mismatch means the inputs do not belong together and no output can
// be trusted.
var ErrStreamLengthMismatch = errors.New("input streams have different lengths")

// countPairs advances all four cursors in lock-step, one read pair per
// iteration, and accumulates (barcode pair, amplicon outcome) counts.
// expectedTotal is a progress bound from the tagger's stats summary (0
// = unknown); disagreement with the actual pair count is reported but
// not fatal.
func countPairs(label string, tags1 *tagReader, maps1 *mapReader, tags2 *tagReader, maps2 *mapReader, expectedTotal int64) (countTable, int64, error) {
	counts := countTable{}
	var done int64
	start := time.Now()
	for {
		bc1, errT1 := tags1.Next()
		bc2, errT2 := tags2.Next()
		amp1, errM1 := maps1.Next()
		amp2, errM2 := maps2.Next()
		eof := 0
		for _, err := range []error{errT1, errT2, errM1, errM2} {
			if err == io.EOF {
				eof++
			} else if err != nil {
				return nil, done, err
			}
		}
		if eof == 4 {
			break
		} else if eof > 0 {
			return nil, done, fmt.Errorf("%s: %w after %d read pairs", label, ErrStreamLengthMismatch, done)
		}
		counts.add(bc1, bc2, amp1, amp2)
		done++
		if done%1000000 == 0 {
			if expectedTotal > 0 {
				elapsed := time.Since(start)
				eta := time.Duration(float64(elapsed) * float64(expectedTotal-done) / float64(done))
				log.Printf("%s: progress %d/%d, eta %v", label, done, expectedTotal, eta)
			} else {
				log.Printf("%s: progress %d", label, done)
			}
		}
	}
	if expectedTotal > 0 && expectedTotal != done {
		log.Warnf("%s: counted %d read pairs, stats summary declared %d", label, done, expectedTotal)
	}
	return counts, done, nil
}

// libraryInputs names the four input streams of one library, plus its
// optional stats summary and the output path for its count table.
type libraryInputs struct {
	label      string
	tagged1    string
	tagged2    string
	amplicons1 string
	amplicons2 string
	statsFile  string
	outputFile string
}

type countcmd struct {
	tagged1    string
	tagged2    string
	map1       string
	map2       string
	statsFile  string
	outputFile string
	outputDir  string
	threads    int
	batchArgs
}

func (cmd *countcmd) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&cmd.tagged1, "tagged1", "", "tagged-read fastq `file` for read 1 (single-library mode)")
	flags.StringVar(&cmd.tagged2, "tagged2", "", "tagged-read fastq `file` for read 2")
	flags.StringVar(&cmd.map1, "map1", "", "amplicon assignment `file` for read 1")
	flags.StringVar(&cmd.map2, "map2", "", "amplicon assignment `file` for read 2")
	flags.StringVar(&cmd.statsFile, "stats", "", "tagger stats summary `file` (progress bound only)")
	flags.StringVar(&cmd.outputFile, "o", "", "output count table `file` (single-library mode)")
	flags.StringVar(&cmd.outputDir, "output-dir", "", "write per-library count tables to `directory` (default: next to inputs)")
	flags.IntVar(&cmd.threads, "threads", runtime.NumCPU(), "number of libraries to count concurrently")
	cmd.batchArgs.Flags(flags)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	loglevel := flags.String("loglevel", "info", "logging threshold (trace, debug, info, warn, error, fatal, or panic)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
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

	if cmd.tagged1 != "" || cmd.tagged2 != "" || cmd.map1 != "" || cmd.map2 != "" {
		if cmd.tagged1 == "" || cmd.tagged2 == "" || cmd.map1 == "" || cmd.map2 == "" {
			err = errors.New("single-library mode needs all of -tagged1 -tagged2 -map1 -map2")
			return 2
		} else if flags.NArg() > 0 {
			err = fmt.Errorf("cannot mix explicit input flags with library prefix arguments %q", flags.Args())
			return 2
		} else if cmd.outputFile == "" {
			err = errors.New("single-library mode needs -o")
			return 2
		}
		err = countLibrary(libraryInputs{
			label:      cmd.outputFile,
			tagged1:    cmd.tagged1,
			tagged2:    cmd.tagged2,
			amplicons1: cmd.map1,
			amplicons2: cmd.map2,
			statsFile:  cmd.statsFile,
			outputFile: cmd.outputFile,
		})
		if err != nil {
			return 1
		}
		return 0
	}

	if flags.NArg() == 0 {
		flags.Usage()
		return 2
	}
	prefixes := cmd.batchArgs.Slice(flags.Args())
	libs := make([]libraryInputs, 0, len(prefixes))
	for _, prefix := range prefixes {
		var lib libraryInputs
		lib, err = findLibraryInputs(prefix, cmd.outputDir)
		if err != nil {
			return 1
		}
		libs = append(libs, lib)
	}
	throttle := throttle{Max: cmd.threads}
	for _, lib := range libs {
		lib := lib
		throttle.Go(func() error {
			return countLibrary(lib)
		})
	}
	err = throttle.Wait()
	if err != nil {
		return 1
	}
	return 0
}

// input filename conventions for library-prefix mode (tagger and
// aligner outputs, optionally gzipped)
var librarySuffixes = struct {
	tagged1, tagged2       []string
	amplicons1, amplicons2 []string
	stats                  []string
}{
	tagged1:    []string{"_R1.fastq.gz", "_R1.fastq"},
	tagged2:    []string{"_R2.fastq.gz", "_R2.fastq"},
	amplicons1: []string{"_R1.amplicons.txt.gz", "_R1.amplicons.txt"},
	amplicons2: []string{"_R2.amplicons.txt.gz", "_R2.amplicons.txt"},
	stats:      []string{"_stats.json"},
}

func findFirst(prefix string, suffixes []string) (string, error) {
	for _, suffix := range suffixes {
		path := prefix + suffix
		if _, err := os.Stat(path); err == nil {
			return path, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}
	}
	return "", fmt.Errorf("%s: no input file with suffix %v", prefix, suffixes)
}

func findLibraryInputs(prefix, outputDir string) (libraryInputs, error) {
	lib := libraryInputs{label: filepath.Base(prefix)}
	var err error
	if lib.tagged1, err = findFirst(prefix, librarySuffixes.tagged1); err != nil {
		return lib, err
	}
	if lib.tagged2, err = findFirst(prefix, librarySuffixes.tagged2); err != nil {
		return lib, err
	}
	if lib.amplicons1, err = findFirst(prefix, librarySuffixes.amplicons1); err != nil {
		return lib, err
	}
	if lib.amplicons2, err = findFirst(prefix, librarySuffixes.amplicons2); err != nil {
		return lib, err
	}
	// stats summary is optional
	if stats, err := findFirst(prefix, librarySuffixes.stats); err == nil {
		lib.statsFile = stats
	} else {
		log.Debugf("%s: no stats summary: %s", lib.label, err)
	}
	lib.outputFile = prefix + ".counts.tsv"
	if outputDir != "" {
		lib.outputFile = filepath.Join(outputDir, filepath.Base(prefix)+".counts.tsv")
	}
	return lib, nil
}

// countLibrary runs one library's counting end to end: open the four
// streams, count in lock-step, write the count table. A fatal error
// leaves no partial output behind.
func countLibrary(lib libraryInputs) error {
	log.Printf("%s: counting starting", lib.label)
	var inputs []io.ReadCloser
	defer func() {
		for _, in := range inputs {
			in.Close()
		}
	}()
	open := func(path string) (io.ReadCloser, error) {
		rdr, err := openInput(path)
		if err == nil {
			inputs = append(inputs, rdr)
		}
		return rdr, err
	}
	tagged1, err := open(lib.tagged1)
	if err != nil {
		return err
	}
	tagged2, err := open(lib.tagged2)
	if err != nil {
		return err
	}
	amplicons1, err := open(lib.amplicons1)
	if err != nil {
		return err
	}
	amplicons2, err := open(lib.amplicons2)
	if err != nil {
		return err
	}

	var expected int64
	if lib.statsFile != "" {
		expected, err = readExpectedTotal(lib.statsFile)
		if err != nil {
			// progress bound only, not worth failing the run
			log.Warnf("%s: ignoring stats summary: %s", lib.label, err)
			expected = 0
		}
	}

	counts, done, err := countPairs(lib.label,
		newTagReader(lib.tagged1, tagged1),
		newMapReader(lib.amplicons1, amplicons1),
		newTagReader(lib.tagged2, tagged2),
		newMapReader(lib.amplicons2, amplicons2),
		expected)
	if err != nil {
		return err
	}

	err = writeCountTableFile(lib.outputFile, counts)
	if err != nil {
		return err
	}
	log.Printf("%s: %d read pairs, %d distinct (pair, amplicon) keys", lib.label, done, len(counts))
	return nil
}

func writeCountTableFile(path string, counts countTable) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0777)
	if err != nil {
		return err
	}
	digest, err := blake2b.New256(nil)
	if err != nil {
		f.Close()
		return err
	}
	err = writeCountTable(io.MultiWriter(f, digest), counts)
	if err == nil {
		err = f.Close()
	}
	if err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("%s: %w", path, err)
	}
	log.Printf("%s: blake2b %x", path, digest.Sum(nil))
	return nil
}
