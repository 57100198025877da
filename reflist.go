// Copyright (C) The bartseq-count Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package bartseq

import (
	"bufio"
	"fmt"
	"strings"
)

// loadAmpliconList reads the configured amplicon universe from either
// a plain one-id-per-line list or an amplicon reference fasta (ids
// taken from ">" headers, up to the first whitespace). The sentinel
// outcomes "unmapped" and "one-mapped" are appended so every outcome
// gets its matrix pair.
func loadAmpliconList(path string) ([]string, error) {
	f, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var amps []string
	seen := map[string]bool{}
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			amps = append(amps, id)
		}
	}
	fasta := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			fasta = true
			if fields := strings.Fields(line[1:]); len(fields) > 0 {
				add(fields[0])
			}
		} else if !fasta {
			add(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(amps) == 0 {
		return nil, fmt.Errorf("%s: no amplicon ids found", path)
	}
	add(outcomeUnmapped)
	add(outcomeOneMapped)
	return amps, nil
}
