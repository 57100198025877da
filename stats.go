// Copyright (C) The bartseq-count Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package bartseq

import (
	"encoding/json"
	"fmt"
	"os"
)

// readExpectedTotal reads the declared read-pair total from a tagger
// stats summary, a JSON document of counters like {"n_reads": 100000,
// "n_regular": 98765, ...}. Older tagger versions omit n_reads, in
// which case n_regular (reads carrying a usable barcode) is the best
// available bound.
func readExpectedTotal(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var summary struct {
		NReads   int64 `json:"n_reads"`
		NRegular int64 `json:"n_regular"`
	}
	err = json.NewDecoder(f).Decode(&summary)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if summary.NReads > 0 {
		return summary.NReads, nil
	}
	return summary.NRegular, nil
}
