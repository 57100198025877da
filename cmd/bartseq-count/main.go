// Copyright (C) The bartseq-count Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	bartseq "github.com/theislab/bartseq-count"
)

func main() {
	bartseq.Main()
}
