// Copyright (C) The bartseq-count Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package bartseq

import (
	"flag"
)

// batchArgs lets an external scheduler shard a library list across
// multiple invocations: each invocation processes only its batch.
type batchArgs struct {
	batch   int
	batches int
}

func (b *batchArgs) Flags(flags *flag.FlagSet) {
	flags.IntVar(&b.batches, "batches", 1, "number of batches")
	flags.IntVar(&b.batch, "batch", -1, "only do `N`th batch (-1 = all)")
}

// Slice returns the subset of in that belongs to the selected batch.
func (b *batchArgs) Slice(in []string) []string {
	if b.batches == 0 || b.batch < 0 {
		return in
	}
	batchsize := (len(in) + b.batches - 1) / b.batches
	out := in[batchsize*b.batch:]
	if len(out) > batchsize {
		out = out[:batchsize]
	}
	return out
}
