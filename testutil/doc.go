// Package testutil provides testing utilities for merge tests.
//
// This package is intended for use in tests only. It provides a seeded
// random source for column values with controlled duplication, random
// deletion maps and helpers that assemble merge plans.
//
// # Random Values
//
//	rng := testutil.NewRNG(seed)
//	values := rng.Values(1000, 16, 50) // 1000 values over 50 distinct strings
//
// # Merge Plans
//
//	infos := testutil.MergeInfos(dir, []uint32{10, 20}, 0, 1)
package testutil
