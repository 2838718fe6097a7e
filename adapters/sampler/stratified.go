// Package sampler draws the reproducible per-block subset the model is fitted
// on. Raw half-hourly emission readings are heavily serially redundant;
// sampling a fixed fraction inside each 24-hour block thins the series while
// keeping temporal coverage intact.
package sampler

import (
	"math"
	"math/rand"
	"sort"

	"nh3flux/domain/observation"
	"nh3flux/internal/errors"
)

// Stratified partitions ds by time block and draws round(fraction*n) records
// per block uniformly without replacement, using the single shared rng for
// the whole call. Blocks are visited in ascending order, so the result is
// deterministic for a fixed seed and input ordering. The returned dataset is
// fresh; ds is not mutated.
func Stratified(ds observation.Dataset, fraction float64, rng *rand.Rand) (observation.Dataset, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, errors.ConfigInvalid("sampling fraction must be in (0, 1]")
	}
	if rng == nil {
		return nil, errors.InternalError("sampler requires a seeded random source")
	}

	blocks := make(map[int64][]int)
	for i, r := range ds {
		b := r.TimeBlock()
		blocks[b] = append(blocks[b], i)
	}

	keys := make([]int64, 0, len(blocks))
	for b := range blocks {
		keys = append(keys, b)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var out observation.Dataset
	for _, b := range keys {
		idx := blocks[b]
		k := int(math.Round(fraction * float64(len(idx))))
		if k == 0 {
			continue
		}
		perm := rng.Perm(len(idx))[:k]
		sort.Ints(perm)
		for _, p := range perm {
			out = append(out, ds[idx[p]])
		}
	}

	return out, nil
}

// ExpectedSize returns the deterministic sample size for the given dataset
// and fraction: the sum over blocks of round(fraction * block size).
func ExpectedSize(ds observation.Dataset, fraction float64) int {
	counts := make(map[int64]int)
	for _, r := range ds {
		counts[r.TimeBlock()]++
	}
	total := 0
	for _, n := range counts {
		total += int(math.Round(fraction * float64(n)))
	}
	return total
}
