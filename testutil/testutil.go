package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/indexmerge/blobstore"
	"github.com/hupe1980/indexmerge/model"
	"github.com/hupe1980/indexmerge/segment"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random 64-bit value.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Bytes returns n random bytes.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	r.rand.Read(b)
	return b
}

// Values returns n byte strings drawn from a pool of distinct random
// strings of length [0, maxLen]. Picks follow a Zipf distribution, so a
// few values repeat often.
func (r *RNG) Values(n, maxLen, distinct int) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	pool := make([][]byte, distinct)
	seen := make(map[string]bool, distinct)
	for i := range pool {
		for {
			b := make([]byte, r.rand.Intn(maxLen+1))
			r.rand.Read(b)
			if !seen[string(b)] {
				seen[string(b)] = true
				pool[i] = b
				break
			}
		}
	}

	out := make([][]byte, n)
	for i := range out {
		out[i] = pool[r.zipfLocked(distinct, 1.2)]
	}
	return out
}

// Zipf returns a Zipfian-distributed value in [0, n).
// Uses Zipf's law: P(k) ∝ 1/k^s where s is the skew parameter.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

// zipfLocked is the internal implementation (caller must hold lock).
func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}

	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1
		}
	}

	return n - 1
}

// Deletions returns a bitmap of local doc ids in [0, n), each deleted with
// probability rate.
func (r *RNG) Deletions(n uint32, rate float64) *roaring.Bitmap {
	r.mu.Lock()
	defer r.mu.Unlock()

	bm := roaring.New()
	for i := range n {
		if r.rand.Float64() < rate {
			bm.Add(i)
		}
	}
	return bm
}

// MergeInfos builds a plan over segments with the given doc counts, stored
// below dir as segment_<i>, and targets below dir as target_<id>.
func MergeInfos(dir blobstore.Dir, counts []uint32, targets ...model.SegmentID) *segment.MergeInfos {
	return IndexedMergeInfos(dir, counts, nil, targets...)
}

// IndexedMergeInfos is MergeInfos with source segments that report the
// given index keys.
func IndexedMergeInfos(dir blobstore.Dir, counts []uint32, indexes []string, targets ...model.SegmentID) *segment.MergeInfos {
	segs := make([]segment.Segment, len(counts))
	for i, n := range counts {
		info := segment.Info{SegmentID: model.SegmentID(i), DocCount: n, Indexes: indexes}
		segs[i] = segment.NewDiskSegment(info, dir.Sub(fmt.Sprintf("segment_%d", i)))
	}
	metas := make([]segment.Meta, len(targets))
	for i, id := range targets {
		metas[i] = segment.Meta{ID: id, Dir: dir.Sub(fmt.Sprintf("target_%d", id))}
	}
	return segment.NewMergeInfos(segs, metas)
}
