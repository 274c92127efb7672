// Package pool recycles the roaring bitmaps used to record which values a
// consumer has popped.
package pool

import (
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
)

// BitmapPool hands out empty bitmaps and takes them back cleared.
type BitmapPool struct {
	pool   sync.Pool
	gets   atomic.Int64
	misses atomic.Int64
}

// NewBitmapPool creates an empty pool.
func NewBitmapPool() *BitmapPool {
	p := &BitmapPool{}
	p.pool.New = func() any {
		p.misses.Add(1)
		return roaring.New()
	}
	return p
}

var globalBitmapPool = NewBitmapPool()

// GetBitmap retrieves an empty bitmap from the global pool.
func GetBitmap() *roaring.Bitmap { return globalBitmapPool.Get() }

// PutBitmap clears bm and returns it to the global pool.
func PutBitmap(bm *roaring.Bitmap) { globalBitmapPool.Put(bm) }

// GlobalStats reports Stats of the global pool.
func GlobalStats() (gets, misses int64) { return globalBitmapPool.Stats() }

// Get retrieves an empty bitmap.
func (p *BitmapPool) Get() *roaring.Bitmap {
	p.gets.Add(1)
	return p.pool.Get().(*roaring.Bitmap)
}

// Put clears bm and returns it to the pool. A nil bm is ignored.
func (p *BitmapPool) Put(bm *roaring.Bitmap) {
	if bm == nil {
		return
	}
	bm.Clear()
	p.pool.Put(bm)
}

// Overlap returns the number of values present in more than one of sets.
func Overlap(sets ...*roaring.Bitmap) uint64 {
	var n uint64
	for i := range sets {
		for j := i + 1; j < len(sets); j++ {
			n += sets[i].AndCardinality(sets[j])
		}
	}
	return n
}

// Stats reports how many bitmaps were requested and how many had to be created.
func (p *BitmapPool) Stats() (gets, misses int64) {
	return p.gets.Load(), p.misses.Load()
}
