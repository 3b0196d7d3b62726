package blobstore

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultCacheBlockSize is the block size used when NewCachingStore gets blockSize <= 0.
	DefaultCacheBlockSize = 64 << 10
	// DefaultCacheBlocks is the block count used when NewCachingStore gets maxBlocks <= 0.
	DefaultCacheBlocks = 1024
)

// CacheStats counts block lookups of a CachingStore.
type CacheStats struct {
	Hits   int64
	Misses int64
	Blocks int
}

// CachingStore wraps a BlobStore and caches reads in fixed-size blocks.
// It pays off for remote stores, where archive footers and slabs are read
// repeatedly by successive passes.
type CachingStore struct {
	inner     BlobStore
	blockSize int64

	mu    sync.Mutex
	lru   *lru.Cache
	gen   map[string]uint64
	stats CacheStats
}

type blockKey struct {
	name  string
	gen   uint64
	block int64
}

// NewCachingStore caches up to maxBlocks blocks of blockSize bytes read from inner.
// Non-positive values select the defaults; the cache is always bounded.
func NewCachingStore(inner BlobStore, maxBlocks int, blockSize int64) *CachingStore {
	if blockSize <= 0 {
		blockSize = DefaultCacheBlockSize
	}
	if maxBlocks <= 0 {
		maxBlocks = DefaultCacheBlocks
	}
	return &CachingStore{
		inner:     inner,
		blockSize: blockSize,
		lru:       lru.New(maxBlocks),
		gen:       make(map[string]uint64),
	}
}

// Stats returns a snapshot of the cache counters.
func (s *CachingStore) Stats() CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Blocks = s.lru.Len()
	return st
}

func (s *CachingStore) generation(name string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen[name]
}

// invalidate makes cached blocks of name unreachable; the LRU ages them out.
func (s *CachingStore) invalidate(name string) {
	s.mu.Lock()
	s.gen[name]++
	s.mu.Unlock()
}

func (s *CachingStore) get(k blockKey) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.lru.Get(k)
	if !ok {
		s.stats.Misses++
		return nil, false
	}
	s.stats.Hits++
	return v.([]byte), true
}

func (s *CachingStore) add(k blockKey, data []byte) {
	s.mu.Lock()
	s.lru.Add(k, data)
	s.mu.Unlock()
}

// Open opens a cached view of the blob.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &cachingBlob{store: s, inner: b, name: name, gen: s.generation(name)}, nil
}

// Create passes through to the inner store. Cached blocks of name are invalidated.
func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	s.invalidate(name)
	return s.inner.Create(ctx, name)
}

// Put passes through to the inner store. Cached blocks of name are invalidated.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.invalidate(name)
	return s.inner.Put(ctx, name, data)
}

// Delete passes through to the inner store. Cached blocks of name are invalidated.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.invalidate(name)
	return s.inner.Delete(ctx, name)
}

// List passes through to the inner store.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

type cachingBlob struct {
	store *CachingStore
	inner Blob
	name  string
	gen   uint64
}

func (b *cachingBlob) key(block int64) blockKey {
	return blockKey{name: b.name, gen: b.gen, block: block}
}

func (b *cachingBlob) Close() error { return b.inner.Close() }

func (b *cachingBlob) Size() int64 { return b.inner.Size() }

func (b *cachingBlob) ReadAt(p []byte, off int64) (int, error) {
	return b.ReadAtContext(context.Background(), p, off)
}

// ReadAtContext serves p from cached blocks, fetching contiguous runs of
// missing blocks with one inner read each.
func (b *cachingBlob) ReadAtContext(ctx context.Context, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("blobstore: negative offset")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	size := b.inner.Size()
	if off >= size {
		return 0, io.EOF
	}
	want := len(p)
	if rem := size - off; int64(len(p)) > rem {
		p = p[:rem]
	}
	if len(p) == 0 {
		return 0, nil
	}

	bs := b.store.blockSize
	first, last := off/bs, (off+int64(len(p))-1)/bs
	blocks := make([][]byte, last-first+1)

	var runs [][2]int64
	for blk := first; blk <= last; blk++ {
		if data, ok := b.store.get(b.key(blk)); ok {
			blocks[blk-first] = data
			continue
		}
		if n := len(runs); n > 0 && runs[n-1][1] == blk {
			runs[n-1][1]++
		} else {
			runs = append(runs, [2]int64{blk, blk + 1})
		}
	}

	if len(runs) > 0 {
		r := ReaderAt(ctx, b.inner)
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(8)
		for _, run := range runs {
			g.Go(func() error {
				start := run[0] * bs
				end := min(run[1]*bs, size)
				buf := make([]byte, end-start)
				n, err := r.ReadAt(buf, start)
				if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
					return err
				}
				for blk := run[0]; blk < run[1]; blk++ {
					lo := (blk - run[0]) * bs
					hi := min(lo+bs, int64(len(buf)))
					data := buf[lo:hi:hi]
					blocks[blk-first] = data
					b.store.add(b.key(blk), data)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return 0, err
		}
	}

	n := 0
	for i, data := range blocks {
		start := (first + int64(i)) * bs
		lo := max(start, off)
		hi := min(start+int64(len(data)), off+int64(len(p)))
		n += copy(p[lo-off:hi-off], data[lo-start:hi-start])
	}
	if n < want {
		return n, io.EOF
	}
	return n, nil
}

func (b *cachingBlob) ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	size := b.inner.Size()
	if off >= size {
		return io.NopCloser(io.MultiReader()), nil
	}
	length = min(length, size-off)
	return io.NopCloser(io.NewSectionReader(ReaderAt(ctx, b), off, length)), nil
}
