package buffer

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"

	"larch/internal/base"
	"larch/internal/storage"
)

// Options configures buffer pool behavior.
type Options struct {
	victimCache int
	logger      base.Logger
}

// Option configures pool options using the functional options pattern.
type Option func(*Options)

// WithVictimCache keeps up to capacity recently evicted pages in a
// secondary cache so re-fetching them skips the disk read. Zero
// disables the cache.
func WithVictimCache(capacity int) Option {
	return func(opts *Options) {
		opts.victimCache = capacity
	}
}

// WithLogger sets the pool's logger.
func WithLogger(l base.Logger) Option {
	return func(opts *Options) {
		opts.logger = l
	}
}

// Stats holds buffer pool counters.
type Stats struct {
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	VictimHits uint64
}

// Pool caches a fixed number of page frames over a disk manager.
// Pages are pinned while in use; unpinned pages stay resident until a
// miss needs their frame, chosen by LRU over unpin order. A single
// mutex guards the page table, free list, and pin counts. Disk I/O
// may happen while it is held.
type Pool struct {
	mu        sync.Mutex
	frames    []base.Page
	pageTable map[base.PageID]FrameID
	freeList  []FrameID
	replacer  *LRUReplacer
	disk      storage.DiskManager
	victims   *freelru.LRU[base.PageID, *[base.PageSize]byte]
	log       base.Logger
	closed    bool

	hits       atomic.Uint64
	misses     atomic.Uint64
	evictions  atomic.Uint64
	victimHits atomic.Uint64
}

var _ base.PageFetcher = (*Pool)(nil)

// NewPool creates a pool with size frames over disk.
func NewPool(size int, disk storage.DiskManager, opts ...Option) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size %d: must be positive", size)
	}

	options := Options{logger: base.DiscardLogger{}}
	for _, opt := range opts {
		opt(&options)
	}

	p := &Pool{
		frames:    make([]base.Page, size),
		pageTable: make(map[base.PageID]FrameID, size),
		freeList:  make([]FrameID, 0, size),
		replacer:  NewLRUReplacer(size),
		disk:      disk,
		log:       options.logger,
	}
	for i := size - 1; i >= 0; i-- {
		p.freeList = append(p.freeList, FrameID(i))
	}

	if options.victimCache > 0 {
		lru, err := freelru.New[base.PageID, *[base.PageSize]byte](
			uint32(options.victimCache), hashPageID)
		if err != nil {
			return nil, fmt.Errorf("victim cache: %w", err)
		}
		p.victims = lru
	}

	return p, nil
}

func hashPageID(id base.PageID) uint32 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return uint32(xxhash.Sum64(b[:]))
}

// FetchPage pins the page, reading it from disk on a miss. Fails with
// ErrPoolExhausted when every frame is pinned.
func (p *Pool) FetchPage(id base.PageID) (*base.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, base.ErrClosed
	}

	if fid, ok := p.pageTable[id]; ok {
		frame := &p.frames[fid]
		frame.PinCount++
		p.replacer.Pin(fid)
		p.hits.Add(1)
		return frame, nil
	}
	p.misses.Add(1)

	fid, err := p.takeFrame()
	if err != nil {
		return nil, err
	}
	frame := &p.frames[fid]

	if p.victims != nil {
		if data, ok := p.victims.Get(id); ok {
			p.victimHits.Add(1)
			*frame.Data() = *data
			p.victims.Remove(id)
		} else if err := p.disk.ReadPage(id, frame.Data()); err != nil {
			p.freeList = append(p.freeList, fid)
			return nil, err
		}
	} else if err := p.disk.ReadPage(id, frame.Data()); err != nil {
		p.freeList = append(p.freeList, fid)
		return nil, err
	}

	frame.ID = id
	frame.PinCount = 1
	frame.Dirty = false
	p.pageTable[id] = fid
	return frame, nil
}

// NewPage allocates a fresh page on disk and pins it in a zeroed
// frame.
func (p *Pool) NewPage() (*base.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, base.ErrClosed
	}

	fid, err := p.takeFrame()
	if err != nil {
		return nil, err
	}

	id, err := p.disk.AllocatePage()
	if err != nil {
		p.freeList = append(p.freeList, fid)
		return nil, err
	}

	frame := &p.frames[fid]
	frame.Reset()
	frame.ID = id
	frame.PinCount = 1
	p.pageTable[id] = fid
	if p.victims != nil {
		p.victims.Remove(id)
	}
	return frame, nil
}

// UnpinPage drops one pin and merges the dirty flag. It returns false
// only for a resident page whose pin count is already zero; unpinning
// a non-resident page reports true.
func (p *Pool) UnpinPage(id base.PageID, dirty bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[id]
	if !ok {
		return true
	}
	frame := &p.frames[fid]
	if frame.PinCount <= 0 {
		return false
	}
	frame.PinCount--
	if dirty {
		frame.Dirty = true
	}
	if frame.PinCount == 0 {
		p.replacer.Unpin(fid)
	}
	return true
}

// FlushPage writes the page to disk regardless of pin count and
// clears its dirty flag.
func (p *Pool) FlushPage(id base.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	fid, ok := p.pageTable[id]
	if !ok {
		return base.ErrPageNotFound
	}
	frame := &p.frames[fid]
	if err := p.disk.WritePage(id, frame.Data()); err != nil {
		return err
	}
	frame.Dirty = false
	return nil
}

// FlushAll writes every resident page and syncs the disk manager.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for id, fid := range p.pageTable {
		frame := &p.frames[fid]
		if err := p.disk.WritePage(id, frame.Data()); err != nil {
			return err
		}
		frame.Dirty = false
	}
	return p.disk.Sync()
}

// DeletePage evicts the page and returns its id to the disk manager.
// Deleting a pinned page fails; deleting a non-resident page only
// deallocates it.
func (p *Pool) DeletePage(id base.PageID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.victims != nil {
		p.victims.Remove(id)
	}

	fid, ok := p.pageTable[id]
	if !ok {
		_ = p.disk.DeallocatePage(id)
		return true
	}
	frame := &p.frames[fid]
	if frame.PinCount > 0 {
		return false
	}
	p.replacer.Pin(fid)
	delete(p.pageTable, id)
	frame.Reset()
	p.freeList = append(p.freeList, fid)
	_ = p.disk.DeallocatePage(id)
	return true
}

// Stats returns pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Hits:       p.hits.Load(),
		Misses:     p.misses.Load(),
		Evictions:  p.evictions.Load(),
		VictimHits: p.victimHits.Load(),
	}
}

// Size returns the number of frames.
func (p *Pool) Size() int { return len(p.frames) }

// Close flushes all pages and closes the disk manager.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.FlushAll(); err != nil {
		return err
	}

	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.disk.Close()
}

// takeFrame pops a free frame or evicts the LRU victim. Caller holds
// p.mu.
func (p *Pool) takeFrame() (FrameID, error) {
	if n := len(p.freeList); n > 0 {
		fid := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return fid, nil
	}

	fid, ok := p.replacer.Victim()
	if !ok {
		p.log.Warn("buffer pool exhausted", "frames", len(p.frames))
		return 0, base.ErrPoolExhausted
	}
	frame := &p.frames[fid]
	if frame.Dirty {
		if err := p.disk.WritePage(frame.ID, frame.Data()); err != nil {
			p.replacer.Unpin(fid)
			return 0, err
		}
		frame.Dirty = false
	}
	if p.victims != nil {
		data := new([base.PageSize]byte)
		*data = *frame.Data()
		p.victims.Add(frame.ID, data)
	}
	p.log.Debug("evicted page", "page", frame.ID)
	p.evictions.Add(1)
	delete(p.pageTable, frame.ID)
	return fid, nil
}
