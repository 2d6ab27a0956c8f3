package catalog

import (
	"errors"
	"sync"

	"github.com/drgolem/diskstream/pkg/types"
)

// ErrUnknownAsset is returned when an asset id is not registered.
var ErrUnknownAsset = errors.New("unknown asset")

// AssetInfo describes where an asset's sample data lives on disk.
// The record holds only scalars and a path, so copies are cheap.
type AssetInfo struct {
	ID          uint32
	Path        string
	TotalFrames int64
	Format      types.AudioFormat
	DataOffset  int64 // byte offset of the first frame
}

// FrameSize returns the size in bytes of one interleaved frame.
func (a AssetInfo) FrameSize() int64 {
	return int64(a.Format.FrameSize())
}

// ByteOffset returns the file offset of srcFrame.
func (a AssetInfo) ByteOffset(srcFrame int64) int64 {
	return a.DataOffset + srcFrame*a.FrameSize()
}

// Catalog maps asset ids to file metadata. It is read-mostly and guarded by
// a reader/writer lock. Records are never mutated after registration.
type Catalog struct {
	mu     sync.RWMutex
	assets map[uint32]AssetInfo
	nextID uint32
}

// New creates an empty catalog. Asset ids start at 1; 0 is never assigned.
func New() *Catalog {
	return &Catalog{
		assets: make(map[uint32]AssetInfo),
		nextID: 1,
	}
}

// Register stores info under a fresh id and returns it. Any ID already set on
// info is ignored; registering the same file twice yields two ids.
func (c *Catalog) Register(info AssetInfo) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++

	info.ID = id
	c.assets[id] = info
	return id
}

// Get returns a copy of the asset record.
func (c *Catalog) Get(id uint32) (AssetInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info, ok := c.assets[id]
	return info, ok
}

// Remove evicts an asset. Streams referencing it stop receiving data.
func (c *Catalog) Remove(id uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.assets[id]; !ok {
		return false
	}
	delete(c.assets, id)
	return true
}

// Len returns the number of registered assets.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.assets)
}
