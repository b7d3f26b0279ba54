// Package rbuf implements the refcounted buffer capability the core
// consumes as an opaque handle (spec.md §6, §9 "Shared buffers"). It is
// grounded on alxayo-rtmp-go's internal/bufpool size-classed sync.Pool,
// generalized with explicit retain/release/duplicate semantics so
// payloads can be shared across many subscriber writes without copying.
package rbuf

import (
	"sync"
	"sync/atomic"
)

var sizeClasses = []int{128, 4096, 65536, 1 << 20}

type classPool struct {
	size int
	pool *sync.Pool
}

// Pool hands out refcounted Buffers drawn from size-classed sync.Pools.
type Pool struct {
	classes []classPool
}

var defaultPool = NewPool()

// Get acquires a fresh, refcount-1 buffer of the given length from the
// package-level default pool.
func Get(size int) Buffer { return defaultPool.Get(size) }

// NewPool builds a buffer pool with the package's predefined size
// classes, tailored for AMF0 command payloads up through full key
// frames.
func NewPool() *Pool {
	classes := make([]classPool, len(sizeClasses))
	for i, sz := range sizeClasses {
		size := sz
		classes[i] = classPool{
			size: size,
			pool: &sync.Pool{New: func() any { return make([]byte, size) }},
		}
	}
	return &Pool{classes: classes}
}

// Get acquires a []byte-backed Buffer of the requested length, with
// capacity taken from the smallest size class that fits (or a bare
// allocation for oversized requests).
func (p *Pool) Get(size int) Buffer {
	for i := range p.classes {
		c := &p.classes[i]
		if size <= c.size {
			b := c.pool.Get().([]byte)
			return newPooled(b[:size], c)
		}
	}
	return newPooled(make([]byte, size), nil)
}

func (p *Pool) put(b []byte, owner *classPool) {
	if owner == nil {
		return
	}
	full := b[:cap(b)]
	for i := range full {
		full[i] = 0
	}
	owner.pool.Put(full)
}

// Buffer is the refcounted, opaque byte buffer capability the core
// depends on. Implementations must make Retain/Release concurrency
// safe: fan-out retains a handle once per subscriber before enqueueing
// the write, and each subscriber's write releases its own handle.
type Buffer interface {
	// Bytes returns the current contents. The slice is only valid
	// until the next Release call drops the refcount to zero.
	Bytes() []byte
	// Retain increments the refcount and returns the same handle.
	Retain() Buffer
	// Release decrements the refcount, returning the backing storage
	// to its pool once it reaches zero. Safe to call from any
	// goroutine holding a handle.
	Release()
	// Duplicate allocates an independent refcount-1 copy of the
	// current contents.
	Duplicate() Buffer
}

type pooled struct {
	data    []byte
	owner   *classPool
	pool    *Pool
	refs    *int32
	onEmpty func()
}

func newPooled(b []byte, owner *classPool) *pooled {
	r := int32(1)
	return &pooled{data: b, owner: owner, pool: defaultPool, refs: &r}
}

func (b *pooled) Bytes() []byte { return b.data }

func (b *pooled) Retain() Buffer {
	atomic.AddInt32(b.refs, 1)
	return b
}

func (b *pooled) Release() {
	if atomic.AddInt32(b.refs, -1) == 0 {
		if b.owner != nil {
			b.pool.put(b.data, b.owner)
		}
	}
}

func (b *pooled) Duplicate() Buffer {
	cp := make([]byte, len(b.data))
	copy(cp, b.data)
	return Wrap(cp)
}

// wrapped adopts an externally produced slice (e.g. a parsed AMF0
// command payload) as a refcount-1 buffer without pool involvement.
type wrapped struct {
	data []byte
	refs *int32
}

// Wrap adopts b as a refcount-1 Buffer. b must not be mutated by the
// caller afterwards.
func Wrap(b []byte) Buffer {
	r := int32(1)
	return &wrapped{data: b, refs: &r}
}

func (b *wrapped) Bytes() []byte { return b.data }

func (b *wrapped) Retain() Buffer {
	atomic.AddInt32(b.refs, 1)
	return b
}

func (b *wrapped) Release() {
	atomic.AddInt32(b.refs, -1)
}

func (b *wrapped) Duplicate() Buffer {
	cp := make([]byte, len(b.data))
	copy(cp, b.data)
	return Wrap(cp)
}
