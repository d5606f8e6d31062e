// Package shm provides a double-buffered shared-memory pool for handing
// frames to a Wayland compositor.
//
// The pool is one mapping split into two equal slots. Callers alternate
// slots between frames; the pool does not track which slot the compositor
// is still reading.
package shm

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const (
	// BytesPerPixel is fixed by the 32-bit ARGB/XRGB formats.
	BytesPerPixel = 4
	// SlotCount is the number of frame slots in a pool.
	SlotCount = 2
	// DefaultDir is where POSIX shared memory objects live on Linux.
	DefaultDir = "/dev/shm"

	createAttempts = 8
)

// Format is a wl_shm pixel format code.
type Format uint32

// FormatARGB8888 is the only format the pool hands out.
const FormatARGB8888 Format = 0

var (
	// ErrAllocation wraps every failure to create or map the backing store.
	ErrAllocation = errors.New("shm: allocation failed")
	// ErrInvalidSlot is returned for slot indexes outside [0, SlotCount).
	ErrInvalidSlot = errors.New("shm: invalid slot index")
	// ErrReleased is returned when addressing a released pool.
	ErrReleased = errors.New("shm: pool released")
	// ErrNotAttached is returned for buffer handles before Attach.
	ErrNotAttached = errors.New("shm: pool not attached to a surface")
	// ErrNoShm is returned by Attach without a wl_shm to attach to.
	ErrNoShm = errors.New("shm: no wl_shm global")
)

// Shm creates compositor-side pools over a file descriptor (wl_shm).
type Shm interface {
	CreatePool(fd int, size int32) (SurfacePool, error)
}

// SurfacePool is the compositor's view of the mapping (wl_shm_pool).
type SurfacePool interface {
	CreateBuffer(offset, width, height, stride int32, format Format) (Buffer, error)
	Destroy() error
}

// Buffer is a displayable byte range of the pool (wl_buffer).
type Buffer interface {
	Destroy() error
}

// newName returns a fresh backing store name.
var newName = func() string {
	return "/" + uuid.NewString()
}

// Pool owns a named shared memory object mapped into this process.
type Pool struct {
	width     int
	height    int
	stride    int
	frameSize int
	size      int

	dir  string
	name string
	fd   int
	data []byte

	surface  SurfacePool
	buffers  [SlotCount]Buffer
	released bool
}

// Allocate creates a pool for width x height frames in DefaultDir.
func Allocate(width, height int) (*Pool, error) {
	return AllocateIn(DefaultDir, width, height)
}

// AllocateIn creates a pool whose backing object lives in dir.
func AllocateIn(dir string, width, height int) (*Pool, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid geometry %dx%d", ErrAllocation, width, height)
	}
	if width > math.MaxInt32/BytesPerPixel || height > math.MaxInt32/SlotCount/(width*BytesPerPixel) {
		return nil, fmt.Errorf("%w: %dx%d exceeds the maximum pool size", ErrAllocation, width, height)
	}
	stride := width * BytesPerPixel
	frameSize := height * stride
	p := &Pool{
		width:     width,
		height:    height,
		stride:    stride,
		frameSize: frameSize,
		size:      frameSize * SlotCount,
		dir:       dir,
		fd:        -1,
	}

	if err := p.create(); err != nil {
		return nil, err
	}
	if err := unix.Ftruncate(p.fd, int64(p.size)); err != nil {
		p.closeAndUnlink()
		return nil, fmt.Errorf("%w: ftruncate %s: %v", ErrAllocation, p.name, err)
	}
	data, err := unix.Mmap(p.fd, 0, p.size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		p.closeAndUnlink()
		return nil, fmt.Errorf("%w: mmap %s: %v", ErrAllocation, p.name, err)
	}
	p.data = data
	return p, nil
}

// create opens a new backing object with exclusive-create semantics,
// retrying with a new name on collision rather than reusing an existing
// object.
func (p *Pool) create() error {
	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		name := newName()
		fd, err := unix.Open(p.pathFor(name), unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_NOFOLLOW|unix.O_CLOEXEC, 0o600)
		if err == nil {
			p.name = name
			p.fd = fd
			return nil
		}
		lastErr = err
		if !errors.Is(err, unix.EEXIST) {
			break
		}
	}
	return fmt.Errorf("%w: create backing store in %s: %v", ErrAllocation, p.dir, lastErr)
}

func (p *Pool) pathFor(name string) string {
	return filepath.Join(p.dir, filepath.Base(name))
}

func (p *Pool) closeAndUnlink() {
	unix.Close(p.fd)
	unix.Unlink(p.pathFor(p.name))
	p.fd = -1
}

// Attach registers the mapping with the compositor and creates one buffer
// per slot. It does nothing on an unallocated, released or already
// attached pool.
func (p *Pool) Attach(shm Shm) error {
	if p == nil || p.data == nil || p.released || p.surface != nil {
		return nil
	}
	if shm == nil {
		return ErrNoShm
	}
	surface, err := shm.CreatePool(p.fd, int32(p.size))
	if err != nil {
		return fmt.Errorf("shm: create surface pool: %w", err)
	}
	var buffers [SlotCount]Buffer
	for i := range buffers {
		offset := int32(i * p.frameSize)
		buf, err := surface.CreateBuffer(offset, int32(p.width), int32(p.height), int32(p.stride), FormatARGB8888)
		if err != nil {
			errs := []error{fmt.Errorf("shm: create buffer for slot %d: %w", i, err)}
			for j, created := range buffers[:i] {
				if derr := created.Destroy(); derr != nil {
					errs = append(errs, fmt.Errorf("shm: destroy buffer %d: %w", j, derr))
				}
			}
			if derr := surface.Destroy(); derr != nil {
				errs = append(errs, fmt.Errorf("shm: destroy surface pool: %w", derr))
			}
			return errors.Join(errs...)
		}
		buffers[i] = buf
	}
	p.surface = surface
	p.buffers = buffers
	return nil
}

// Slot returns the bytes of slot index. The slice is exactly FrameSize
// long and cannot be resliced into the other slot.
func (p *Pool) Slot(index int) ([]byte, error) {
	if index < 0 || index >= SlotCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, index)
	}
	if p.released || p.data == nil {
		return nil, ErrReleased
	}
	start := index * p.frameSize
	end := start + p.frameSize
	return p.data[start:end:end], nil
}

// Buffer returns the compositor buffer backing slot index.
func (p *Pool) Buffer(index int) (Buffer, error) {
	if index < 0 || index >= SlotCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSlot, index)
	}
	if p.released {
		return nil, ErrReleased
	}
	if p.surface == nil {
		return nil, ErrNotAttached
	}
	return p.buffers[index], nil
}

// Release tears the pool down in reverse acquisition order: buffers,
// surface pool, mapping, descriptor, name. Stages never reached are
// skipped. Calling Release again does nothing.
func (p *Pool) Release() error {
	if p == nil || p.released {
		return nil
	}
	p.released = true

	var errs []error
	for i, buf := range p.buffers {
		if buf == nil {
			continue
		}
		if err := buf.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("destroy buffer %d: %w", i, err))
		}
		p.buffers[i] = nil
	}
	if p.surface != nil {
		if err := p.surface.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("destroy surface pool: %w", err))
		}
		p.surface = nil
	}
	if p.data != nil {
		if err := unix.Munmap(p.data); err != nil {
			errs = append(errs, fmt.Errorf("munmap: %w", err))
		}
		p.data = nil
	}
	if p.fd >= 0 {
		if err := unix.Close(p.fd); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
		p.fd = -1
	}
	if p.name != "" {
		if err := unix.Unlink(p.pathFor(p.name)); err != nil {
			errs = append(errs, fmt.Errorf("unlink %s: %w", p.name, err))
		}
	}
	return errors.Join(errs...)
}

// Matches reports whether the pool was sized for width x height. A pool
// cannot be resized; owners release and reallocate on mismatch.
func (p *Pool) Matches(width, height int) bool {
	return p.width == width && p.height == height
}

func (p *Pool) Width() int     { return p.width }
func (p *Pool) Height() int    { return p.height }
func (p *Pool) Stride() int    { return p.stride }
func (p *Pool) FrameSize() int { return p.frameSize }
func (p *Pool) Size() int      { return p.size }

// Name returns the backing object's name, starting with "/".
func (p *Pool) Name() string { return p.name }

// Fd returns the backing object's descriptor, or -1 after Release.
func (p *Pool) Fd() int { return p.fd }
