package system

import (
	"image"
	"sync"
)

// FramePool повторно использует буферы кадров одного размера, чтобы не нагружать GC
// при покадровом рендеринге клипов.
type FramePool struct {
	mu    sync.Mutex
	pools map[image.Point]*sync.Pool
}

var frames = &FramePool{pools: make(map[image.Point]*sync.Pool)}

// GetFrame returns a zeroed w×h frame from the shared pool.
func GetFrame(w, h int) *image.RGBA {
	return frames.Get(w, h)
}

// PutFrame hands a frame back to the shared pool.
func PutFrame(img *image.RGBA) {
	frames.Put(img)
}

func (p *FramePool) pool(size image.Point) *sync.Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	pool, ok := p.pools[size]
	if !ok {
		pool = &sync.Pool{
			New: func() any {
				return image.NewRGBA(image.Rectangle{Max: size})
			},
		}
		p.pools[size] = pool
	}
	return pool
}

func (p *FramePool) Get(w, h int) *image.RGBA {
	img := p.pool(image.Pt(w, h)).Get().(*image.RGBA)
	clear(img.Pix)
	return img
}

func (p *FramePool) Put(img *image.RGBA) {
	if img == nil || img.Rect.Min != (image.Point{}) {
		return
	}
	p.pool(img.Rect.Max).Put(img)
}
