package topology

import "sync"

const (
	MinZoom = 0.1
	MaxZoom = 5.0

	zoomOutFactor = 0.9
	zoomInFactor  = 1.1
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type ViewportState struct {
	Zoom     float64 `json:"zoom"`
	Pan      Point   `json:"pan"`
	Dragging bool    `json:"dragging"`
}

// Viewport is the pan/zoom display transform of a rendered diagram. It knows
// nothing about the diagram itself.
type Viewport struct {
	mu       sync.Mutex
	zoom     float64
	pan      Point
	dragging bool
	anchor   Point
}

func NewViewport() *Viewport {
	return &Viewport{zoom: 1}
}

// OnWheel zooms out for positive deltaY and in otherwise. Scaling is
// multiplicative and clamped to [MinZoom, MaxZoom].
func (v *Viewport) OnWheel(deltaY float64) ViewportState {
	v.mu.Lock()
	defer v.mu.Unlock()

	if deltaY > 0 {
		v.zoom *= zoomOutFactor
	} else {
		v.zoom *= zoomInFactor
	}
	v.zoom = clamp(v.zoom, MinZoom, MaxZoom)
	return v.stateLocked()
}

func (v *Viewport) OnDragStart(p Point) ViewportState {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.dragging = true
	v.anchor = Point{X: p.X - v.pan.X, Y: p.Y - v.pan.Y}
	return v.stateLocked()
}

func (v *Viewport) OnDragMove(p Point) ViewportState {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.dragging {
		v.pan = Point{X: p.X - v.anchor.X, Y: p.Y - v.anchor.Y}
	}
	return v.stateLocked()
}

func (v *Viewport) OnDragEnd() ViewportState {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.dragging = false
	return v.stateLocked()
}

func (v *Viewport) Reset() ViewportState {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.zoom = 1
	v.pan = Point{}
	return v.stateLocked()
}

func (v *Viewport) State() ViewportState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stateLocked()
}

func (v *Viewport) stateLocked() ViewportState {
	return ViewportState{Zoom: v.zoom, Pan: v.pan, Dragging: v.dragging}
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
