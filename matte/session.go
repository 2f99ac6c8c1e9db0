package matte

import (
	"fmt"
	"maps"
	"math"

	"github.com/mrjoshuak/go-cryptomatte/matteid"
)

// State is the lifecycle state of a Session.
type State uint8

const (
	StateInit State = iota
	StateAllocated
	StateAccumulating
	StateFinalized
	StateExtracted
	StateFreed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateAllocated:
		return "ALLOCATED"
	case StateAccumulating:
		return "ACCUMULATING"
	case StateFinalized:
		return "FINALIZED"
	case StateExtracted:
		return "EXTRACTED"
	case StateFreed:
		return "FREED"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Slot is one candidate ID of a pixel and layer. Weight 0 marks an empty
// slot, except that Hash 0 with a positive Weight is a background
// observation.
type Slot struct {
	Hash   float32
	Weight float32
}

// LayerStats holds per-layer counters of the current generation.
type LayerStats struct {
	Layer  Layer
	Levels int

	// Samples is the number of hash frames integrated into the layer.
	Samples int
	// Skipped is the number of frames the layer ignored in fast mode.
	Skipped int
	// Overflow is the number of observations dropped because every slot
	// of the pixel held another hash.
	Overflow uint64
	// Degenerate is the number of pixels cleared by Finalize because no
	// finite normalization factor existed.
	Degenerate int
}

// PassNamer names pass index of a layer. layerName is the logical layer
// name, e.g. "ViewLayer.CryptoObject".
type PassNamer func(layerName string, index int) string

// DefaultPassName names passes "<layerName><NN>".
func DefaultPassName(layerName string, index int) string {
	return fmt.Sprintf("%s%02d", layerName, index)
}

// Option configures a Session.
type Option func(*sessionOptions)

type sessionOptions struct {
	workers int
	namer   PassNamer
}

// WithWorkers overrides Config.Workers.
func WithWorkers(n int) Option {
	return func(o *sessionOptions) {
		o.workers = n
	}
}

// WithPassNamer replaces DefaultPassName.
func WithPassNamer(fn PassNamer) Option {
	return func(o *sessionOptions) {
		o.namer = fn
	}
}

// Session owns the accumulation buffer of one render view.
type Session struct {
	cfg     Config
	workers int
	namer   PassNamer

	// Active layers in canonical order; index li is the layer's position
	// in hash frames.
	layers  []Layer
	levels  []int
	offsets []int
	stride  int

	width, height int
	slots         []Slot
	state         State
	extracted     []bool
	stats         []LayerStats
}

// NewSession validates cfg and returns a Session in StateInit.
func NewSession(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := sessionOptions{workers: cfg.Workers, namer: DefaultPassName}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkers, o.workers)
	}

	cfg.LayerLevels = maps.Clone(cfg.LayerLevels)
	s := &Session{
		cfg:     cfg,
		workers: o.workers,
		namer:   o.namer,
		layers:  cfg.Layers.Layers(),
	}
	for _, l := range s.layers {
		n := cfg.LevelsFor(l)
		s.offsets = append(s.offsets, s.stride)
		s.levels = append(s.levels, n)
		s.stride += n
	}

	seen := make(map[string]Layer)
	for li, l := range s.layers {
		for k := range numPasses(s.levels[li]) {
			name := s.namer(s.LayerName(l), k)
			if prev, ok := seen[name]; ok {
				return nil, fmt.Errorf("%w: %q used by %s and %s", ErrDuplicatePassName, name, prev, l)
			}
			seen[name] = l
		}
	}

	s.resetStats()
	return s, nil
}

// Config returns the session configuration.
func (s *Session) Config() Config {
	cfg := s.cfg
	cfg.LayerLevels = maps.Clone(s.cfg.LayerLevels)
	return cfg
}

// State returns the lifecycle state.
func (s *Session) State() State { return s.state }

// Width returns the allocated image width.
func (s *Session) Width() int { return s.width }

// Height returns the allocated image height.
func (s *Session) Height() int { return s.height }

// Layers returns the active layers in hash frame order.
func (s *Session) Layers() []Layer {
	return append([]Layer(nil), s.layers...)
}

// Levels returns the slot count of an active layer, or 0.
func (s *Session) Levels(l Layer) int {
	li, ok := s.layerIndex(l)
	if !ok {
		return 0
	}
	return s.levels[li]
}

// LayerName returns the logical name of a layer: Prefix + "Crypto" + layer.
func (s *Session) LayerName(l Layer) string {
	return s.cfg.Prefix + "Crypto" + l.String()
}

// PassNames returns the names Extract will give the passes of a layer.
func (s *Session) PassNames(l Layer) []string {
	li, ok := s.layerIndex(l)
	if !ok {
		return nil
	}
	names := make([]string, numPasses(s.levels[li]))
	for k := range names {
		names[k] = s.namer(s.LayerName(l), k)
	}
	return names
}

// FrameSize returns the length of a hash frame for the allocated image.
func (s *Session) FrameSize() int {
	return s.width * s.height * len(s.layers)
}

// Metadata returns the Cryptomatte metadata of an active layer. The
// manifest is left nil; callers that track names attach their own.
func (s *Session) Metadata(l Layer) (matteid.Metadata, error) {
	if _, ok := s.layerIndex(l); !ok {
		return matteid.Metadata{}, s.misuse("Metadata", fmt.Errorf("%w: %s", ErrInactiveLayer, l))
	}
	return matteid.NewMetadata(s.LayerName(l), nil), nil
}

// Stats returns the counters of the current generation, one entry per
// active layer.
func (s *Session) Stats() []LayerStats {
	return append([]LayerStats(nil), s.stats...)
}

// Allocate creates the zeroed slot buffer for a width x height view.
func (s *Session) Allocate(width, height int) error {
	switch s.state {
	case StateInit:
	case StateFreed:
		return s.misuse("Allocate", ErrFreed)
	default:
		return s.misuse("Allocate", ErrAlreadyAllocated)
	}
	n, err := s.slotCount(width, height)
	if err != nil {
		return err
	}

	s.width, s.height = width, height
	s.slots = make([]Slot, n)
	s.extracted = make([]bool, len(s.layers))
	s.state = StateAllocated

	Logger().Debug("matte: allocated",
		"width", width, "height", height,
		"layers", s.cfg.Layers.String(), "stride", s.stride,
		"bytes", len(s.slots)*8)
	return nil
}

// Clear zeroes the buffer for the next view without reallocating it.
func (s *Session) Clear() error {
	switch s.state {
	case StateInit:
		return s.misuse("Clear", ErrNotAllocated)
	case StateFreed:
		return s.misuse("Clear", ErrFreed)
	}
	clear(s.slots)
	clear(s.extracted)
	s.resetStats()
	s.state = StateAllocated
	Logger().Debug("matte: cleared", "width", s.width, "height", s.height)
	return nil
}

// Free releases the buffer. The session cannot be used afterwards.
func (s *Session) Free() error {
	if s.state == StateFreed {
		return s.misuse("Free", ErrFreed)
	}
	s.slots = nil
	s.extracted = nil
	s.state = StateFreed
	Logger().Debug("matte: freed")
	return nil
}

// Slots returns a copy of the slots of one pixel and layer.
func (s *Session) Slots(l Layer, pixel int) ([]Slot, error) {
	if s.state == StateInit || s.state == StateFreed {
		return nil, s.misuse("Slots", s.stateErr())
	}
	li, ok := s.layerIndex(l)
	if !ok {
		return nil, s.misuse("Slots", fmt.Errorf("%w: %s", ErrInactiveLayer, l))
	}
	if pixel < 0 || pixel >= s.width*s.height {
		return nil, fmt.Errorf("matte: pixel %d out of range", pixel)
	}
	return append([]Slot(nil), s.pixelLayer(pixel, li)...), nil
}

func (s *Session) resetStats() {
	s.stats = make([]LayerStats, len(s.layers))
	for li, l := range s.layers {
		s.stats[li] = LayerStats{Layer: l, Levels: s.levels[li]}
	}
}

func (s *Session) layerIndex(l Layer) (int, bool) {
	for li, active := range s.layers {
		if active == l {
			return li, true
		}
	}
	return 0, false
}

// pixelLayer returns the slots of one pixel and layer index.
func (s *Session) pixelLayer(p, li int) []Slot {
	base := p*s.stride + s.offsets[li]
	end := base + s.levels[li]
	return s.slots[base:end:end]
}

// stateErr returns the sentinel describing why the current state blocks an
// operation that needs an allocated buffer.
func (s *Session) stateErr() error {
	if s.state == StateFreed {
		return ErrFreed
	}
	return ErrNotAllocated
}

func (s *Session) misuse(op string, err error) error {
	return &MisuseError{Op: op, State: s.state, Err: err}
}

// maxSlots bounds the slot buffer (64 GiB of slots).
const maxSlots = 1 << 33

// slotCount returns the buffer length for a width x height view, rejecting
// sizes whose product overflows or exceeds maxSlots.
func (s *Session) slotCount(width, height int) (int, error) {
	if width < 1 || height < 1 {
		return 0, fmt.Errorf("%w: got %dx%d", ErrInvalidDimensions, width, height)
	}
	n := uint64(s.stride)
	for _, d := range []int{width, height} {
		if uint64(d) > maxSlots/n {
			return 0, fmt.Errorf("%w: %dx%d with %d slots per pixel is too large",
				ErrInvalidDimensions, width, height, s.stride)
		}
		n *= uint64(d)
	}
	if n > math.MaxInt {
		return 0, fmt.Errorf("%w: %dx%d does not fit in memory", ErrInvalidDimensions, width, height)
	}
	return int(n), nil
}

func numPasses(levels int) int {
	return (levels + 1) / 2
}
