package matte

import (
	"fmt"
)

// DefaultLevels is the slot count per pixel and layer used when a Config is
// built with DefaultConfig.
const DefaultLevels = 6

// Config configures a Session.
type Config struct {
	// Levels is the number of slots kept per pixel and layer.
	Levels int `env:"LEVELS" envDefault:"6"`

	// Accurate integrates every render sample. When false, each layer
	// integrates only its first Levels samples and skips the rest.
	Accurate bool `env:"ACCURATE" envDefault:"true"`

	// Layers is the set of active layers.
	Layers LayerSet `env:"LAYERS" envDefault:"object,material,asset"`

	// LayerLevels overrides Levels for individual layers.
	LayerLevels map[Layer]int

	// Workers bounds the goroutines used per operation. 0 uses GOMAXPROCS.
	Workers int `env:"WORKERS" envDefault:"0"`

	// Prefix is prepended to layer and pass names, e.g. "ViewLayer.".
	Prefix string `env:"PREFIX"`
}

// DefaultConfig returns a Config with every layer active in accurate mode.
func DefaultConfig() Config {
	return Config{
		Levels:   DefaultLevels,
		Accurate: true,
		Layers:   NewLayerSet(AllLayers...),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Levels < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidLevels, c.Levels)
	}
	if c.Layers.Len() == 0 {
		return ErrNoLayers
	}
	for l, n := range c.LayerLevels {
		if !l.valid() {
			return fmt.Errorf("%w: %d", ErrUnknownLayer, uint8(l))
		}
		if n < 1 {
			return fmt.Errorf("%w: layer %s got %d", ErrInvalidLevels, l, n)
		}
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, c.Workers)
	}
	return nil
}

// LevelsFor returns the slot count of layer l.
func (c Config) LevelsFor(l Layer) int {
	if n, ok := c.LayerLevels[l]; ok {
		return n
	}
	return c.Levels
}

// LevelsFromQuality derives a slot count from a quality setting by rounding
// up to an even number, with a minimum of 2. Even counts fill every pass.
func LevelsFromQuality(quality int) int {
	if quality <= 2 {
		return 2
	}
	return quality + quality%2
}
