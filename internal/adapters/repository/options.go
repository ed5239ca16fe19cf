package repository

// Option applies a configuration option to the Board.
type Option func(*boardConfig)

type boardConfig struct {
	seed uint64
}

// WithSeed fixes the seed of the treap priorities, making tree shapes
// reproducible in tests.
func WithSeed(seed uint64) Option {
	return func(c *boardConfig) {
		c.seed = seed
	}
}
