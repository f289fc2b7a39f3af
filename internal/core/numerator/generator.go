package numerator

import (
	"context"
)

// Generator hands out sequential numbers.
// Implementations live in the infrastructure layer.
type Generator interface {
	// NextNumber returns the next value of cfg.Sequence.
	NextNumber(ctx context.Context, cfg Config, opts *Options) (int64, error)
}
