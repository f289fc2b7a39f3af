package memory

import (
	"context"
	"fmt"

	corenumerator "jobcost/internal/core/numerator"
)

// Numerator implements numerator.Generator over the store's sequence table.
// Both strategies are gapless here.
type Numerator struct {
	s *Store
}

// NewNumerator creates a generator on s.
func NewNumerator(s *Store) *Numerator {
	return &Numerator{s: s}
}

var _ corenumerator.Generator = (*Numerator)(nil)

func (n *Numerator) NextNumber(ctx context.Context, cfg corenumerator.Config, _ *corenumerator.Options) (int64, error) {
	if cfg.Sequence == "" {
		return 0, fmt.Errorf("numerator: empty sequence")
	}
	var next int64
	err := n.s.write(ctx, func(d *state) error {
		cur, ok := d.sequences[cfg.Sequence]
		if !ok {
			next = cfg.Start
			if next <= 0 {
				next = 1
			}
		} else {
			next = cur + 1
		}
		d.sequences[cfg.Sequence] = next
		return nil
	})
	return next, err
}
