package stock

import (
	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
)

// Replay folds movements in ledger order starting from zero.
// A movement whose id equals skip is left out.
// It returns the final balance and the lowest running balance seen.
func Replay(movements []Movement, skip *id.ID) (final, low types.Quantity) {
	ordered := append([]Movement(nil), movements...)
	SortMovements(ordered)

	for _, m := range ordered {
		if skip != nil && m.ID == *skip {
			continue
		}
		final += m.Delta
		if final < low {
			low = final
		}
	}
	return final, low
}

// Fold is the projection of a journal onto a quantity.
func Fold(movements []Movement) types.Quantity {
	var total types.Quantity
	for _, m := range movements {
		total += m.Delta
	}
	return total
}

// ConsumedAfter returns the consume movements that follow receipt on its stock.
func ConsumedAfter(receipt Movement, movements []Movement) []Movement {
	var out []Movement
	for _, m := range movements {
		if m.StockID != receipt.StockID || m.Type != MovementConsume {
			continue
		}
		if receipt.Before(m) {
			out = append(out, m)
		}
	}
	SortMovements(out)
	return out
}
