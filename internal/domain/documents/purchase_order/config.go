package purchase_order

import "jobcost/internal/core/numerator"

const (
	// NumeratorStrategy is used for orders saved without an upstream number.
	// Gaps are acceptable, orders entered upstream carry their own numbers.
	NumeratorStrategy = numerator.StrategyCached

	// NumberSequence is the numerator key for generated order numbers.
	NumberSequence = "purchase_order"

	// NumberPrefix precedes generated order numbers.
	NumberPrefix = "PO-"
)
