// Package numerator provides the contract for sequential business numbers.
package numerator

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict uses UPDATE ... RETURNING for every number.
	// Sequential without gaps; job numbers use it.
	StrategyStrict Strategy = iota

	// StrategyCached allocates ranges of numbers in memory.
	// May produce gaps if the process restarts.
	StrategyCached
)

// Options configuration for number generation.
type Options struct {
	Strategy Strategy
	// RangeSize is the number of values reserved at once by StrategyCached.
	// Default is 50.
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() *Options {
	return &Options{
		Strategy: StrategyStrict,
	}
}

// Config names a sequence and its first value.
type Config struct {
	// Sequence is the storage key, e.g. "job".
	Sequence string

	// Start is the first number handed out for a fresh sequence.
	Start int64
}

// JobSequence is the sequence used for job numbers.
const JobSequence = "job"

// JobConfig returns the job number sequence starting at start.
func JobConfig(start int64) Config {
	if start <= 0 {
		start = 1
	}
	return Config{Sequence: JobSequence, Start: start}
}
