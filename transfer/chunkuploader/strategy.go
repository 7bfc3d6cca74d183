package chunkuploader

import (
	"fmt"
	"math"
)

const (
	// MinPartSize is the smallest part size the store accepts (except for the last part).
	MinPartSize int64 = 5 * 1024 * 1024
	// MaxPartSize is the largest part size the store accepts.
	MaxPartSize int64 = 5 * 1024 * 1024 * 1024

	maxPartsPerGroup = math.MaxUint16
	// adaptive plans keep the number of concurrently uploaded groups around this count
	adaptiveGroupCount = 200
	adaptiveMinGroup   = 3
)

// InvalidOptionError reports an option value outside its accepted range.
type InvalidOptionError struct {
	Object   string
	Field    string
	Value    any
	Expected string
}

func (e *InvalidOptionError) Error() string {
	return fmt.Sprintf("invalid %s.%s: %v, expected %s", e.Object, e.Field, e.Value, e.Expected)
}

// Strategy decides how a file of the given size is split into parts and groups.
type Strategy interface {
	Plan(fileSize int64) (FixedStrategy, error)
}

// FixedStrategy uses the same part size and group size for every file.
type FixedStrategy struct {
	PartSize      int64
	PartsPerGroup int
}

// Validate checks the part size and group size bounds.
func (s FixedStrategy) Validate() error {
	if s.PartsPerGroup < 1 {
		return &InvalidOptionError{Object: "ChunkingStrategy", Field: "PartsPerGroup", Value: s.PartsPerGroup, Expected: ">= 1"}
	}
	if s.PartSize < MinPartSize || s.PartSize > MaxPartSize {
		return &InvalidOptionError{
			Object:   "ChunkingStrategy",
			Field:    "PartSize",
			Value:    s.PartSize,
			Expected: fmt.Sprintf("between %d and %d", MinPartSize, MaxPartSize),
		}
	}
	return nil
}

// Plan returns the strategy itself.
func (s FixedStrategy) Plan(int64) (FixedStrategy, error) {
	return s, s.Validate()
}

// StrategyFunc computes the plan from the file size.
type StrategyFunc func(fileSize int64) FixedStrategy

// Plan calls f and validates its result.
func (f StrategyFunc) Plan(fileSize int64) (FixedStrategy, error) {
	s := f(fileSize)
	return s, s.Validate()
}

// AdaptiveStrategy uses minimum sized parts and grows the groups with the file size,
// so that very large files are still uploaded by a bounded number of groups.
func AdaptiveStrategy() Strategy {
	return StrategyFunc(adaptivePlan)
}

func adaptivePlan(fileSize int64) FixedStrategy {
	perGroup := max(adaptiveMinGroup, fileSize/MinPartSize/adaptiveGroupCount)
	return FixedStrategy{
		PartSize:      MinPartSize,
		PartsPerGroup: int(min(perGroup, maxPartsPerGroup)),
	}
}
