package membank

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidK is returned when k is not positive or asks for more
	// neighbors than the bank can provide.
	ErrInvalidK = errors.New("invalid k")

	// ErrInvalidCapacity is returned when a bank is created with capacity < 1.
	ErrInvalidCapacity = errors.New("capacity must be positive")

	// ErrInvalidNumClasses is returned when a bank is created with fewer
	// than one class.
	ErrInvalidNumClasses = errors.New("numClasses must be positive")

	// ErrInvalidTemperature is returned for a non-positive or non-finite
	// voting temperature.
	ErrInvalidTemperature = errors.New("temperature must be positive and finite")

	// ErrUnpopulated is returned when mining or prediction is requested
	// before every slot of the bank has been written.
	ErrUnpopulated = errors.New("memory bank is not fully populated")

	// ErrOutOfBounds is matched by *ErrIndexOutOfRange via errors.Is.
	ErrOutOfBounds = errors.New("index out of bounds")

	// ErrLabelsUnavailable reports that labels are required but the bank
	// holds at least one unlabeled slot. Mining treats it as soft and
	// reports NaN accuracy instead.
	ErrLabelsUnavailable = errors.New("labels unavailable")

	// ErrBatchLength is returned when the indices, features and labels of a
	// batch disagree in length.
	ErrBatchLength = errors.New("batch length mismatch")

	// ErrDuplicateIndex is returned when a population pass revisits a
	// dataset index.
	ErrDuplicateIndex = errors.New("dataset index written twice in one pass")

	// ErrIncompleteOutput is returned when an encoder returns a different
	// number of features than the batch holds.
	ErrIncompleteOutput = errors.New("encoder output does not match batch size")
)

// ErrIndexOutOfRange indicates a dataset index outside [0, Capacity).
type ErrIndexOutOfRange struct {
	Index    int
	Capacity int
}

func (e *ErrIndexOutOfRange) Error() string {
	return fmt.Sprintf("index %d out of range [0, %d)", e.Index, e.Capacity)
}

// Is reports whether target is ErrOutOfBounds.
func (e *ErrIndexOutOfRange) Is(target error) bool { return target == ErrOutOfBounds }

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// ErrIncompletePass is returned by Fill when the source was exhausted
// before every slot was written.
type ErrIncompletePass struct {
	Written  int
	Capacity int
}

func (e *ErrIncompletePass) Error() string {
	return fmt.Sprintf("incomplete population pass: %d of %d slots written", e.Written, e.Capacity)
}

// Is reports whether target is ErrUnpopulated.
func (e *ErrIncompletePass) Is(target error) bool { return target == ErrUnpopulated }

// ErrInvalidLabel indicates a label outside [0, numClasses) that is not
// NoLabel.
type ErrInvalidLabel struct {
	Label      int
	NumClasses int
}

func (e *ErrInvalidLabel) Error() string {
	return fmt.Sprintf("invalid label %d for %d classes", e.Label, e.NumClasses)
}
