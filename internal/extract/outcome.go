package extract

import (
	"fmt"

	"docsieve/internal/domain"
)

// PartialError is returned when the structural pre-pass succeeded but the
// semantic call failed permanently. It carries the best-effort result so
// callers can store it as a partial record instead of discarding the
// document; Cause is the original provider failure.
type PartialError struct {
	Result *domain.ExtractionResult
	Cause  error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("extraction degraded to partial result: %v", e.Cause)
}

func (e *PartialError) Unwrap() error {
	return e.Cause
}
