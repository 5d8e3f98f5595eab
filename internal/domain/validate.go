package domain

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateReports checks every report against its struct constraints and
// rejects batches that repeat a unix timestamp. Violations are tagged
// StatusValidationFailure.
func ValidateReports(reports []Report) error {
	seen := make(map[int64]struct{}, len(reports))
	for i := range reports {
		if err := validate.Struct(reports[i]); err != nil {
			return Fail(StatusValidationFailure, fmt.Errorf("report %d (unix %d): %w", i, reports[i].Unix, err))
		}
		if _, ok := seen[reports[i].Unix]; ok {
			return Fail(StatusValidationFailure, fmt.Errorf("report %d: %w", i, ErrDuplicateReport))
		}
		seen[reports[i].Unix] = struct{}{}
	}
	return nil
}
