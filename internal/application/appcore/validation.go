package appcore

import (
	"fmt"

	"github.com/lllypuk/claimservice/internal/domain/entity"
)

// ValidateNonNegative rejects negative values
func ValidateNonNegative(field string, value int) error {
	if value < 0 {
		return entity.NewFieldError(field, "must be non-negative")
	}
	return nil
}

// ValidateEnum checks that value is one of allowedValues
func ValidateEnum(field, value string, allowedValues []string) error {
	for _, allowed := range allowedValues {
		if value == allowed {
			return nil
		}
	}
	return entity.NewFieldError(field, fmt.Sprintf("must be one of %v", allowedValues))
}
