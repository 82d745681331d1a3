package matching

import (
	"time"

	"github.com/shopspring/decimal"

	apperrors "trade-confirmation-backend/internal/errors"
	"trade-confirmation-backend/internal/models"
)

// Validate reports the first scored field that is absent from the record.
// Noise fields are optional.
func Validate(kind, id string, fields models.TradeFields, specs []FieldSpec) error {
	for _, spec := range specs {
		if spec.Noise {
			continue
		}
		if absent(spec.Get(fields)) {
			return apperrors.NewValidationError(kind, id, spec.Name, "required field missing")
		}
	}
	return nil
}

func absent(v interface{}) bool {
	switch x := v.(type) {
	case string:
		return FoldNormalizer(x) == ""
	case decimal.Decimal:
		return x.IsZero()
	case *time.Time:
		return x == nil || x.IsZero()
	default:
		return v == nil
	}
}
