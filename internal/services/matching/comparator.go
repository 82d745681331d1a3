package matching

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "trade-confirmation-backend/internal/errors"
	"trade-confirmation-backend/internal/models"
)

type FieldType int

const (
	FieldString FieldType = iota
	FieldEnum
	FieldDecimal
	FieldDate
)

func (t FieldType) String() string {
	switch t {
	case FieldString:
		return "string"
	case FieldEnum:
		return "enum"
	case FieldDecimal:
		return "decimal"
	case FieldDate:
		return "date"
	default:
		return "unknown"
	}
}

// FieldSpec declares how one field is compared and how much it counts
// towards the match confidence.
type FieldSpec struct {
	Name      string
	Type      FieldType
	Weight    int
	Tolerance decimal.Decimal // relative, decimals only
	// Normalizer applies to string fields; nil means FoldNormalizer.
	Normalizer Normalizer
	// Noise fields never produce discrepancies and tolerate absent values.
	Noise bool
	Get   func(models.TradeFields) interface{}
}

// Comparison is the outcome of comparing one field. Delta is the relative
// difference for decimals and the day difference for dates.
type Comparison struct {
	Equal bool
	Delta decimal.Decimal
}

var one = decimal.NewFromInt(1)

// Compare compares two values of the declared field type. An absent value
// on either side yields ErrInvalidFieldSpec.
func Compare(a, b interface{}, spec FieldSpec) (Comparison, error) {
	switch spec.Type {
	case FieldString, FieldEnum:
		as, aok := a.(string)
		bs, bok := b.(string)
		if !aok || !bok {
			return Comparison{}, invalidSpec(spec, "expected string values")
		}
		normalize := spec.Normalizer
		if normalize == nil || spec.Type == FieldEnum {
			normalize = FoldNormalizer
		}
		an, bn := normalize(as), normalize(bs)
		if an == "" || bn == "" {
			return Comparison{}, invalidSpec(spec, "value absent")
		}
		return Comparison{Equal: an == bn}, nil

	case FieldDecimal:
		ad, aok := a.(decimal.Decimal)
		bd, bok := b.(decimal.Decimal)
		if !aok || !bok {
			return Comparison{}, invalidSpec(spec, "expected decimal values")
		}
		if ad.IsZero() || bd.IsZero() {
			return Comparison{}, invalidSpec(spec, "value absent")
		}
		rel := RelativeDifference(ad, bd)
		return Comparison{Equal: rel.LessThanOrEqual(spec.Tolerance), Delta: rel}, nil

	case FieldDate:
		at, aok := a.(*time.Time)
		bt, bok := b.(*time.Time)
		if !aok || !bok {
			return Comparison{}, invalidSpec(spec, "expected date values")
		}
		if at == nil || bt == nil || at.IsZero() || bt.IsZero() {
			return Comparison{}, invalidSpec(spec, "value absent")
		}
		days := calendarDays(*at) - calendarDays(*bt)
		if days < 0 {
			days = -days
		}
		return Comparison{Equal: days == 0, Delta: decimal.NewFromInt(days)}, nil
	}
	return Comparison{}, invalidSpec(spec, fmt.Sprintf("unsupported type %s", spec.Type))
}

// RelativeDifference returns |a-b| / max(|a|, |b|, 1).
func RelativeDifference(a, b decimal.Decimal) decimal.Decimal {
	denom := decimal.Max(a.Abs(), b.Abs(), one)
	return a.Sub(b).Abs().Div(denom)
}

// calendarDays counts days since the epoch for the date as recorded,
// ignoring time of day and zone offset.
func calendarDays(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

func invalidSpec(spec FieldSpec, msg string) error {
	return apperrors.Wrapf(apperrors.ErrInvalidFieldSpec, "%s: %s", spec.Name, msg)
}

// FormatValue renders a raw field value for discrepancy reports.
func FormatValue(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case decimal.Decimal:
		if x.IsZero() {
			return ""
		}
		return x.String()
	case *time.Time:
		if x == nil || x.IsZero() {
			return ""
		}
		return x.Format("2006-01-02")
	default:
		return fmt.Sprint(v)
	}
}
