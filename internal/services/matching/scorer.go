package matching

import (
	"github.com/shopspring/decimal"

	"trade-confirmation-backend/internal/models"
)

// Tolerances are the relative tolerances for the numeric fields.
type Tolerances struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// DefaultTolerances allow price rounding but require quantities to match
// exactly.
func DefaultTolerances() Tolerances {
	return Tolerances{
		Price:    decimal.RequireFromString("0.001"),
		Quantity: decimal.Zero,
	}
}

// DefaultFieldSpecs is the weighted field table used for trade/confirmation
// scoring. Grouped fields (currencies, dates) split the group weight.
func DefaultFieldSpecs(tol Tolerances) []FieldSpec {
	return []FieldSpec{
		{Name: "tradeNumber", Type: FieldString, Weight: 0, Noise: true,
			Get: func(f models.TradeFields) interface{} { return f.TradeNumber }},
		{Name: "counterpartyName", Type: FieldString, Weight: 25, Normalizer: CounterpartyNormalizer,
			Get: func(f models.TradeFields) interface{} { return f.CounterpartyName }},
		{Name: "productType", Type: FieldEnum, Weight: 15,
			Get: func(f models.TradeFields) interface{} { return f.ProductType }},
		{Name: "direction", Type: FieldEnum, Weight: 15,
			Get: func(f models.TradeFields) interface{} { return f.Direction }},
		{Name: "currency1", Type: FieldEnum, Weight: 10,
			Get: func(f models.TradeFields) interface{} { return f.Currency1 }},
		{Name: "currency2", Type: FieldEnum, Weight: 10,
			Get: func(f models.TradeFields) interface{} { return f.Currency2 }},
		{Name: "quantity1", Type: FieldDecimal, Weight: 15, Tolerance: tol.Quantity,
			Get: func(f models.TradeFields) interface{} { return f.Quantity1 }},
		{Name: "price", Type: FieldDecimal, Weight: 10, Tolerance: tol.Price,
			Get: func(f models.TradeFields) interface{} { return f.Price }},
		{Name: "tradeDate", Type: FieldDate, Weight: 5,
			Get: func(f models.TradeFields) interface{} { return f.TradeDate }},
		{Name: "valueDate", Type: FieldDate, Weight: 5,
			Get: func(f models.TradeFields) interface{} { return f.ValueDate }},
	}
}

// ScoreResult is the confidence (0-100), the fields that matched and the
// fields that did not.
type ScoreResult struct {
	Confidence    int
	Reasons       []string
	Discrepancies []models.Discrepancy
}

// Scorer combines per-field comparisons into a match confidence.
type Scorer struct {
	fields      []FieldSpec
	totalWeight int
}

func NewScorer(fields []FieldSpec) *Scorer {
	total := 0
	for _, f := range fields {
		total += f.Weight
	}
	return &Scorer{fields: fields, totalWeight: total}
}

// Score compares a trade (a) against a confirmation (b). It has no side
// effects and swapping the arguments yields the same confidence.
func (s *Scorer) Score(a, b models.TradeFields) ScoreResult {
	res := ScoreResult{
		Reasons:       []string{},
		Discrepancies: []models.Discrepancy{},
	}
	matched := 0

	for _, f := range s.fields {
		av, bv := f.Get(a), f.Get(b)
		cmp, err := Compare(av, bv, f)
		if err == nil && cmp.Equal {
			matched += f.Weight
			res.Reasons = append(res.Reasons, f.Name)
			continue
		}
		if f.Noise {
			continue
		}
		res.Discrepancies = append(res.Discrepancies, models.Discrepancy{
			Field:             f.Name,
			TradeValue:        FormatValue(av),
			ConfirmationValue: FormatValue(bv),
		})
	}

	if s.totalWeight > 0 {
		// round half up
		res.Confidence = (200*matched + s.totalWeight) / (2 * s.totalWeight)
	}
	return res
}

// ConfirmationFields returns the field set used to score a confirmation.
// Banks often omit the client reference, so their own number stands in for
// the informational trade number comparison.
func ConfirmationFields(c *models.Confirmation) models.TradeFields {
	f := c.TradeFields
	if f.TradeNumber == "" {
		f.TradeNumber = c.BankTradeNumber
	}
	return f
}
