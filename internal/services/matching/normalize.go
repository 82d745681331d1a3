package matching

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer canonicalises a string field before equality comparison.
type Normalizer func(string) string

// FoldNormalizer trims and upper-cases. Used for codes where any further
// rewriting could hide a real difference.
func FoldNormalizer(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

var legalSuffixes = map[string]struct{}{
	"SA": {}, "SPA": {}, "SAC": {}, "SRL": {}, "LTDA": {}, "LTD": {}, "LIMITED": {},
	"LLC": {}, "LLP": {}, "LP": {}, "INC": {}, "CORP": {}, "CORPORATION": {}, "CO": {},
	"PLC": {}, "AG": {}, "GMBH": {}, "NV": {}, "BV": {}, "AB": {}, "ASA": {}, "SE": {},
}

// CounterpartyNormalizer strips diacritics, punctuation and trailing legal
// form suffixes, so "Banco de Crédito S.A." and "BANCO DE CREDITO" compare
// equal. Distinct names still differ: there is no edit-distance fallback.
func CounterpartyNormalizer(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)

	tokens := strings.Fields(s)
	for len(tokens) > 1 {
		if _, ok := legalSuffixes[tokens[len(tokens)-1]]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}
