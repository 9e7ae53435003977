package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	PriceFree = "Free"
	PriceTBA  = "Price TBA"
)

// symbolPattern finds amounts marked with a currency symbol, in display
// prices and in prose alike.
var symbolPattern = regexp.MustCompile(`([$€£])\s*(\d{1,3}(?:,\d{3})+|\d+)(\.\d+)?`)

// codePattern matches the "CHF 20" form FormatRange uses for currencies
// without a symbol. Only display prices are read this way.
var codePattern = regexp.MustCompile(`^([A-Z]{3}) (\d+)(\.\d+)?(?: - [A-Z]{3} \d+(?:\.\d+)?)?$`)

// FormatRange renders a provider price range. Both bounds zero means free;
// a negative bound means unknown.
func FormatRange(lo, hi float64, currency string) string {
	if lo < 0 && hi < 0 {
		return PriceTBA
	}
	if lo < 0 {
		lo = hi
	}
	if hi < lo {
		hi = lo
	}
	if lo == 0 && hi == 0 {
		return PriceFree
	}
	sym := currencySymbol(currency)
	if lo == hi {
		return sym + formatAmount(lo)
	}
	return sym + formatAmount(lo) + " - " + sym + formatAmount(hi)
}

func currencySymbol(currency string) string {
	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case "", "USD", "CAD", "AUD":
		return "$"
	case "EUR":
		return "€"
	case "GBP":
		return "£"
	default:
		return strings.ToUpper(currency) + " "
	}
}

func formatAmount(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// IsFree reports whether a display price means no charge.
func IsFree(price string) bool {
	return strings.Contains(strings.ToLower(price), "free")
}

// ParsePrice extracts the lowest amount from a display price. "Free" is 0.
// ok is false when the string holds no usable number.
func ParsePrice(price string) (amount float64, ok bool) {
	if IsFree(price) {
		return 0, true
	}
	m := symbolPattern.FindStringSubmatch(price)
	if m == nil {
		m = codePattern.FindStringSubmatch(strings.TrimSpace(price))
	}
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(joinAmount(m), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// joinAmount joins the integer and fraction groups of a price match.
func joinAmount(m []string) string {
	return strings.ReplaceAll(m[2], ",", "") + m[3]
}

// PriceFromText scans free text (descriptions, info blurbs) for a price
// mention and returns it as a display string, or "".
func PriceFromText(texts ...string) string {
	for _, t := range texts {
		lower := strings.ToLower(t)
		if strings.Contains(lower, "free admission") || strings.Contains(lower, "free entry") ||
			strings.Contains(lower, "free event") || strings.Contains(lower, "admission is free") {
			return PriceFree
		}
		all := symbolPattern.FindAllStringSubmatch(t, 2)
		switch len(all) {
		case 0:
			continue
		case 1:
			return all[0][1] + joinAmount(all[0])
		default:
			return all[0][1] + joinAmount(all[0]) + " - " + all[1][1] + joinAmount(all[1])
		}
	}
	return ""
}

// Price returns the first candidate that reads as a price, or PriceTBA.
func Price[T any](raw T, accessors ...Accessor[T]) string {
	if p := First(raw, looksLikePrice, accessors...); p != "" {
		return p
	}
	return PriceTBA
}

func looksLikePrice(s string) bool {
	_, ok := ParsePrice(s)
	return ok
}
