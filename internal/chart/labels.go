package chart

import "strings"

var knownQuotes = []string{"USDT", "USDC", "FDUSD", "BUSD", "TUSD", "BTC", "ETH", "BNB"}

// CurrencyLabels splits a futures pair symbol into base and quote currency
// labels for display. Unrecognized symbols return the whole symbol as base
// with an empty quote.
func CurrencyLabels(symbol string) (base, quote string) {
	upper := strings.ToUpper(symbol)
	for _, q := range knownQuotes {
		if strings.HasSuffix(upper, q) && len(upper) > len(q) {
			return upper[:len(upper)-len(q)], q
		}
	}
	return upper, ""
}
