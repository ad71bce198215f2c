package stoploss

import (
	"github.com/JWax21/kalshi-strat-1-sub001/internal/domain"
)

// Confidence grades how much a price reading can be trusted.
type Confidence int

const (
	ConfidenceHigh Confidence = iota
	ConfidenceMedium
	ConfidenceLow
	ConfidenceSuspicious
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceLow:
		return "low"
	default:
		return "suspicious"
	}
}

// reading is one market's price data gathered from independent sources.
type reading struct {
	quote domain.Quote
	book  domain.Orderbook
}

// grade scores a reading. Four checks: bid/ask present, spread within the
// ceiling, last trade near the midpoint, adequate recent volume. Zero
// failures is high, one medium, two low, three or more suspicious. A price
// on the bad-data list, or too many degraded readings all reporting the
// same price at once, is suspicious outright.
func (m *Monitor) grade(r reading, samePriceCount int) Confidence {
	failures := m.failureCount(r)

	if failures >= 3 {
		return ConfidenceSuspicious
	}
	for _, bad := range m.cfg.BadDataPrices {
		if r.quote.LastPrice == bad {
			return ConfidenceSuspicious
		}
	}
	if samePriceCount >= m.cfg.SamePriceAnomaly {
		// Muchas posiciones distintas con el mismo precio improbable es un
		// feed roto, no un evento de mercado.
		return ConfidenceSuspicious
	}

	switch failures {
	case 0:
		return ConfidenceHigh
	case 1:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// failureCount ejecuta los cuatro checks de calidad y devuelve cuántos fallan.
func (m *Monitor) failureCount(r reading) int {
	failures := 0

	hasQuote := r.quote.Bid > 0 && r.quote.Ask > 0
	if !hasQuote {
		failures++
	}

	spread := r.quote.Ask - r.quote.Bid
	if bookSpread := r.book.Spread(); bookSpread > spread {
		spread = bookSpread
	}
	if !hasQuote || spread > m.cfg.SpreadCeiling {
		failures++
	}

	mid := r.quote.Midpoint()
	if mid == 0 || absInt(r.quote.LastPrice-mid) > m.cfg.MidTolerance {
		failures++
	}

	if r.quote.Volume24h < m.cfg.MinVolume24h {
		failures++
	}

	return failures
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
