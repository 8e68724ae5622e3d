package domain

import (
	"math"
	"sort"
)

// Holding is the net position of a portfolio in one symbol.
type Holding struct {
	Symbol Symbol `json:"symbol"`
	Bought int64  `json:"bought"`
	Sold   int64  `json:"sold"`
	Held   int64  `json:"held"`
}

// Net sums BUY and SELL quantities of symbol over trades.
func Net(trades []Trade, symbol Symbol) Holding {
	h := Holding{Symbol: symbol}
	for _, t := range trades {
		if t.Symbol != symbol {
			continue
		}
		switch t.Action {
		case Buy:
			h.Bought = addShares(h.Bought, t.NoOfShares)
		case Sell:
			h.Sold = addShares(h.Sold, t.NoOfShares)
		}
	}
	h.Held = h.Bought - h.Sold
	return h
}

// NetHeld returns bought minus sold for symbol over trades.
func NetHeld(trades []Trade, symbol Symbol) int64 {
	return Net(trades, symbol).Held
}

// NetPositions nets every symbol present in trades. The result is sorted by
// symbol.
func NetPositions(trades []Trade) []Holding {
	bySymbol := make(map[Symbol]*Holding)
	for _, t := range trades {
		h, ok := bySymbol[t.Symbol]
		if !ok {
			h = &Holding{Symbol: t.Symbol}
			bySymbol[t.Symbol] = h
		}
		switch t.Action {
		case Buy:
			h.Bought = addShares(h.Bought, t.NoOfShares)
		case Sell:
			h.Sold = addShares(h.Sold, t.NoOfShares)
		}
	}
	out := make([]Holding, 0, len(bySymbol))
	for _, h := range bySymbol {
		h.Held = h.Bought - h.Sold
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// addShares adds non-negative quantities, saturating at math.MaxInt64.
func addShares(total, n int64) int64 {
	if n > math.MaxInt64-total {
		return math.MaxInt64
	}
	return total + n
}
