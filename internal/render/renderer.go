package render

import (
	"crypto-dashboard/internal/format"
	"crypto-dashboard/internal/market"
)

// Renderer writes quotes onto registered elements.
type Renderer struct {
	reg *Registry
	fmt *format.Formatter
}

func NewRenderer(reg *Registry, f *format.Formatter) *Renderer {
	if f == nil {
		f = format.New(format.DefaultLocale)
	}
	return &Renderer{reg: reg, fmt: f}
}

func (r *Renderer) Registry() *Registry {
	return r.reg
}

func (r *Renderer) BeginLoading(els []*Element) {
	for _, el := range els {
		el.mu.Lock()
		el.loading = true
		el.mu.Unlock()
	}
}

func (r *Renderer) EndLoading(els []*Element) {
	for _, el := range els {
		el.mu.Lock()
		el.loading = false
		el.mu.Unlock()
	}
}

// ApplyQuotes updates every element whose coin has a quote. Elements of
// coins missing from quotes keep their previous text.
func (r *Renderer) ApplyQuotes(quotes map[string]market.PriceQuote) {
	for coinID, q := range quotes {
		for _, el := range r.reg.ElementsFor(coinID) {
			r.apply(el, q)
		}
	}
}

func (r *Renderer) apply(el *Element, q market.PriceQuote) {
	el.mu.Lock()
	defer el.mu.Unlock()
	switch el.Role {
	case RolePrice:
		el.text = r.fmt.Price(q.USD)
	case RoleChange:
		el.text = r.fmt.Percent(q.USD24hChange)
		if q.USD24hChange >= 0 {
			el.class = ClassSuccess
		} else {
			el.class = ClassDanger
		}
	case RoleMarketCap:
		el.text = r.fmt.CompactUSD(q.MarketCap)
	case RoleVolume:
		el.text = r.fmt.CompactUSD(q.Vol24h)
	}
}
