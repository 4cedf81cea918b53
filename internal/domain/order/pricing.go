package order

import "github.com/shopspring/decimal"

type Pricing struct {
	ItemsTotal    decimal.Decimal `json:"items_total"`
	ShippingTotal decimal.Decimal `json:"shipping_total"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	GrandTotal    decimal.Decimal `json:"grand_total"`
}

// PricingPolicy computes shipping and tax for a set of line items.
// A zero FreeShippingOver disables the free-shipping threshold.
type PricingPolicy struct {
	ShippingFlat     decimal.Decimal
	FreeShippingOver decimal.Decimal
	TaxRate          decimal.Decimal
}

func ItemsTotal(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total.Round(2)
}

func (p PricingPolicy) Price(items []Item) Pricing {
	itemsTotal := ItemsTotal(items)

	shipping := p.ShippingFlat
	if p.FreeShippingOver.IsPositive() && itemsTotal.GreaterThanOrEqual(p.FreeShippingOver) {
		shipping = decimal.Zero
	}
	tax := itemsTotal.Mul(p.TaxRate).Round(2)

	return Pricing{
		ItemsTotal:    itemsTotal,
		ShippingTotal: shipping.Round(2),
		TaxTotal:      tax,
		GrandTotal:    itemsTotal.Add(shipping).Add(tax).Round(2),
	}
}
