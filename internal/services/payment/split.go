package payment

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Settlement is how a paid amount is divided between the academy and the
// platform. Net + SystemShare always equals Gross.
type Settlement struct {
	Gross       decimal.Decimal
	VAT         decimal.Decimal
	Taxable     decimal.Decimal
	Fee         decimal.Decimal
	Net         decimal.Decimal
	SystemShare decimal.Decimal
}

// Split takes the platform fee on the pre-VAT amount. VAT is collected by
// the platform.
func Split(gross, vat, feePercent decimal.Decimal) Settlement {
	taxable := gross.Sub(vat)
	fee := percentOf(taxable, feePercent)
	return Settlement{
		Gross:       gross,
		VAT:         vat,
		Taxable:     taxable,
		Fee:         fee,
		Net:         taxable.Sub(fee),
		SystemShare: fee.Add(vat),
	}
}

func percentOf(amount, percent decimal.Decimal) decimal.Decimal {
	return amount.Mul(percent).Div(hundred).Round(2)
}
