// Package money holds the fixed-point currency conventions shared by the
// schedule and ledger math. Amounts are decimal values carried to two
// decimal places; repeated installment division must never leak sub-cent
// drift into totals.
package money

import "github.com/shopspring/decimal"

// Round normalizes an amount to the currency's smallest unit (two
// decimal places, half away from zero).
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Split divides total into n equal parts rounded to cents. It returns the
// flat per-part amount and the final part, which absorbs the rounding
// residue so that part*(n-1) + last == total exactly.
func Split(total decimal.Decimal, n int) (part, last decimal.Decimal) {
	part = total.Div(decimal.NewFromInt(int64(n))).Round(2)
	last = total.Sub(part.Mul(decimal.NewFromInt(int64(n - 1))))
	return part, last
}

// Sum adds a list of amounts.
func Sum(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
