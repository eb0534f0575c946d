package core

// Derive computes profit = revenue - expense for every record, preserving order.
func Derive(records []FinancialRecord) []DerivedRecord {
	out := make([]DerivedRecord, len(records))
	for i, r := range records {
		out[i] = DerivedRecord{
			FinancialRecord: r,
			Profit:          r.Revenue.Sub(r.Expense),
		}
	}
	return out
}

// Rederive recomputes profit over already derived records.
func Rederive(records []DerivedRecord) []DerivedRecord {
	base := make([]FinancialRecord, len(records))
	for i, r := range records {
		base[i] = r.FinancialRecord
	}
	return Derive(base)
}
