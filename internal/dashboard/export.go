package dashboard

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"painel/internal/core"
)

const (
	ExportFilename    = "dados_financeiros.csv"
	ExportContentType = "text/csv; charset=utf-8"
)

var exportHeader = []string{"data", "receitas", "despesas", "lucros"}

// ExportCSV serializes records, profit included, in the given order.
func ExportCSV(records []core.DerivedRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{r.Date.String(), r.Revenue.String(), r.Expense.String(), r.Profit.String()}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row %s: %w", r.Date, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
