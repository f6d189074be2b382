package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/frahmantamala/trading-panel/internal/upstream"
	"github.com/shopspring/decimal"
)

// InvoiceRow is one invoice list row. Amounts arrive as numbers or numeric
// strings and are kept exact.
type InvoiceRow struct {
	ID        upstream.ID     `json:"id"`
	InvoiceNo string          `json:"invoice_no"`
	Customer  string          `json:"customer_name"`
	Date      string          `json:"invoice_date"`
	Amount    decimal.Decimal `json:"amount"`
	Tax       decimal.Decimal `json:"tax"`
	Total     decimal.Decimal `json:"total"`
}

type InvoiceSummary struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
	Tax    decimal.Decimal `json:"tax"`
	Total  decimal.Decimal `json:"total"`
}

func DecodeInvoiceRows(rows []json.RawMessage) ([]InvoiceRow, error) {
	out := make([]InvoiceRow, 0, len(rows))
	for i, raw := range rows {
		var row InvoiceRow
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("invoice row %d: %w", i, err)
		}
		out = append(out, row)
	}
	return out, nil
}

// SummarizeInvoices totals the rows of one page.
func SummarizeInvoices(rows []json.RawMessage) (interface{}, error) {
	invoices, err := DecodeInvoiceRows(rows)
	if err != nil {
		return nil, err
	}

	sum := InvoiceSummary{Count: len(invoices), Amount: decimal.Zero, Tax: decimal.Zero, Total: decimal.Zero}
	for _, inv := range invoices {
		sum.Amount = sum.Amount.Add(inv.Amount)
		sum.Tax = sum.Tax.Add(inv.Tax)
		sum.Total = sum.Total.Add(inv.Total)
	}
	return sum, nil
}
