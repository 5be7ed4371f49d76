package client

import "context"

// BillingAPI handles company billing documents.
type BillingAPI struct {
	client *Client
}

// Invoices returns the company's invoices.
func (b *BillingAPI) Invoices(ctx context.Context) ([]Invoice, error) {
	var invoices []Invoice
	if err := b.client.getCached(ctx, "/company/invoices", &invoices); err != nil {
		return nil, err
	}
	return invoices, nil
}
