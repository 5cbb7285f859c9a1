package adapter

import "github.com/shopspring/decimal"

// PaymentGateway is the hex port for the hosted payment page provider.
type PaymentGateway interface {
	Name() string

	// CheckoutURL returns the signed redirect URL for one invoice.
	CheckoutURL(invoiceID int64, amount decimal.Decimal, description string) (string, error)
	// VerifyCallback checks the signature of an inbound notification against
	// the exact amount string the gateway sent.
	VerifyCallback(outSum string, invoiceID int64, signature string) bool
}

// InvoiceIDGenerator yields fresh 63-bit invoice ids.
type InvoiceIDGenerator interface {
	NextInvoiceID() (int64, error)
}
