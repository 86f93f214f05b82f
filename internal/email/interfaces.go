package email

import (
	"context"

	"charity-server/internal/clients/mail"
)

// MailClient delivers a rendered message
type MailClient interface {
	Send(ctx context.Context, msg mail.Message) (string, error)
}

// ReceiptSender defines the interface for sending donation emails
type ReceiptSender interface {
	// SendDonationReceipt thanks the donor and states the tax-deductible amount when applicable
	SendDonationReceipt(ctx context.Context, receipt Receipt) error
}
