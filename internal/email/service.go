package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"charity-server/internal/clients/mail"
	"charity-server/internal/money/currency"
	"charity-server/internal/observability"

	"golang.org/x/text/language"
)

var (
	ErrInvalidEmailAddress = errors.New("invalid email address")
	ErrSendingEmail        = errors.New("error sending email")
	ErrRenderingTemplate   = errors.New("failed to render email template")
)

const receiptTemplate = `
<html>
	<body>
		<h1>Thank you{{if .DonorName}}, {{.DonorName}}{{end}}!</h1>
		<p>We received your {{.KindLabel}} donation of <strong>{{.Amount}}</strong> to {{.CampaignTitle}}.</p>
		{{if .TierName}}<p>You are a <strong>{{.TierName}}</strong> donor. Your lifetime giving is {{.LifetimeTotal}}.</p>{{end}}
		{{if .TaxDeductible}}<p>This donation is tax-deductible. No goods or services were provided in exchange for it. Please keep this email for your records.</p>{{end}}
		<p>Receipt number: {{.DonationID}}<br>Date: {{.Date}}</p>
	</body>
</html>
`

// Receipt is the data of one donation receipt
type Receipt struct {
	To            string
	DonorName     string
	DonationID    string
	CampaignTitle string
	Kind          string
	AmountMinor   int64
	TotalMinor    int64
	Currency      string
	TierName      string
	TaxDeductible bool
	DonatedAt     time.Time
}

type receiptView struct {
	DonorName     string
	DonationID    string
	CampaignTitle string
	KindLabel     string
	Amount        string
	LifetimeTotal string
	TierName      string
	TaxDeductible bool
	Date          string
}

// EmailService handles sending emails
type EmailService struct {
	mailClient    MailClient
	logger        *observability.Logger
	defaultSender string
	lang          language.Tag
	receipt       *template.Template
}

// New creates a new EmailService
func New(mailClient MailClient, defaultSender string, logger *observability.Logger) *EmailService {
	return &EmailService{
		mailClient:    mailClient,
		logger:        logger,
		defaultSender: defaultSender,
		lang:          language.AmericanEnglish,
		receipt:       template.Must(template.New("donation_receipt").Parse(receiptTemplate)),
	}
}

func kindLabel(kind string) string {
	switch kind {
	case "recurring":
		return "monthly"
	case "in_kind":
		return "in-kind"
	default:
		return "one-time"
	}
}

func (s *EmailService) money(minor int64, code string) (string, error) {
	c := currency.Normalize(code)
	amount, err := currency.FromMinorUnits(minor, c)
	if err != nil {
		return "", err
	}
	return currency.Format(amount, c, s.lang)
}

// RenderReceipt renders the receipt body
func (s *EmailService) RenderReceipt(r Receipt) (string, error) {
	view := receiptView{
		DonorName:     r.DonorName,
		DonationID:    r.DonationID,
		CampaignTitle: r.CampaignTitle,
		KindLabel:     kindLabel(r.Kind),
		TierName:      r.TierName,
		TaxDeductible: r.TaxDeductible,
		Date:          r.DonatedAt.UTC().Format("January 2, 2006"),
	}

	var err error
	if view.Amount, err = s.money(r.AmountMinor, r.Currency); err != nil {
		return "", err
	}
	if view.LifetimeTotal, err = s.money(r.TotalMinor, r.Currency); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := s.receipt.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// SendDonationReceipt sends the thank-you receipt for a completed donation
func (s *EmailService) SendDonationReceipt(ctx context.Context, r Receipt) error {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "email_type", Value: "donation_receipt"},
		observability.Field{Key: "donation_id", Value: r.DonationID},
	)

	if r.To == "" {
		return ErrInvalidEmailAddress
	}

	html, err := s.RenderReceipt(r)
	if err != nil {
		s.logger.Error(ctx, "failed to render donation receipt", err)
		return fmt.Errorf("%w: %s", ErrRenderingTemplate, err.Error())
	}

	_, err = s.mailClient.Send(ctx, mail.Message{
		From:    s.defaultSender,
		To:      r.To,
		Subject: "Thank you for your donation",
		HTML:    html,
	})
	if err != nil {
		s.logger.Error(ctx, "failed to send donation receipt", err)
		return fmt.Errorf("%w: %s", ErrSendingEmail, err.Error())
	}

	s.logger.Info(ctx, "donation receipt sent")
	return nil
}
