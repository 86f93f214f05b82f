package processor

import (
	"context"
	"errors"
	"time"

	"charity-server/internal/cachekeys"
	"charity-server/internal/events"
	"charity-server/internal/metrics"
	billing "charity-server/internal/money/billing/processor"
	"charity-server/internal/money/currency"
	"charity-server/internal/observability"
	"charity-server/internal/store"

	"github.com/google/uuid"
)

const offlineRefPrefix = "offline-"

// Confirmation is a gateway's word that the payment behind ExternalRef succeeded.
type Confirmation struct {
	ExternalRef string
	PaymentRef  *string
}

// ConfirmPayment completes the pending donation behind the reference. Repeated confirmations
// of the same reference change nothing and publish nothing.
func (p *DonationProcessor) ConfirmPayment(ctx context.Context, c Confirmation) (store.Donation, error) {
	if c.ExternalRef == "" {
		return store.Donation{}, invalid("external_ref", "is required")
	}
	ctx = observability.WithFields(ctx, observability.Field{Key: "external_ref", Value: c.ExternalRef})

	result, err := p.store.CompleteDonation(ctx, store.CompleteDonationParams{
		ExternalRef: c.ExternalRef,
		PaymentRef:  c.PaymentRef,
		Classify:    p.tiers.ClassifyStored,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return store.Donation{}, ErrDonationNotFound
		case errors.Is(err, store.ErrConflict):
			return store.Donation{}, ErrDonationSettled
		}
		p.logger.Error(ctx, "failed to complete donation", err)
		return store.Donation{}, ErrFailedToConfirm
	}

	d := result.Donation
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "donation_id", Value: d.ID.String()},
		observability.Field{Key: "donor_id", Value: d.DonorID.String()},
	)
	if result.AlreadyCompleted {
		p.logger.Info(ctx, "donation already completed, ignoring repeated confirmation")
		return d, nil
	}

	metrics.RecordDonationTransition(store.DonationStatusCompleted, "payment_confirmed")
	if amount, err := currency.FromMinorUnits(d.AmountMinor, currency.Code(d.Currency)); err == nil {
		metrics.RecordDonationAmount(d.Currency, d.Kind, amount.InexactFloat64())
	}
	p.invalidateDonation(ctx, d, cachekeys.CompletionTargets(d.DonorID, d.CampaignID, result.TierChanged()))

	err = p.events.PublishDonationCompleted(ctx, events.DonationCompleted{
		DonationID:    d.ID,
		DonorID:       d.DonorID,
		CampaignID:    d.CampaignID,
		DonorEmail:    d.DonorEmail,
		AmountMinor:   d.AmountMinor,
		Currency:      d.Currency,
		Kind:          d.Kind,
		TaxDeductible: d.TaxDeductible,
		IsAnonymous:   d.IsAnonymous,
		DonorTier:     result.Profile.DonationTier,
		TotalMinor:    result.Profile.TotalDonatedMinor,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to publish donation completed event", err)
	}

	p.logger.Info(ctx, "donation completed")
	return d, nil
}

// FailPayment marks the pending donation behind ref failed. Failing an already failed
// donation is a no-op; a completed donation stays completed and yields ErrDonationSettled.
func (p *DonationProcessor) FailPayment(ctx context.Context, ref, reason string) (store.Donation, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "external_ref", Value: ref})

	failed, changed, err := p.store.FailDonationByExternalRef(ctx, ref, reason)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return store.Donation{}, ErrDonationNotFound
		case errors.Is(err, store.ErrConflict):
			return failed, ErrDonationSettled
		}
		p.logger.Error(ctx, "failed to mark donation failed", err)
		return store.Donation{}, ErrFailedToUpdate
	}
	if changed {
		p.afterFailure(ctx, failed, reason)
	}
	return failed, nil
}

// HandleCheckoutEvent applies a verified checkout webhook. Events for sessions that are not
// ours, and events that arrive after the donation settled, are acknowledged without change.
func (p *DonationProcessor) HandleCheckoutEvent(ctx context.Context, event billing.CheckoutEvent) error {
	ctx = observability.WithFields(ctx, observability.Field{Key: "session_id", Value: event.Session.SessionID})

	var err error
	switch event.Outcome {
	case billing.CheckoutPaid:
		_, err = p.ConfirmPayment(ctx, Confirmation{ExternalRef: event.Session.SessionID, PaymentRef: event.Session.PaymentRef})
		if errors.Is(err, ErrDonationSettled) {
			// Money arrived for a donation already closed as failed.
			p.logger.Error(ctx, "payment received for failed donation, needs manual review", err)
			return nil
		}
	case billing.CheckoutFailed:
		_, err = p.FailPayment(ctx, event.Session.SessionID, event.FailureReason)
		if errors.Is(err, ErrDonationSettled) {
			p.logger.Warn(ctx, "failure event for completed donation ignored")
			return nil
		}
	default:
		return nil
	}

	if errors.Is(err, ErrDonationNotFound) {
		p.logger.Warn(ctx, "checkout event for unknown donation ignored")
		return nil
	}
	return err
}

// PollPaymentSuccess is the donor returning from checkout. It asks the gateway for the
// session state and settles the donation if the webhook has not yet done so.
func (p *DonationProcessor) PollPaymentSuccess(ctx context.Context, donorID uuid.UUID, sessionID string) (Attempt, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "donor_id", Value: donorID.String()},
		observability.Field{Key: "session_id", Value: sessionID},
	)

	donation, err := p.store.GetDonationByExternalRef(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Attempt{}, ErrDonationNotFound
		}
		p.logger.Error(ctx, "failed to get donation by session", err)
		return Attempt{}, ErrFailedToLoad
	}
	if donation.DonorID != donorID {
		return Attempt{}, ErrDonationNotFound
	}

	attempt := Attempt{State: StateOf(donation), Donation: donation, SessionID: sessionID}
	if attempt.State.Terminal() {
		return attempt, nil
	}

	info, err := p.checkout.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return attempt, err
	}

	switch {
	case info.Paid():
		completed, err := p.ConfirmPayment(ctx, Confirmation{ExternalRef: sessionID, PaymentRef: info.PaymentRef})
		if err != nil && !errors.Is(err, ErrDonationSettled) {
			return attempt, err
		}
		if err == nil {
			attempt.Donation = completed
		}
	case info.Expired():
		failed, err := p.FailPayment(ctx, sessionID, store.FailureReasonExpired)
		if err != nil && !errors.Is(err, ErrDonationSettled) {
			return attempt, err
		}
		attempt.Donation = failed
	default:
		return attempt, ErrPaymentPending
	}

	attempt.State = StateOf(attempt.Donation)
	return attempt, nil
}

// ConfirmOfflineDonation records receipt of a check, cash or transfer donation. reference is
// whatever identifies the payment offline, such as a check number.
func (p *DonationProcessor) ConfirmOfflineDonation(ctx context.Context, donationID uuid.UUID, reference *string) (store.Donation, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "donation_id", Value: donationID.String()})

	donation, err := p.store.GetDonationByID(ctx, donationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Donation{}, ErrDonationNotFound
		}
		p.logger.Error(ctx, "failed to get donation", err)
		return store.Donation{}, ErrFailedToLoad
	}
	if IsOnline(donation.PaymentMethod) {
		return donation, ErrNotOfflineDonation
	}
	if donation.Status == store.DonationStatusFailed {
		return donation, ErrDonationSettled
	}

	ref := offlineRefPrefix + donation.ID.String()
	if donation.ExternalRef != nil {
		ref = *donation.ExternalRef
	} else if err := p.store.SetDonationExternalRef(ctx, donation.ID, ref); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return donation, ErrDonationSettled
		}
		p.logger.Error(ctx, "failed to set offline reference", err)
		return donation, ErrFailedToConfirm
	}

	return p.ConfirmPayment(ctx, Confirmation{ExternalRef: ref, PaymentRef: reference})
}

// ReconcileResult counts what one reconciliation pass did.
type ReconcileResult struct {
	Scanned   int
	Abandoned int
	Completed int
	Errors    int
}

// ReconcileAbandoned fails online donations still pending after olderThan. Each session is
// checked first: a paid one is completed instead, an open one is expired so it cannot be
// paid later. Donations whose session cannot be checked are left for the next pass.
func (p *DonationProcessor) ReconcileAbandoned(ctx context.Context, olderThan time.Duration, limit int) (ReconcileResult, error) {
	var res ReconcileResult
	cutoff := p.now().Add(-olderThan)

	stale, err := p.store.ListStalePendingDonations(ctx, cutoff, onlineMethods, limit)
	if err != nil {
		p.logger.Error(ctx, "failed to list stale pending donations", err)
		return res, ErrFailedToLoad
	}

	for _, d := range stale {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Scanned++
		dctx := observability.WithFields(ctx, observability.Field{Key: "donation_id", Value: d.ID.String()})

		if d.ExternalRef != nil {
			settled, err := p.checkStaleSession(dctx, d, &res)
			if err != nil {
				res.Errors++
				continue
			}
			if settled {
				continue
			}
		}

		failed, changed, err := p.store.FailDonationByID(dctx, d.ID, store.FailureReasonAbandoned)
		if err != nil {
			if !errors.Is(err, store.ErrConflict) {
				p.logger.Error(dctx, "failed to mark abandoned donation failed", err)
				res.Errors++
			}
			continue
		}
		if changed {
			res.Abandoned++
			p.afterFailure(dctx, failed, store.FailureReasonAbandoned)
		}
	}

	if res.Scanned > 0 {
		p.logger.Info(observability.WithFields(ctx,
			observability.Field{Key: "scanned", Value: res.Scanned},
			observability.Field{Key: "abandoned", Value: res.Abandoned},
			observability.Field{Key: "completed", Value: res.Completed},
			observability.Field{Key: "errors", Value: res.Errors},
		), "reconciled stale pending donations")
	}
	return res, nil
}

// checkStaleSession reports true when the session turned out to be paid and the donation
// was completed instead of abandoned.
func (p *DonationProcessor) checkStaleSession(ctx context.Context, d store.Donation, res *ReconcileResult) (bool, error) {
	info, err := p.checkout.GetCheckoutSession(ctx, *d.ExternalRef)
	if errors.Is(err, billing.ErrCheckoutNotFound) {
		return false, nil
	}
	if err != nil {
		p.logger.Error(ctx, "failed to check stale checkout session", err)
		return false, err
	}

	if info.Paid() {
		if _, err := p.ConfirmPayment(ctx, Confirmation{ExternalRef: *d.ExternalRef, PaymentRef: info.PaymentRef}); err != nil {
			return false, err
		}
		res.Completed++
		return true, nil
	}
	if !info.Expired() {
		if err := p.checkout.ExpireCheckoutSession(ctx, *d.ExternalRef); err != nil {
			return false, err
		}
	}
	return false, nil
}
