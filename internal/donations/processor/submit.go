package processor

import (
	"context"
	"encoding/json"
	"errors"

	"charity-server/internal/cachekeys"
	"charity-server/internal/metrics"
	billing "charity-server/internal/money/billing/processor"
	"charity-server/internal/money/currency"
	"charity-server/internal/observability"
	"charity-server/internal/querycache"
	"charity-server/internal/store"
	"charity-server/internal/tiers"

	"github.com/google/uuid"
)

// SubmitDonation validates the form, records a pending donation and opens one checkout
// session for it. Gateway calls are never retried here; a failed call marks the donation
// failed and returns the gateway error so the donor can retry. Offline payment methods skip
// checkout and wait for an administrator to confirm receipt.
func (p *DonationProcessor) SubmitDonation(ctx context.Context, donorID uuid.UUID, form Form) (Attempt, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "donor_id", Value: donorID.String()},
		observability.Field{Key: "campaign_id", Value: form.CampaignID.String()},
	)

	attempt := Attempt{State: StateDraft}
	if err := p.limits.Validate(&form); err != nil {
		return attempt, err
	}
	if err := attempt.advance(StateSubmitting); err != nil {
		return attempt, err
	}

	campaign, err := p.store.GetCampaignByID(ctx, form.CampaignID)
	if err != nil {
		attempt.State = StateDraft
		if errors.Is(err, store.ErrNotFound) {
			return attempt, ErrCampaignNotFound
		}
		p.logger.Error(ctx, "failed to get campaign", err)
		return attempt, ErrFailedToSubmit
	}
	if campaign.Status != store.CampaignStatusActive {
		attempt.State = StateDraft
		return attempt, ErrCampaignClosed
	}

	amount := p.limits.FinalAmount(form)
	amountMinor, err := currency.ToMinorUnits(amount, currency.Code(form.Currency))
	if err != nil {
		attempt.State = StateDraft
		return attempt, invalid("amount", "has more decimal places than %s allows", form.Currency)
	}

	var selectedTier *string
	if form.SelectedTier != nil {
		t := string(*form.SelectedTier)
		selectedTier = &t
	}

	donation, err := p.store.CreateDonation(ctx, store.CreateDonationParams{
		DonorID:       donorID,
		DonorEmail:    form.Email,
		CampaignID:    form.CampaignID,
		AmountMinor:   amountMinor,
		Currency:      form.Currency,
		Kind:          form.Kind,
		PaymentMethod: form.PaymentMethod,
		SelectedTier:  selectedTier,
		IsAnonymous:   form.IsAnonymous,
		TaxDeductible: form.TaxDeductible,
		Note:          form.Note,
	})
	if err != nil {
		p.logger.Error(ctx, "failed to create donation", err)
		attempt.State = StateDraft
		return attempt, ErrFailedToSubmit
	}
	attempt.Donation = donation
	ctx = observability.WithFields(ctx, observability.Field{Key: "donation_id", Value: donation.ID.String()})
	metrics.RecordDonationTransition(store.DonationStatusPending, "submitted")
	p.invalidate(ctx, cachekeys.StatusChangeTargets(donorID, form.CampaignID)...)

	if !IsOnline(donation.PaymentMethod) {
		if err := attempt.advance(StateAwaitingPayment); err != nil {
			return attempt, err
		}
		p.logger.Info(ctx, "offline donation recorded, awaiting receipt")
		return attempt, nil
	}

	session, err := p.checkout.CreateDonationCheckout(ctx, billing.CheckoutRequest{
		DonationID:    donation.ID,
		DonorID:       donorID,
		CampaignID:    campaign.ID,
		CampaignTitle: campaign.Title,
		AmountMinor:   amountMinor,
		Currency:      donation.Currency,
		Recurring:     donation.Kind == store.DonationKindRecurring,
		Email:         form.Email,
	})
	if err != nil {
		p.failSubmission(ctx, &attempt, store.FailureReasonGateway)
		return attempt, err
	}

	if err := p.store.SetDonationExternalRef(ctx, donation.ID, session.ID); err != nil {
		p.logger.Error(ctx, "failed to store checkout session on donation", err)
		if expireErr := p.checkout.ExpireCheckoutSession(context.WithoutCancel(ctx), session.ID); expireErr != nil {
			p.logger.Error(ctx, "failed to expire orphaned checkout session", expireErr)
		}
		p.failSubmission(ctx, &attempt, store.FailureReasonGateway)
		return attempt, ErrFailedToSubmit
	}

	attempt.Donation.ExternalRef = &session.ID
	attempt.CheckoutURL = session.URL
	attempt.SessionID = session.ID
	if err := attempt.advance(StateAwaitingPayment); err != nil {
		return attempt, err
	}

	p.logger.Info(ctx, "donation submitted, awaiting payment")
	return attempt, nil
}

// failSubmission marks the just-created donation failed so no pending row is left behind.
func (p *DonationProcessor) failSubmission(ctx context.Context, attempt *Attempt, reason string) {
	ctx = context.WithoutCancel(ctx)
	failed, changed, err := p.store.FailDonationByID(ctx, attempt.Donation.ID, reason)
	if err != nil {
		p.logger.Error(ctx, "failed to mark donation failed after submission error", err)
	} else {
		attempt.Donation = failed
	}
	attempt.State = StateFailed
	if changed {
		metrics.RecordDonationTransition(store.DonationStatusFailed, reason)
		p.invalidateDonation(ctx, failed, cachekeys.StatusChangeTargets(failed.DonorID, failed.CampaignID))
	}
}

// RetryDonation submits a failed donation again as a new attempt with the same details.
func (p *DonationProcessor) RetryDonation(ctx context.Context, donorID, donationID uuid.UUID) (Attempt, error) {
	donation, err := p.ownedDonation(ctx, donorID, donationID)
	if err != nil {
		return Attempt{}, err
	}
	if StateOf(donation) != StateFailed {
		return Attempt{State: StateOf(donation), Donation: donation}, ErrNotRetryable
	}
	if _, err := Transition(StateFailed, StateDraft); err != nil {
		return Attempt{}, err
	}

	form := Form{
		CampaignID:    donation.CampaignID,
		Kind:          donation.Kind,
		Currency:      donation.Currency,
		PaymentMethod: donation.PaymentMethod,
		IsAnonymous:   donation.IsAnonymous,
		TaxDeductible: donation.TaxDeductible,
		Note:          donation.Note,
		Email:         donation.DonorEmail,
	}
	if donation.SelectedTier != nil {
		t, err := tiers.ParseTier(*donation.SelectedTier)
		if err == nil {
			form.SelectedTier = &t
		}
	}
	if form.SelectedTier == nil {
		amount, err := currency.FromMinorUnits(donation.AmountMinor, currency.Code(donation.Currency))
		if err != nil {
			p.logger.Error(ctx, "failed to convert stored amount", err)
			return Attempt{}, ErrFailedToSubmit
		}
		form.Amount = &amount
	}

	return p.SubmitDonation(ctx, donorID, form)
}

// CancelDonation is the donor abandoning checkout. The cached donation shows the failure
// at once and is restored if the write does not go through.
func (p *DonationProcessor) CancelDonation(ctx context.Context, donorID, donationID uuid.UUID) (store.Donation, error) {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "donor_id", Value: donorID.String()},
		observability.Field{Key: "donation_id", Value: donationID.String()},
	)

	donation, err := p.ownedDonation(ctx, donorID, donationID)
	if err != nil {
		return store.Donation{}, err
	}
	switch donation.Status {
	case store.DonationStatusCompleted:
		return donation, ErrDonationSettled
	case store.DonationStatusFailed:
		return donation, nil
	}

	reason := store.FailureReasonCancelled
	tx := p.beginOptimistic(ctx, donation, func(d *store.Donation) {
		d.Status = store.DonationStatusFailed
		d.FailureReason = &reason
	})

	failed, changed, err := p.store.FailDonationByID(ctx, donation.ID, reason)
	p.settle(ctx, tx, err)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return donation, ErrDonationSettled
		}
		p.logger.Error(ctx, "failed to cancel donation", err)
		return donation, ErrFailedToUpdate
	}

	if changed {
		p.afterFailure(ctx, failed, reason)
		if failed.ExternalRef != nil {
			if err := p.checkout.ExpireCheckoutSession(ctx, *failed.ExternalRef); err != nil {
				p.logger.Error(ctx, "failed to expire cancelled checkout session", err)
			}
		}
	}
	return failed, nil
}

// beginOptimistic applies mutate to the cached donation, seeding it from base when nothing
// is cached. A cache failure only costs the optimistic view, so it is logged and skipped.
func (p *DonationProcessor) beginOptimistic(ctx context.Context, base store.Donation, mutate func(*store.Donation)) *querycache.Tx {
	tx, err := p.cache.Begin(ctx, cachekeys.DonationKey(base.ID), func(current []byte, found bool) ([]byte, error) {
		d := base
		if found {
			if err := json.Unmarshal(current, &d); err != nil {
				d = base
			}
		}
		mutate(&d)
		return json.Marshal(d)
	})
	if err != nil {
		p.logger.Error(ctx, "failed to apply optimistic donation update", err)
		return nil
	}
	return tx
}

func (p *DonationProcessor) settle(ctx context.Context, tx *querycache.Tx, mutationErr error) {
	if tx == nil {
		return
	}
	if err := tx.Settle(context.WithoutCancel(ctx), mutationErr); err != nil {
		p.logger.Error(ctx, "failed to settle optimistic donation update", err)
	}
}

// afterFailure records, invalidates and announces a donation that just became failed.
func (p *DonationProcessor) afterFailure(ctx context.Context, d store.Donation, reason string) {
	metrics.RecordDonationTransition(store.DonationStatusFailed, reason)
	p.invalidateDonation(ctx, d, cachekeys.StatusChangeTargets(d.DonorID, d.CampaignID))
	if err := p.events.PublishDonationFailed(ctx, d.ID, d.DonorID, d.CampaignID, reason); err != nil {
		p.logger.Error(ctx, "failed to publish donation failed event", err)
	}
}
