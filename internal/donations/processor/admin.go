package processor

import (
	"context"
	"errors"

	"charity-server/internal/cachekeys"
	"charity-server/internal/observability"
	"charity-server/internal/store"

	"github.com/google/uuid"
)

// AdminUpdate is the set of fields an administrator may change on a settled donation.
type AdminUpdate struct {
	AdminNote    *string
	Acknowledged *bool
}

// UpdateDonationAdmin edits the admin fields of a completed or failed donation. The cached
// donation reflects the edit immediately and is rolled back if the write fails.
func (p *DonationProcessor) UpdateDonationAdmin(ctx context.Context, donationID uuid.UUID, update AdminUpdate) (store.Donation, error) {
	ctx = observability.WithFields(ctx, observability.Field{Key: "donation_id", Value: donationID.String()})

	if update.AdminNote != nil && len([]rune(*update.AdminNote)) > maxNoteLength {
		return store.Donation{}, invalid("admin_note", "must be at most %d characters", maxNoteLength)
	}

	donation, err := p.store.GetDonationByID(ctx, donationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.Donation{}, ErrDonationNotFound
		}
		p.logger.Error(ctx, "failed to get donation", err)
		return store.Donation{}, ErrFailedToLoad
	}
	if !donation.IsTerminal() {
		return donation, ErrDonationNotSettled
	}

	tx := p.beginOptimistic(ctx, donation, func(d *store.Donation) {
		if update.AdminNote != nil {
			d.AdminNote = update.AdminNote
		}
		if update.Acknowledged != nil {
			d.Acknowledged = *update.Acknowledged
		}
	})

	updated, err := p.store.UpdateDonationAdmin(ctx, donationID, store.UpdateDonationAdminParams{
		AdminNote:    update.AdminNote,
		Acknowledged: update.Acknowledged,
	})
	p.settle(ctx, tx, err)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return store.Donation{}, ErrDonationNotFound
		case errors.Is(err, store.ErrConflict):
			return donation, ErrDonationNotSettled
		}
		p.logger.Error(ctx, "failed to update donation", err)
		return donation, ErrFailedToUpdate
	}

	p.invalidate(ctx, cachekeys.StatusChangeTargets(updated.DonorID, updated.CampaignID)...)
	p.logger.Info(ctx, "donation updated by admin")
	return updated, nil
}
