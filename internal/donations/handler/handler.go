package handler

import (
	"context"

	"charity-server/internal/apierrors"
	authhandler "charity-server/internal/auth/handler"
	"charity-server/internal/auth/processor"
	donations "charity-server/internal/donations/processor"
	"charity-server/internal/filters"
	"charity-server/internal/observability"
	"charity-server/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// DonationService is the donation pipeline as the HTTP layer uses it
type DonationService interface {
	Limits() donations.Limits
	SubmitDonation(ctx context.Context, donorID uuid.UUID, form donations.Form) (donations.Attempt, error)
	RetryDonation(ctx context.Context, donorID, donationID uuid.UUID) (donations.Attempt, error)
	CancelDonation(ctx context.Context, donorID, donationID uuid.UUID) (store.Donation, error)
	PollPaymentSuccess(ctx context.Context, donorID uuid.UUID, sessionID string) (donations.Attempt, error)
	ConfirmOfflineDonation(ctx context.Context, donationID uuid.UUID, reference *string) (store.Donation, error)
	UpdateDonationAdmin(ctx context.Context, donationID uuid.UUID, update donations.AdminUpdate) (store.Donation, error)
	ListDonations(ctx context.Context, scope donations.ListScope, f filters.FilterState) (donations.DonationList, error)
	GetDonation(ctx context.Context, viewerID uuid.UUID, admin bool, donationID uuid.UUID) (store.Donation, error)
	GetDonorProfile(ctx context.Context, donorID uuid.UUID) (store.DonorProfile, error)
	GetCampaignStats(ctx context.Context, campaignID uuid.UUID) (store.CampaignStats, error)
}

type Handler struct {
	processor DonationService
	logger    *observability.Logger
}

func New(processor DonationService, logger *observability.Logger) Handler {
	return Handler{processor: processor, logger: logger}
}

// currentUser reads the authenticated caller or writes a 401.
func currentUser(c *gin.Context) (processor.Identity, bool) {
	id, ok := authhandler.CurrentUser(c)
	if !ok {
		apierrors.Unauthorized(c, "Authentication required")
		return processor.Identity{}, false
	}
	return id, true
}

// uuidParam parses a path parameter or writes a 400.
func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		apierrors.BadRequest(c, apierrors.CodeInvalidInput, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// attemptResponse is what the donor's client needs to continue a donation.
type attemptResponse struct {
	State       donations.State `json:"state"`
	Donation    store.Donation  `json:"donation"`
	CheckoutURL string          `json:"checkout_url,omitempty"`
	SessionID   string          `json:"session_id,omitempty"`
}

func newAttemptResponse(a donations.Attempt) attemptResponse {
	return attemptResponse{State: a.State, Donation: a.Donation, CheckoutURL: a.CheckoutURL, SessionID: a.SessionID}
}

func respondAttempt(c *gin.Context, status int, a donations.Attempt) {
	c.JSON(status, newAttemptResponse(a))
}
