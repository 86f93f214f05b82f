package handler

import (
	"errors"
	"net/http"

	"charity-server/internal/apierrors"
	donations "charity-server/internal/donations/processor"
	"charity-server/internal/filters"
	"charity-server/internal/tiers"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubmitDonationRequest represents the donation form. Amount is in major units.
type SubmitDonationRequest struct {
	CampaignID    string           `json:"campaign_id" binding:"required,uuid"`
	Kind          string           `json:"kind"`
	Amount        *decimal.Decimal `json:"amount"`
	Currency      string           `json:"currency" binding:"omitempty,len=3"`
	SelectedTier  *string          `json:"selected_tier"`
	PaymentMethod string           `json:"payment_method"`
	IsAnonymous   bool             `json:"is_anonymous"`
	TaxDeductible bool             `json:"tax_deductible"`
	Note          *string          `json:"note" binding:"omitempty,max=1000"`
	Email         *string          `json:"email" binding:"omitempty,email"`
}

func (r SubmitDonationRequest) form() (donations.Form, error) {
	form := donations.Form{
		CampaignID:    uuid.MustParse(r.CampaignID),
		Kind:          r.Kind,
		Amount:        r.Amount,
		Currency:      r.Currency,
		PaymentMethod: r.PaymentMethod,
		IsAnonymous:   r.IsAnonymous,
		TaxDeductible: r.TaxDeductible,
		Note:          r.Note,
		Email:         r.Email,
	}
	if r.SelectedTier != nil && *r.SelectedTier != "" {
		t, err := tiers.ParseTier(*r.SelectedTier)
		if err != nil {
			return form, &donations.ValidationError{Field: "selected_tier", Reason: "unknown tier"}
		}
		form.SelectedTier = &t
	}
	return form, nil
}

func (h *Handler) HandleSubmitDonation(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req SubmitDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}
	form, err := req.form()
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}
	if form.Email == nil && user.Email != "" {
		form.Email = &user.Email
	}

	attempt, err := h.processor.SubmitDonation(ctx, user.UserID, form)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	respondAttempt(c, http.StatusCreated, attempt)
}

func (h *Handler) HandleListMyDonations(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := currentUser(c)
	if !ok {
		return
	}

	f, err := filters.FromQuery(c.Request.URL.Query())
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	scope := donations.ListScope{DonorID: &user.UserID}
	if raw := c.Query("campaign_id"); raw != "" {
		campaignID, err := uuid.Parse(raw)
		if err != nil {
			apierrors.BadRequest(c, apierrors.CodeInvalidFilter, "Invalid campaign_id")
			return
		}
		scope.CampaignID = &campaignID
	}

	list, err := h.processor.ListDonations(ctx, scope, f)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *Handler) HandleGetDonation(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := currentUser(c)
	if !ok {
		return
	}
	donationID, ok := uuidParam(c, "donation_id")
	if !ok {
		return
	}

	donation, err := h.processor.GetDonation(ctx, user.UserID, user.IsAdmin(), donationID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, donation)
}

func (h *Handler) HandleCancelDonation(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := currentUser(c)
	if !ok {
		return
	}
	donationID, ok := uuidParam(c, "donation_id")
	if !ok {
		return
	}

	donation, err := h.processor.CancelDonation(ctx, user.UserID, donationID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	respondAttempt(c, http.StatusOK, donations.Attempt{State: donations.StateOf(donation), Donation: donation})
}

func (h *Handler) HandleRetryDonation(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := currentUser(c)
	if !ok {
		return
	}
	donationID, ok := uuidParam(c, "donation_id")
	if !ok {
		return
	}

	attempt, err := h.processor.RetryDonation(ctx, user.UserID, donationID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	respondAttempt(c, http.StatusCreated, attempt)
}

// HandlePaymentSuccess is where checkout sends the donor back. A payment still processing
// answers 202 so the client polls again.
func (h *Handler) HandlePaymentSuccess(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID := c.Query("session_id")
	if sessionID == "" {
		apierrors.BadRequest(c, apierrors.CodeInvalidInput, "session_id is required")
		return
	}

	attempt, err := h.processor.PollPaymentSuccess(ctx, user.UserID, sessionID)
	if errors.Is(err, donations.ErrPaymentPending) {
		respondAttempt(c, http.StatusAccepted, attempt)
		return
	}
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	respondAttempt(c, http.StatusOK, attempt)
}

func (h *Handler) HandleGetMyProfile(c *gin.Context) {
	ctx := c.Request.Context()
	user, ok := currentUser(c)
	if !ok {
		return
	}

	profile, err := h.processor.GetDonorProfile(ctx, user.UserID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

func (h *Handler) HandleGetCampaignStats(c *gin.Context) {
	ctx := c.Request.Context()
	campaignID, ok := uuidParam(c, "campaign_id")
	if !ok {
		return
	}

	stats, err := h.processor.GetCampaignStats(ctx, campaignID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

type tierOption struct {
	Tier        tiers.Tier      `json:"tier"`
	DisplayName string          `json:"display_name"`
	Amount      decimal.Decimal `json:"amount"`
}

type donationOptionsResponse struct {
	Currency      string       `json:"currency"`
	MinAmount     string       `json:"min_amount"`
	MaxAmount     string       `json:"max_amount"`
	RecurringTier []tierOption `json:"recurring_tiers"`
}

// HandleGetDonationOptions lists the bounds and monthly tier amounts the form offers.
func (h *Handler) HandleGetDonationOptions(c *gin.Context) {
	limits := h.processor.Limits()
	resp := donationOptionsResponse{
		Currency:  string(limits.Currency),
		MinAmount: limits.Min.String(),
		MaxAmount: limits.Max.String(),
	}
	for _, th := range limits.Recurring.Thresholds() {
		amount, err := limits.Recurring.Amount(th.Tier)
		if err != nil {
			continue
		}
		resp.RecurringTier = append(resp.RecurringTier, tierOption{
			Tier:        th.Tier,
			DisplayName: th.Tier.DisplayName(),
			Amount:      amount,
		})
	}

	c.JSON(http.StatusOK, resp)
}
