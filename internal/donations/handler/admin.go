package handler

import (
	"net/http"

	"charity-server/internal/apierrors"
	donations "charity-server/internal/donations/processor"
	"charity-server/internal/filters"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UpdateDonationRequest represents the admin edit of a settled donation
type UpdateDonationRequest struct {
	AdminNote    *string `json:"admin_note" binding:"omitempty,max=1000"`
	Acknowledged *bool   `json:"acknowledged"`
}

// ConfirmOfflineDonationRequest identifies the received check, cash or transfer
type ConfirmOfflineDonationRequest struct {
	Reference *string `json:"reference" binding:"omitempty,max=255"`
}

func (h *Handler) HandleAdminListDonations(c *gin.Context) {
	ctx := c.Request.Context()

	f, err := filters.FromQuery(c.Request.URL.Query())
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	var scope donations.ListScope
	for param, target := range map[string]**uuid.UUID{"campaign_id": &scope.CampaignID, "donor_id": &scope.DonorID} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			apierrors.BadRequest(c, apierrors.CodeInvalidFilter, "Invalid "+param)
			return
		}
		*target = &id
	}

	list, err := h.processor.ListDonations(ctx, scope, f)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *Handler) HandleAdminUpdateDonation(c *gin.Context) {
	ctx := c.Request.Context()
	donationID, ok := uuidParam(c, "donation_id")
	if !ok {
		return
	}

	var req UpdateDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}
	if req.AdminNote == nil && req.Acknowledged == nil {
		apierrors.BadRequest(c, apierrors.CodeInvalidInput, "Nothing to update")
		return
	}

	donation, err := h.processor.UpdateDonationAdmin(ctx, donationID, donations.AdminUpdate{
		AdminNote:    req.AdminNote,
		Acknowledged: req.Acknowledged,
	})
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, donation)
}

func (h *Handler) HandleAdminConfirmOfflineDonation(c *gin.Context) {
	ctx := c.Request.Context()
	donationID, ok := uuidParam(c, "donation_id")
	if !ok {
		return
	}

	var req ConfirmOfflineDonationRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.RespondWithValidationError(c, err)
			return
		}
	}

	donation, err := h.processor.ConfirmOfflineDonation(ctx, donationID, req.Reference)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, donation)
}
