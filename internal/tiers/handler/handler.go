package handler

import (
	"context"
	"net/http"

	"charity-server/internal/apierrors"
	authhandler "charity-server/internal/auth/handler"
	"charity-server/internal/observability"
	"charity-server/internal/tiers"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TierReader answers tier questions for the HTTP layer
type TierReader interface {
	CurrentTier(ctx context.Context, donorID uuid.UUID) (tiers.DonorTier, error)
	SetOverride(ctx context.Context, donorID, setBy uuid.UUID, tier tiers.Tier, reason *string) (tiers.DonorTier, error)
	ClearOverride(ctx context.Context, donorID uuid.UUID) (tiers.DonorTier, error)
	Stats(ctx context.Context) ([]tiers.TierStat, error)
	Policy() tiers.Policy
}

type Handler struct {
	service TierReader
	logger  *observability.Logger
}

func New(service TierReader, logger *observability.Logger) Handler {
	return Handler{service: service, logger: logger}
}

// SetOverrideRequest pins a donor to a tier
type SetOverrideRequest struct {
	Tier   string  `json:"tier" binding:"required"`
	Reason *string `json:"reason" binding:"omitempty,max=500"`
}

type thresholdResponse struct {
	Tier        tiers.Tier `json:"tier"`
	DisplayName string     `json:"display_name"`
	MinAmount   string     `json:"min_amount"`
}

type policyResponse struct {
	Name       string              `json:"name"`
	Currency   string              `json:"currency"`
	Thresholds []thresholdResponse `json:"thresholds"`
}

func (h *Handler) HandleGetMyTier(c *gin.Context) {
	user, ok := authhandler.CurrentUser(c)
	if !ok {
		apierrors.Unauthorized(c, "Authentication required")
		return
	}

	current, err := h.service.CurrentTier(c.Request.Context(), user.UserID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, current)
}

// HandleGetPolicy lists the lifetime thresholds in major units.
func (h *Handler) HandleGetPolicy(c *gin.Context) {
	policy := h.service.Policy()
	resp := policyResponse{Name: policy.Name(), Currency: string(policy.Currency())}
	for _, th := range policy.Thresholds() {
		amount, err := policy.Amount(th.Tier)
		if err != nil {
			continue
		}
		resp.Thresholds = append(resp.Thresholds, thresholdResponse{
			Tier:        th.Tier,
			DisplayName: th.Tier.DisplayName(),
			MinAmount:   amount.String(),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) HandleGetDonorTier(c *gin.Context) {
	donorID, err := uuid.Parse(c.Param("donor_id"))
	if err != nil {
		apierrors.BadRequest(c, apierrors.CodeInvalidInput, "Invalid donor_id")
		return
	}

	current, err := h.service.CurrentTier(c.Request.Context(), donorID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, current)
}

func (h *Handler) HandleSetOverride(c *gin.Context) {
	ctx := c.Request.Context()
	admin, ok := authhandler.CurrentUser(c)
	if !ok {
		apierrors.Unauthorized(c, "Authentication required")
		return
	}
	donorID, err := uuid.Parse(c.Param("donor_id"))
	if err != nil {
		apierrors.BadRequest(c, apierrors.CodeInvalidInput, "Invalid donor_id")
		return
	}

	var req SetOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.RespondWithValidationError(c, err)
		return
	}
	tier, err := tiers.ParseTier(req.Tier)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	current, err := h.service.SetOverride(ctx, donorID, admin.UserID, tier, req.Reason)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, current)
}

func (h *Handler) HandleClearOverride(c *gin.Context) {
	donorID, err := uuid.Parse(c.Param("donor_id"))
	if err != nil {
		apierrors.BadRequest(c, apierrors.CodeInvalidInput, "Invalid donor_id")
		return
	}

	current, err := h.service.ClearOverride(c.Request.Context(), donorID)
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, current)
}

func (h *Handler) HandleGetStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		apierrors.RespondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tiers": stats})
}
