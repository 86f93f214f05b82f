package api

import (
	"net/http"

	authHandler "charity-server/internal/auth/handler"
	donationHandler "charity-server/internal/donations/handler"
	billingHandler "charity-server/internal/money/billing/handler"
	tierHandler "charity-server/internal/tiers/handler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type API struct {
	router          *gin.RouterGroup
	authHandler     authHandler.Handler
	billingHandler  billingHandler.Handler
	donationHandler donationHandler.Handler
	tierHandler     tierHandler.Handler
	submitLimit     gin.HandlerFunc
}

func New(
	router *gin.RouterGroup,
	authHandler authHandler.Handler,
	billingHandler billingHandler.Handler,
	donationHandler donationHandler.Handler,
	tierHandler tierHandler.Handler,
	submitLimit gin.HandlerFunc,
) API {
	return API{
		router:          router,
		authHandler:     authHandler,
		billingHandler:  billingHandler,
		donationHandler: donationHandler,
		tierHandler:     tierHandler,
		submitLimit:     submitLimit,
	}
}

func (a *API) RegisterRoutes() {
	a.Health()
	a.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiGroup := a.router.Group("/api/v1")
	{
		publicGroup := apiGroup.Group("/public")
		publicGroup.GET("/donation-options", a.donationHandler.HandleGetDonationOptions)
		publicGroup.GET("/campaigns/:campaign_id/stats", a.donationHandler.HandleGetCampaignStats)
		publicGroup.GET("/tiers/policy", a.tierHandler.HandleGetPolicy)
	}

	protectedGroup := apiGroup.Group("/protected", a.authHandler.HandleJWTMiddleware)
	{
		protectedGroup.POST("/donations", a.submitLimit, a.donationHandler.HandleSubmitDonation)
		protectedGroup.GET("/donations", a.donationHandler.HandleListMyDonations)
		protectedGroup.GET("/donations/:donation_id", a.donationHandler.HandleGetDonation)
		protectedGroup.POST("/donations/:donation_id/cancel", a.donationHandler.HandleCancelDonation)
		protectedGroup.POST("/donations/:donation_id/retry", a.submitLimit, a.donationHandler.HandleRetryDonation)
		protectedGroup.GET("/checkout/success", a.donationHandler.HandlePaymentSuccess)
		protectedGroup.GET("/profile", a.donationHandler.HandleGetMyProfile)
		protectedGroup.GET("/tier", a.tierHandler.HandleGetMyTier)
	}

	adminGroup := apiGroup.Group("/admin", a.authHandler.HandleJWTMiddleware, a.authHandler.RequireAdmin)
	{
		adminGroup.GET("/donations", a.donationHandler.HandleAdminListDonations)
		adminGroup.GET("/donations/:donation_id", a.donationHandler.HandleGetDonation)
		adminGroup.PATCH("/donations/:donation_id", a.donationHandler.HandleAdminUpdateDonation)
		adminGroup.POST("/donations/:donation_id/confirm", a.donationHandler.HandleAdminConfirmOfflineDonation)
		adminGroup.GET("/donors/:donor_id/tier", a.tierHandler.HandleGetDonorTier)
		adminGroup.PUT("/donors/:donor_id/tier-override", a.tierHandler.HandleSetOverride)
		adminGroup.DELETE("/donors/:donor_id/tier-override", a.tierHandler.HandleClearOverride)
		adminGroup.GET("/tiers/stats", a.tierHandler.HandleGetStats)
	}

	apiGroup.POST("/billing/webhook", a.billingHandler.HandleWebhook)
}

func (a *API) Health() {
	a.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
}
