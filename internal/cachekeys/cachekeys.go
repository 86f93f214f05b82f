// Package cachekeys names the cached read models and the scopes a mutation touches.
package cachekeys

import (
	"charity-server/internal/querycache"

	"github.com/google/uuid"
)

// Cached resources.
const (
	Donations     = "donations"
	Donation      = "donation"
	DonorProfile  = "donor_profile"
	CampaignStats = "campaign_stats"
	TierStats     = "tier_stats"
)

// DonorScope scopes a read to one donor.
func DonorScope(donorID uuid.UUID) string {
	return "donor=" + donorID.String()
}

// CampaignScope scopes a read to one campaign.
func CampaignScope(campaignID uuid.UUID) string {
	return "campaign=" + campaignID.String()
}

// DonationKey addresses a single donation.
func DonationKey(donationID uuid.UUID) querycache.Key {
	return querycache.NewKey(Donation, "donation="+donationID.String(), "")
}

// DonorProfileKey addresses a donor's profile.
func DonorProfileKey(donorID uuid.UUID) querycache.Key {
	return querycache.NewKey(DonorProfile, DonorScope(donorID), "")
}

// CampaignStatsKey addresses a campaign's rollup.
func CampaignStatsKey(campaignID uuid.UUID) querycache.Key {
	return querycache.NewKey(CampaignStats, CampaignScope(campaignID), "")
}

// TierStatsKey addresses the global donor count per tier.
func TierStatsKey() querycache.Key {
	return querycache.NewKey(TierStats, querycache.GlobalScope, "")
}

// CompletionTargets is what a confirmed donation invalidates: everything scoped to the donor,
// everything scoped to the campaign, every global donation list and the global tier stats.
// When the donor moved tier, every campaign's per-tier breakdown counts them differently, so
// all campaign stats go too.
func CompletionTargets(donorID, campaignID uuid.UUID, tierChanged bool) []querycache.Target {
	targets := []querycache.Target{
		querycache.ScopeTarget(Donations, DonorScope(donorID)),
		querycache.ScopeTarget(DonorProfile, DonorScope(donorID)),
		querycache.ScopeTarget(Donations, CampaignScope(campaignID)),
		querycache.ScopeTarget(CampaignStats, CampaignScope(campaignID)),
		querycache.ScopeTarget(Donations, querycache.GlobalScope),
		querycache.ScopeTarget(TierStats, querycache.GlobalScope),
	}
	if tierChanged {
		targets = append(targets, querycache.ResourceTarget(CampaignStats))
	}
	return targets
}

// StatusChangeTargets is what a new, failed or cancelled donation invalidates. Totals are
// unchanged, so only the lists that show status and the campaign's pending count are touched.
func StatusChangeTargets(donorID, campaignID uuid.UUID) []querycache.Target {
	return []querycache.Target{
		querycache.ScopeTarget(Donations, DonorScope(donorID)),
		querycache.ScopeTarget(Donations, CampaignScope(campaignID)),
		querycache.ScopeTarget(CampaignStats, CampaignScope(campaignID)),
		querycache.ScopeTarget(Donations, querycache.GlobalScope),
	}
}

// TierChangeTargets is what an administrative tier override invalidates.
func TierChangeTargets(donorID uuid.UUID) []querycache.Target {
	return []querycache.Target{
		querycache.ScopeTarget(DonorProfile, DonorScope(donorID)),
		querycache.ResourceTarget(CampaignStats),
		querycache.ScopeTarget(TierStats, querycache.GlobalScope),
	}
}
