package cachekeys

import (
	"testing"

	"charity-server/internal/querycache"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCompletionTargets(t *testing.T) {
	donorID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	campaignID := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	targets := CompletionTargets(donorID, campaignID, false)

	assert.ElementsMatch(t, []querycache.Target{
		{Resource: Donations, Scope: "donor=" + donorID.String()},
		{Resource: DonorProfile, Scope: "donor=" + donorID.String()},
		{Resource: Donations, Scope: "campaign=" + campaignID.String()},
		{Resource: CampaignStats, Scope: "campaign=" + campaignID.String()},
		{Resource: Donations, Scope: querycache.GlobalScope},
		{Resource: TierStats, Scope: querycache.GlobalScope},
	}, targets)
}

func TestCompletionTargets_TierChangeTouchesEveryCampaign(t *testing.T) {
	donorID := uuid.New()
	campaignID := uuid.New()

	assert.NotContains(t, CompletionTargets(donorID, campaignID, false), querycache.ResourceTarget(CampaignStats))
	assert.Contains(t, CompletionTargets(donorID, campaignID, true), querycache.ResourceTarget(CampaignStats))
}

func TestKeys(t *testing.T) {
	donorID := uuid.MustParse("00000000-0000-0000-0000-000000000001")

	assert.Equal(t, "qc:donor_profile:donor=00000000-0000-0000-0000-000000000001:-", DonorProfileKey(donorID).String())
	assert.Equal(t, "qc:tier_stats:global:-", TierStatsKey().String())
}

func TestStatusChangeTargets_LeaveTotalsAlone(t *testing.T) {
	donorID := uuid.New()
	campaignID := uuid.New()

	for _, target := range StatusChangeTargets(donorID, campaignID) {
		assert.NotEqual(t, DonorProfile, target.Resource)
		assert.NotEqual(t, TierStats, target.Resource)
	}
}

func TestDonationKey(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000003")
	assert.Equal(t, "qc:donation:donation=00000000-0000-0000-0000-000000000003:-", DonationKey(id).String())
}
