package bootstrap

import (
	"testing"

	"github.com/aq2208/gcheckout-api/configs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainRules(t *testing.T) {
	var cfg configs.Config
	cfg.Pricing.FreeShippingThreshold = "5000"
	cfg.Pricing.FlatShippingFee = "250"
	cfg.Loyalty.PointsPerUnit = 2
	cfg.Referral.BonusPoints = 100
	cfg.Referral.MinOrderTotal = "1000"

	rules, dc, err := domainRules(cfg)
	require.NoError(t, err)
	assert.Equal(t, "5000", rules.FreeShippingThreshold.String())
	assert.Equal(t, "250", rules.FlatShippingFee.String())
	assert.Equal(t, int64(2), dc.PointsPerUnit)
	assert.Equal(t, "1000", dc.MinReferralTotal.String())

	cfg.Referral.MinOrderTotal = ""
	_, dc, err = domainRules(cfg)
	require.NoError(t, err)
	assert.True(t, dc.MinReferralTotal.IsZero())
}

func TestDomainRules_RejectsBadMoney(t *testing.T) {
	var cfg configs.Config
	cfg.Pricing.FreeShippingThreshold = "lots"
	cfg.Pricing.FlatShippingFee = "250"

	_, _, err := domainRules(cfg)
	assert.ErrorContains(t, err, "free_shipping_threshold")
}
