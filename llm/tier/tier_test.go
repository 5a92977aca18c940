package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/voiceflow/internal/security"
	"github.com/BaSui01/voiceflow/types"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw     string
		want    Tier
		wantErr bool
	}{
		{raw: "freemium", want: Freemium},
		{raw: "  PREMIUM ", want: Premium},
		{raw: "Premium", want: Premium},
		{raw: "gold", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, types.ErrTierInvalid, types.GetErrorCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_Authorized(t *testing.T) {
	premiumKey := "premium-key"
	r := NewResolver([]string{security.DeriveTenantID(premiumKey), " ", ""})

	assert.Equal(t, Premium, r.Authorized(premiumKey))
	assert.Equal(t, Freemium, r.Authorized("other-key"))
	assert.Equal(t, Freemium, r.Authorized(""))
	// 名单保存哈希值，原始凭证本身不应命中
	assert.Equal(t, Freemium, NewResolver([]string{premiumKey}).Authorized(premiumKey))
}

func TestIsForbidden(t *testing.T) {
	assert.True(t, IsForbidden(Premium, Freemium))
	assert.False(t, IsForbidden(Freemium, Premium))
	assert.False(t, IsForbidden(Premium, Premium))
	assert.False(t, IsForbidden(Freemium, Freemium))
}

func TestEffective(t *testing.T) {
	premium, freemium := Premium, Freemium

	assert.Equal(t, Freemium, Effective(nil, Freemium))
	assert.Equal(t, Premium, Effective(nil, Premium))
	assert.Equal(t, Freemium, Effective(&freemium, Premium))
	assert.Equal(t, Freemium, Effective(&premium, Freemium))
	assert.Equal(t, Premium, Effective(&premium, Premium))
}

func TestEffective_NeverExceedsAuthorized(t *testing.T) {
	tiers := []Tier{Freemium, Premium}
	rapid.Check(t, func(rt *rapid.T) {
		authorized := rapid.SampledFrom(tiers).Draw(rt, "authorized")
		var requested *Tier
		if rapid.Bool().Draw(rt, "has_request") {
			v := rapid.SampledFrom(tiers).Draw(rt, "requested")
			requested = &v
		}

		got := Effective(requested, authorized)
		if IsForbidden(got, authorized) {
			rt.Fatalf("effective %s exceeds authorized %s", got, authorized)
		}
		if requested != nil && !IsForbidden(*requested, authorized) && got != *requested {
			rt.Fatalf("allowed request %s was not honoured, got %s", *requested, got)
		}
	})
}
