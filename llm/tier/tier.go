// Package tier 解析请求的 LLM 授权等级（freemium / premium）。
package tier

import (
	"strings"

	"github.com/BaSui01/voiceflow/internal/security"
	"github.com/BaSui01/voiceflow/types"
)

// Tier LLM 服务等级
type Tier string

const (
	// Freemium 默认等级
	Freemium Tier = "freemium"
	// Premium 高级等级
	Premium Tier = "premium"
)

var rank = map[Tier]int{
	Freemium: 0,
	Premium:  1,
}

// Valid 报告 t 是否为已知等级
func (t Tier) Valid() bool {
	_, ok := rank[t]
	return ok
}

// String 实现 fmt.Stringer
func (t Tier) String() string { return string(t) }

// Normalize 将原始请求值（去空白、小写）解析为 Tier。
// 未知值返回 tier_invalid 错误。
func Normalize(raw string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", types.NewError(types.ErrTierInvalid, "invalid llm tier").
			WithDetail("requested_tier", raw)
	}
	return t, nil
}

// IsForbidden 请求等级高于授权等级时返回 true
func IsForbidden(requested, authorized Tier) bool {
	return rank[requested] > rank[authorized]
}

// Effective 返回实际使用的等级：
// 请求等级存在且未越权时使用请求等级，否则使用授权等级。
func Effective(requested *Tier, authorized Tier) Tier {
	if requested == nil || !requested.Valid() || IsForbidden(*requested, authorized) {
		return authorized
	}
	return *requested
}

// =============================================================================
// 🔐 授权解析
// =============================================================================

// Resolver 根据凭证派生的租户 ID 判断授权等级
type Resolver struct {
	premium map[string]struct{}
}

// NewResolver 创建等级解析器，premiumTenantIDs 为已哈希的租户 ID 列表
func NewResolver(premiumTenantIDs []string) *Resolver {
	r := &Resolver{premium: make(map[string]struct{}, len(premiumTenantIDs))}
	for _, id := range premiumTenantIDs {
		if id = strings.TrimSpace(id); id != "" {
			r.premium[id] = struct{}{}
		}
	}
	return r
}

// Authorized 返回凭证的授权等级，不在 premium 名单中即为 freemium
func (r *Resolver) Authorized(credential string) Tier {
	return r.AuthorizedTenant(security.DeriveTenantID(credential))
}

// AuthorizedTenant 与 Authorized 相同，但直接接收已派生的租户 ID
func (r *Resolver) AuthorizedTenant(tenantID string) Tier {
	if _, ok := r.premium[tenantID]; ok {
		return Premium
	}
	return Freemium
}
