// Package security 提供租户标识派生等安全相关的辅助函数。
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// AnonymousTenantID 空凭证对应的租户 ID
const AnonymousTenantID = "anonymous"

// tenantIDLength 租户 ID 长度（sha256 十六进制前缀）
const tenantIDLength = 12

// DeriveTenantID 从原始 API Key 派生不可逆的租户 ID。
// 结果为 sha256 十六进制的前 12 位；空凭证返回 "anonymous"。
// 原始凭证不得出现在日志、指标或持久化数据中，只能使用本函数的结果。
func DeriveTenantID(credential string) string {
	if strings.TrimSpace(credential) == "" {
		return AnonymousTenantID
	}
	hash := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(hash[:])[:tenantIDLength]
}
