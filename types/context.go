package types

import "context"

type contextKey string

const (
	keyCorrelationID contextKey = "correlation_id"
	keyTenantID      contextKey = "tenant_id"
	keyUserID        contextKey = "user_id"
)

// RequestIdentity 一次音频请求的标识，用于日志关联
type RequestIdentity struct {
	CorrelationID string
	TenantID      string
	UserID        string
}

// Identity 汇总 ctx 中的请求标识，缺失的字段为空串
func Identity(ctx context.Context) RequestIdentity {
	corrID, _ := CorrelationID(ctx)
	tenantID, _ := TenantID(ctx)
	userID, _ := UserID(ctx)
	return RequestIdentity{CorrelationID: corrID, TenantID: tenantID, UserID: userID}
}

// WithCorrelationID 写入关联 ID（X-Correlation-ID）
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, keyCorrelationID, id)
}

// CorrelationID 读取关联 ID；空串视为缺失
func CorrelationID(ctx context.Context) (string, bool) {
	return stringValue(ctx, keyCorrelationID)
}

// WithTenantID 写入由 API Key 派生的租户 ID
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, keyTenantID, tenantID)
}

func TenantID(ctx context.Context) (string, bool) {
	return stringValue(ctx, keyTenantID)
}

// WithUserID 写入终端用户的外部 ID
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, keyUserID, userID)
}

func UserID(ctx context.Context) (string, bool) {
	return stringValue(ctx, keyUserID)
}

func stringValue(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	return v, ok && v != ""
}
