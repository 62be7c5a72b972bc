package auth

import "context"

// APIKeyInfo holds the identity of a validated API key and the tenant it acts for.
type APIKeyInfo struct {
	ID       string
	TenantID string
	KeyHash  string
	Name     string
	Scopes   []string
}

// HasScope reports whether the key grants scope.
func (i *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range i.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}

type tenantKey struct{}

// WithKey stores the authenticated key in ctx.
func WithKey(ctx context.Context, info *APIKeyInfo) context.Context {
	return context.WithValue(ctx, tenantKey{}, info)
}

// KeyFrom returns the authenticated key stored in ctx, or nil.
func KeyFrom(ctx context.Context) *APIKeyInfo {
	info, _ := ctx.Value(tenantKey{}).(*APIKeyInfo)
	return info
}
