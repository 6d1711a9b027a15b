// Package identity models caller identity as a capability passed into
// write operations. Resolution failures are not errors: anonymous writes
// are permitted and simply leave the owner unset.
package identity

import "context"

// Resolver maps a caller credential to a user id
type Resolver interface {
	// ResolveCaller returns the user id for credential, or ok=false when
	// no identity can be resolved.
	ResolveCaller(ctx context.Context, credential string) (userID string, ok bool)
}

// StaticResolver resolves credentials from a fixed map
type StaticResolver map[string]string

func (r StaticResolver) ResolveCaller(_ context.Context, credential string) (string, bool) {
	id, ok := r[credential]
	return id, ok
}

// Owner resolves credential through r and returns a nullable owner id.
// A nil resolver or unresolvable credential yields nil (anonymous).
func Owner(ctx context.Context, r Resolver, credential string) *string {
	if r == nil || credential == "" {
		return nil
	}
	id, ok := r.ResolveCaller(ctx, credential)
	if !ok {
		return nil
	}
	return &id
}
