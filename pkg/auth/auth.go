// Package auth turns request credentials into an owner identity.
package auth

import (
	"context"
	"errors"
	"strings"

	"filevault/pkg/log"
)

// ErrUnauthorized is returned when a credential is missing or invalid.
var ErrUnauthorized = errors.New("unauthorized")

// DefaultOwner is the identity used when authentication is disabled.
const DefaultOwner = "system"

// OwnerResolver resolves the owner behind a credential, typically the value
// of the Authorization header.
type OwnerResolver interface {
	ResolveOwner(ctx context.Context, credential string) (string, error)
}

// BearerToken strips an optional "Bearer " prefix.
func BearerToken(credential string) string {
	credential = strings.TrimSpace(credential)
	if len(credential) > 7 && strings.EqualFold(credential[:7], "bearer ") {
		return strings.TrimSpace(credential[7:])
	}
	return credential
}

// StaticResolver ignores the credential and returns a fixed owner. Every
// request shares one identity, so it is only suitable for local use.
type StaticResolver struct {
	Owner string
}

// NewStaticResolver returns a resolver for owner, DefaultOwner if empty.
func NewStaticResolver(owner string) *StaticResolver {
	if owner == "" {
		owner = DefaultOwner
	}
	return &StaticResolver{Owner: owner}
}

func (r *StaticResolver) ResolveOwner(_ context.Context, _ string) (string, error) {
	log.Warn().Str("owner", r.Owner).Msg("Authentication disabled, using static owner")
	return r.Owner, nil
}
