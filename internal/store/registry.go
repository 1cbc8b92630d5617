package store

import (
	"fmt"

	"github.com/alexjbarnes/openid-store/internal/models"
)

// Registry bundles the resolvers for the four entity kinds. One registry
// is shared process-wide; stores resolved from it live as long as it does.
type Registry struct {
	Applications   *ApplicationResolver
	Authorizations *AuthorizationResolver
	Scopes         *ScopeResolver
	Tokens         *TokenResolver
}

// NewRegistry returns a registry whose stores all use opts.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		Applications:   NewApplicationResolver(opts),
		Authorizations: NewAuthorizationResolver(opts),
		Scopes:         NewScopeResolver(opts),
		Tokens:         NewTokenResolver(opts),
	}
}

// ApplicationStore returns the store for models.Application.
func (r *Registry) ApplicationStore() *ApplicationStore[models.Application, *models.Application] {
	return must(ResolveApplicationStore[models.Application](r.Applications))
}

// AuthorizationStore returns the store for models.Authorization.
func (r *Registry) AuthorizationStore() *AuthorizationStore[models.Authorization, *models.Authorization] {
	return must(ResolveAuthorizationStore[models.Authorization](r.Authorizations))
}

// ScopeStore returns the store for models.Scope.
func (r *Registry) ScopeStore() *ScopeStore[models.Scope, *models.Scope] {
	return must(ResolveScopeStore[models.Scope](r.Scopes))
}

// TokenStore returns the store for models.Token.
func (r *Registry) TokenStore() *TokenStore[models.Token, *models.Token] {
	return must(ResolveTokenStore[models.Token](r.Tokens))
}

// must unwraps resolutions of the base models, which always pass the
// compatibility check.
func must[S any](s S, err error) S {
	if err != nil {
		panic(fmt.Sprintf("resolving base store: %v", err))
	}
	return s
}
