package store

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	apperrors "github.com/alexjbarnes/openid-store/internal/errors"
	"github.com/alexjbarnes/openid-store/internal/models"
)

const probeID = "resolver-probe"

// resolution is a cached outcome of resolving an entity type: either a
// store or the configuration error explaining why none can be built.
type resolution struct {
	store any
	err   error
}

// resolver maps entity types to stores for one entity kind. Explicitly
// registered stores take precedence. Otherwise the store is built on the
// first request and cached; a failed compatibility check is cached too,
// so it is reported once per type and never retried.
type resolver struct {
	kind string

	mu         sync.Mutex
	registered map[reflect.Type]any
	resolved   map[reflect.Type]resolution
}

func newResolver(kind string) resolver {
	return resolver{
		kind:       kind,
		registered: make(map[reflect.Type]any),
		resolved:   make(map[reflect.Type]resolution),
	}
}

func (r *resolver) register(t reflect.Type, s any) {
	r.mu.Lock()
	r.registered[t] = s
	r.mu.Unlock()
}

func (r *resolver) resolve(t reflect.Type, check func() error, build func() any) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.registered[t]; ok {
		return s, nil
	}

	if res, ok := r.resolved[t]; ok {
		return res.store, res.err
	}

	var res resolution
	if err := check(); err != nil {
		res.err = fmt.Errorf("%w: %s store cannot serve %s: %v", apperrors.ErrIncompatibleType, r.kind, t, err)
	} else {
		res.store = build()
	}
	r.resolved[t] = res

	return res.store, res.err
}

func (r *resolver) mismatch(t reflect.Type, got any) error {
	return fmt.Errorf("%w: %s store registered for %s has type %T", apperrors.ErrIncompatibleType, r.kind, t, got)
}

// checkEmbedded verifies that E carries its record by value: the record
// accessor must return a non-nil pointer into the entity itself, so that a
// copy of the entity carries an independent copy of the record.
func checkEmbedded[E, R any](record func(*E) *R, setProbe func(*R), hasProbe func(*R) bool) error {
	var e E

	r := record(&e)
	if r == nil {
		return errors.New("record accessor returned nil, embed the record by value")
	}

	setProbe(r)

	c := e
	rc := record(&c)
	if rc == nil || rc == r || !hasProbe(rc) {
		return errors.New("record is not stored inside the entity, embed it by value")
	}

	return nil
}

// ApplicationResolver hands out application stores by entity type.
type ApplicationResolver struct {
	opts Options
	r    resolver
}

// NewApplicationResolver returns a resolver whose stores use opts.
func NewApplicationResolver(opts Options) *ApplicationResolver {
	return &ApplicationResolver{opts: opts, r: newResolver("application")}
}

// RegisterApplicationStore makes s the store returned for entity type E.
func RegisterApplicationStore[E any, P applicationPtr[E]](r *ApplicationResolver, s *ApplicationStore[E, P]) {
	r.r.register(reflect.TypeFor[E](), s)
}

// ResolveApplicationStore returns the store for entity type E, building
// and caching it on first use.
func ResolveApplicationStore[E any, P applicationPtr[E]](r *ApplicationResolver) (*ApplicationStore[E, P], error) {
	t := reflect.TypeFor[E]()

	v, err := r.r.resolve(t,
		func() error {
			return checkEmbedded(
				func(e *E) *models.Application { return P(e).ApplicationRecord() },
				func(a *models.Application) { a.ApplicationID = probeID },
				func(a *models.Application) bool { return a.ApplicationID == probeID },
			)
		},
		func() any { return NewApplicationStore[E, P](r.opts) },
	)
	if err != nil {
		return nil, err
	}

	s, ok := v.(*ApplicationStore[E, P])
	if !ok {
		return nil, r.r.mismatch(t, v)
	}

	return s, nil
}

// AuthorizationResolver hands out authorization stores by entity type.
type AuthorizationResolver struct {
	opts Options
	r    resolver
}

// NewAuthorizationResolver returns a resolver whose stores use opts.
func NewAuthorizationResolver(opts Options) *AuthorizationResolver {
	return &AuthorizationResolver{opts: opts, r: newResolver("authorization")}
}

// RegisterAuthorizationStore makes s the store returned for entity type E.
func RegisterAuthorizationStore[E any, P authorizationPtr[E]](r *AuthorizationResolver, s *AuthorizationStore[E, P]) {
	r.r.register(reflect.TypeFor[E](), s)
}

// ResolveAuthorizationStore returns the store for entity type E, building
// and caching it on first use.
func ResolveAuthorizationStore[E any, P authorizationPtr[E]](r *AuthorizationResolver) (*AuthorizationStore[E, P], error) {
	t := reflect.TypeFor[E]()

	v, err := r.r.resolve(t,
		func() error {
			return checkEmbedded(
				func(e *E) *models.Authorization { return P(e).AuthorizationRecord() },
				func(a *models.Authorization) { a.AuthorizationID = probeID },
				func(a *models.Authorization) bool { return a.AuthorizationID == probeID },
			)
		},
		func() any { return NewAuthorizationStore[E, P](r.opts) },
	)
	if err != nil {
		return nil, err
	}

	s, ok := v.(*AuthorizationStore[E, P])
	if !ok {
		return nil, r.r.mismatch(t, v)
	}

	return s, nil
}

// ScopeResolver hands out scope stores by entity type.
type ScopeResolver struct {
	opts Options
	r    resolver
}

// NewScopeResolver returns a resolver whose stores use opts.
func NewScopeResolver(opts Options) *ScopeResolver {
	return &ScopeResolver{opts: opts, r: newResolver("scope")}
}

// RegisterScopeStore makes s the store returned for entity type E.
func RegisterScopeStore[E any, P scopePtr[E]](r *ScopeResolver, s *ScopeStore[E, P]) {
	r.r.register(reflect.TypeFor[E](), s)
}

// ResolveScopeStore returns the store for entity type E, building and
// caching it on first use.
func ResolveScopeStore[E any, P scopePtr[E]](r *ScopeResolver) (*ScopeStore[E, P], error) {
	t := reflect.TypeFor[E]()

	v, err := r.r.resolve(t,
		func() error {
			return checkEmbedded(
				func(e *E) *models.Scope { return P(e).ScopeRecord() },
				func(s *models.Scope) { s.ScopeID = probeID },
				func(s *models.Scope) bool { return s.ScopeID == probeID },
			)
		},
		func() any { return NewScopeStore[E, P](r.opts) },
	)
	if err != nil {
		return nil, err
	}

	s, ok := v.(*ScopeStore[E, P])
	if !ok {
		return nil, r.r.mismatch(t, v)
	}

	return s, nil
}

// TokenResolver hands out token stores by entity type.
type TokenResolver struct {
	opts Options
	r    resolver
}

// NewTokenResolver returns a resolver whose stores use opts.
func NewTokenResolver(opts Options) *TokenResolver {
	return &TokenResolver{opts: opts, r: newResolver("token")}
}

// RegisterTokenStore makes s the store returned for entity type E.
func RegisterTokenStore[E any, P tokenPtr[E]](r *TokenResolver, s *TokenStore[E, P]) {
	r.r.register(reflect.TypeFor[E](), s)
}

// ResolveTokenStore returns the store for entity type E, building and
// caching it on first use.
func ResolveTokenStore[E any, P tokenPtr[E]](r *TokenResolver) (*TokenStore[E, P], error) {
	t := reflect.TypeFor[E]()

	v, err := r.r.resolve(t,
		func() error {
			return checkEmbedded(
				func(e *E) *models.Token { return P(e).TokenRecord() },
				func(tk *models.Token) { tk.TokenID = probeID },
				func(tk *models.Token) bool { return tk.TokenID == probeID },
			)
		},
		func() any { return NewTokenStore[E, P](r.opts) },
	)
	if err != nil {
		return nil, err
	}

	s, ok := v.(*TokenStore[E, P])
	if !ok {
		return nil, r.r.mismatch(t, v)
	}

	return s, nil
}
