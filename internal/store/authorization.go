package store

import (
	"context"
	"iter"
	"slices"
	"time"

	"github.com/alexjbarnes/openid-store/internal/models"
	"github.com/alexjbarnes/openid-store/internal/properties"
)

type authorizationPtr[E any] interface {
	*E
	models.AuthorizationEntity
}

// AuthorizationStore stores consent records. E is models.Authorization or
// a struct embedding it by value.
type AuthorizationStore[E any, P authorizationPtr[E]] struct {
	base[E]
}

// NewAuthorizationStore returns an empty authorization store.
func NewAuthorizationStore[E any, P authorizationPtr[E]](opts Options) *AuthorizationStore[E, P] {
	rec := func(e *E) *models.Authorization { return P(e).AuthorizationRecord() }
	physID := func(e *E) *int64 { return &rec(e).ID }

	return &AuthorizationStore[E, P]{
		base: base[E]{
			kind:    "authorization",
			opts:    opts,
			logger:  opts.logger(),
			key:     func(e *E) string { return rec(e).AuthorizationID },
			setKey:  func(e *E, id string) { rec(e).AuthorizationID = id },
			physID:  physID,
			clone:   cloneAuthorization[E, P],
			records: newCollection(physID, nil),
		},
	}
}

func cloneAuthorization[E any, P authorizationPtr[E]](e *E) *E {
	c := new(E)
	*c = *e
	r := P(c).AuthorizationRecord()
	*r = r.Clone()
	return c
}

func (s *AuthorizationStore[E, P]) record(authorization *E) (*models.Authorization, error) {
	if authorization == nil {
		return nil, nilEntity("authorization")
	}
	return P(authorization).AuthorizationRecord(), nil
}

// authorizationFilter matches on the fields that are set, all compared
// case-insensitively. Required scopes must all be granted.
type authorizationFilter struct {
	subject, client, status, typ string
	scopes                       []string
}

func (f authorizationFilter) match() func(*models.Authorization) bool {
	subject, client := fold(f.subject), fold(f.client)
	status, typ := fold(f.status), fold(f.typ)

	return func(a *models.Authorization) bool {
		if fold(a.ApplicationID) != client || fold(a.Subject) != subject {
			return false
		}
		if f.status != "" && fold(a.Status) != status {
			return false
		}
		if f.typ != "" && fold(a.Type) != typ {
			return false
		}
		for _, scope := range f.scopes {
			if !slices.Contains(a.Scopes, scope) {
				return false
			}
		}
		return true
	}
}

func (s *AuthorizationStore[E, P]) findFiltered(ctx context.Context, f authorizationFilter) (iter.Seq2[*E, error], error) {
	match := f.match()
	return s.find(ctx, func(e *E) bool { return match(P(e).AuthorizationRecord()) })
}

// Find returns the authorizations granted by subject to client.
func (s *AuthorizationStore[E, P]) Find(ctx context.Context, subject, client string) (iter.Seq2[*E, error], error) {
	if err := requireNonBlank("subject", subject, "client", client); err != nil {
		return nil, err
	}
	return s.findFiltered(ctx, authorizationFilter{subject: subject, client: client})
}

// FindWithStatus narrows Find to authorizations with the given status.
func (s *AuthorizationStore[E, P]) FindWithStatus(ctx context.Context, subject, client, status string) (iter.Seq2[*E, error], error) {
	if err := requireNonBlank("subject", subject, "client", client, "status", status); err != nil {
		return nil, err
	}
	return s.findFiltered(ctx, authorizationFilter{subject: subject, client: client, status: status})
}

// FindWithType narrows FindWithStatus to authorizations of the given type.
func (s *AuthorizationStore[E, P]) FindWithType(ctx context.Context, subject, client, status, typ string) (iter.Seq2[*E, error], error) {
	if err := requireNonBlank("subject", subject, "client", client, "status", status, "type", typ); err != nil {
		return nil, err
	}
	return s.findFiltered(ctx, authorizationFilter{subject: subject, client: client, status: status, typ: typ})
}

// FindWithScopes narrows FindWithType to authorizations whose scopes
// include every one of scopes.
func (s *AuthorizationStore[E, P]) FindWithScopes(ctx context.Context, subject, client, status, typ string, scopes []string) (iter.Seq2[*E, error], error) {
	if err := requireNonBlank("subject", subject, "client", client, "status", status, "type", typ); err != nil {
		return nil, err
	}
	return s.findFiltered(ctx, authorizationFilter{
		subject: subject,
		client:  client,
		status:  status,
		typ:     typ,
		scopes:  slices.Clone(scopes),
	})
}

// FindByApplicationID returns the authorizations granted to an
// application.
func (s *AuthorizationStore[E, P]) FindByApplicationID(ctx context.Context, applicationID string) (iter.Seq2[*E, error], error) {
	if err := requireNonBlank("application_id", applicationID); err != nil {
		return nil, err
	}

	want := fold(applicationID)

	return s.find(ctx, func(e *E) bool {
		return fold(P(e).AuthorizationRecord().ApplicationID) == want
	})
}

// FindBySubject returns the authorizations granted by a subject.
func (s *AuthorizationStore[E, P]) FindBySubject(ctx context.Context, subject string) (iter.Seq2[*E, error], error) {
	if err := requireNonBlank("subject", subject); err != nil {
		return nil, err
	}

	want := fold(subject)

	return s.find(ctx, func(e *E) bool {
		return fold(P(e).AuthorizationRecord().Subject) == want
	})
}

// Prune removes ad-hoc authorizations created before threshold that are
// not valid. Permanent and valid authorizations are never pruned, nor are
// records without a creation date. It returns the number removed.
func (s *AuthorizationStore[E, P]) Prune(ctx context.Context, threshold time.Time) (int, error) {
	threshold = threshold.UTC()

	return s.prune(ctx, func(e *E) bool {
		a := P(e).AuthorizationRecord()
		return a.CreationDate != nil &&
			a.CreationDate.Before(threshold) &&
			a.Status != models.StatusValid &&
			a.Type == models.AuthorizationTypeAdHoc
	})
}

func (s *AuthorizationStore[E, P]) GetID(authorization *E) (string, error) {
	a, err := s.record(authorization)
	if err != nil {
		return "", err
	}
	return a.AuthorizationID, nil
}

func (s *AuthorizationStore[E, P]) GetApplicationID(authorization *E) (string, error) {
	a, err := s.record(authorization)
	if err != nil {
		return "", err
	}
	return a.ApplicationID, nil
}

// SetApplicationID links the authorization to an application. An empty
// identifier unlinks it.
func (s *AuthorizationStore[E, P]) SetApplicationID(authorization *E, applicationID string) error {
	a, err := s.record(authorization)
	if err != nil {
		return err
	}
	a.ApplicationID = applicationID
	return nil
}

func (s *AuthorizationStore[E, P]) GetCreationDate(authorization *E) (*time.Time, error) {
	a, err := s.record(authorization)
	if err != nil {
		return nil, err
	}
	return utc(a.CreationDate), nil
}

func (s *AuthorizationStore[E, P]) SetCreationDate(authorization *E, date *time.Time) error {
	a, err := s.record(authorization)
	if err != nil {
		return err
	}
	a.CreationDate = utc(date)
	return nil
}

func (s *AuthorizationStore[E, P]) GetScopes(authorization *E) ([]string, error) {
	a, err := s.record(authorization)
	if err != nil {
		return nil, err
	}
	return slices.Clone(a.Scopes), nil
}

func (s *AuthorizationStore[E, P]) SetScopes(authorization *E, scopes []string) error {
	a, err := s.record(authorization)
	if err != nil {
		return err
	}
	a.Scopes = dedupe(scopes)
	return nil
}

func (s *AuthorizationStore[E, P]) GetStatus(authorization *E) (string, error) {
	a, err := s.record(authorization)
	if err != nil {
		return "", err
	}
	return a.Status, nil
}

func (s *AuthorizationStore[E, P]) SetStatus(authorization *E, status string) error {
	a, err := s.record(authorization)
	if err != nil {
		return err
	}
	if err := requireNonBlank("status", status); err != nil {
		return err
	}
	a.Status = status
	return nil
}

func (s *AuthorizationStore[E, P]) GetSubject(authorization *E) (string, error) {
	a, err := s.record(authorization)
	if err != nil {
		return "", err
	}
	return a.Subject, nil
}

func (s *AuthorizationStore[E, P]) SetSubject(authorization *E, subject string) error {
	a, err := s.record(authorization)
	if err != nil {
		return err
	}
	if err := requireNonBlank("subject", subject); err != nil {
		return err
	}
	a.Subject = subject
	return nil
}

func (s *AuthorizationStore[E, P]) GetType(authorization *E) (string, error) {
	a, err := s.record(authorization)
	if err != nil {
		return "", err
	}
	return a.Type, nil
}

func (s *AuthorizationStore[E, P]) SetType(authorization *E, typ string) error {
	a, err := s.record(authorization)
	if err != nil {
		return err
	}
	if err := requireNonBlank("type", typ); err != nil {
		return err
	}
	a.Type = typ
	return nil
}

func (s *AuthorizationStore[E, P]) GetProperties(authorization *E) (properties.Properties, error) {
	a, err := s.record(authorization)
	if err != nil {
		return nil, err
	}
	return properties.Parse(a.Properties)
}

func (s *AuthorizationStore[E, P]) SetProperties(authorization *E, props properties.Properties) error {
	a, err := s.record(authorization)
	if err != nil {
		return err
	}
	return setProperties(&a.Properties, props)
}
