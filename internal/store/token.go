package store

import (
	"context"
	"fmt"
	"iter"
	"time"

	apperrors "github.com/alexjbarnes/openid-store/internal/errors"
	"github.com/alexjbarnes/openid-store/internal/models"
	"github.com/alexjbarnes/openid-store/internal/properties"
)

type tokenPtr[E any] interface {
	*E
	models.TokenEntity
}

// TokenStore stores issued tokens. E is models.Token or a struct
// embedding it by value.
type TokenStore[E any, P tokenPtr[E]] struct {
	base[E]
}

// NewTokenStore returns an empty token store.
func NewTokenStore[E any, P tokenPtr[E]](opts Options) *TokenStore[E, P] {
	rec := func(e *E) *models.Token { return P(e).TokenRecord() }
	physID := func(e *E) *int64 { return &rec(e).ID }

	return &TokenStore[E, P]{
		base: base[E]{
			kind:   "token",
			opts:   opts,
			logger: opts.logger(),
			key:    func(e *E) string { return rec(e).TokenID },
			setKey: func(e *E, id string) { rec(e).TokenID = id },
			physID: physID,
			clone:  cloneToken[E, P],
			records: newCollection(physID, func(candidate, existing *E) error {
				c, x := rec(candidate), rec(existing)
				if c.ReferenceID != "" && c.ReferenceID == x.ReferenceID {
					return fmt.Errorf("%w: reference identifier is already in use", apperrors.ErrDuplicateKey)
				}
				return nil
			}),
		},
	}
}

func cloneToken[E any, P tokenPtr[E]](e *E) *E {
	c := new(E)
	*c = *e
	r := P(c).TokenRecord()
	*r = r.Clone()
	return c
}

func (s *TokenStore[E, P]) record(token *E) (*models.Token, error) {
	if token == nil {
		return nil, nilEntity("token")
	}
	return P(token).TokenRecord(), nil
}

func (s *TokenStore[E, P]) findWhere(ctx context.Context, subject, client, status, typ string) (iter.Seq2[*E, error], error) {
	subject, client = fold(subject), fold(client)
	status, typ = fold(status), fold(typ)

	return s.find(ctx, func(e *E) bool {
		t := P(e).TokenRecord()
		if fold(t.ApplicationID) != client || fold(t.Subject) != subject {
			return false
		}
		if status != "" && fold(t.Status) != status {
			return false
		}
		return typ == "" || fold(t.Type) == typ
	})
}

// Find returns the tokens issued to client on behalf of subject.
func (s *TokenStore[E, P]) Find(ctx context.Context, subject, client string) (iter.Seq2[*E, error], error) {
	if err := requireNonBlank("subject", subject, "client", client); err != nil {
		return nil, err
	}
	return s.findWhere(ctx, subject, client, "", "")
}

// FindWithStatus narrows Find to tokens with the given status.
func (s *TokenStore[E, P]) FindWithStatus(ctx context.Context, subject, client, status string) (iter.Seq2[*E, error], error) {
	if err := requireNonBlank("subject", subject, "client", client, "status", status); err != nil {
		return nil, err
	}
	return s.findWhere(ctx, subject, client, status, "")
}

// FindWithType narrows FindWithStatus to tokens of the given type.
func (s *TokenStore[E, P]) FindWithType(ctx context.Context, subject, client, status, typ string) (iter.Seq2[*E, error], error) {
	if err := requireNonBlank("subject", subject, "client", client, "status", status, "type", typ); err != nil {
		return nil, err
	}
	return s.findWhere(ctx, subject, client, status, typ)
}

// FindByApplicationID returns the tokens issued to an application.
func (s *TokenStore[E, P]) FindByApplicationID(ctx context.Context, applicationID string) (iter.Seq2[*E, error], error) {
	if err := requireNonBlank("application_id", applicationID); err != nil {
		return nil, err
	}

	want := fold(applicationID)

	return s.find(ctx, func(e *E) bool {
		return fold(P(e).TokenRecord().ApplicationID) == want
	})
}

// FindByAuthorizationID returns the tokens attached to an authorization.
func (s *TokenStore[E, P]) FindByAuthorizationID(ctx context.Context, authorizationID string) (iter.Seq2[*E, error], error) {
	if err := requireNonBlank("authorization_id", authorizationID); err != nil {
		return nil, err
	}

	want := fold(authorizationID)

	return s.find(ctx, func(e *E) bool {
		return fold(P(e).TokenRecord().AuthorizationID) == want
	})
}

// FindBySubject returns the tokens issued on behalf of subject.
func (s *TokenStore[E, P]) FindBySubject(ctx context.Context, subject string) (iter.Seq2[*E, error], error) {
	if err := requireNonBlank("subject", subject); err != nil {
		return nil, err
	}

	want := fold(subject)

	return s.find(ctx, func(e *E) bool {
		return fold(P(e).TokenRecord().Subject) == want
	})
}

// FindByReferenceID returns the token with the given reference identifier,
// or nil. The comparison is exact since reference identifiers may be
// stored as case-sensitive hashes.
func (s *TokenStore[E, P]) FindByReferenceID(ctx context.Context, referenceID string) (*E, error) {
	if err := requireNonBlank("reference_id", referenceID); err != nil {
		return nil, err
	}

	return s.findFirst(ctx, func(e *E) bool {
		return P(e).TokenRecord().ReferenceID == referenceID
	})
}

// Prune removes tokens created before threshold that are either no longer
// active (status other than inactive or valid) or already expired,
// whatever their status. Tokens without a creation date are kept. It
// returns the number removed.
func (s *TokenStore[E, P]) Prune(ctx context.Context, threshold time.Time) (int, error) {
	threshold = threshold.UTC()
	now := s.opts.now()

	return s.prune(ctx, func(e *E) bool {
		t := P(e).TokenRecord()
		if t.CreationDate == nil || !t.CreationDate.Before(threshold) {
			return false
		}

		terminal := t.Status != models.StatusInactive && t.Status != models.StatusValid
		expired := t.ExpirationDate != nil && t.ExpirationDate.Before(now)

		return terminal || expired
	})
}

func (s *TokenStore[E, P]) GetID(token *E) (string, error) {
	t, err := s.record(token)
	if err != nil {
		return "", err
	}
	return t.TokenID, nil
}

func (s *TokenStore[E, P]) GetApplicationID(token *E) (string, error) {
	t, err := s.record(token)
	if err != nil {
		return "", err
	}
	return t.ApplicationID, nil
}

// SetApplicationID links the token to an application. An empty
// identifier unlinks it.
func (s *TokenStore[E, P]) SetApplicationID(token *E, applicationID string) error {
	t, err := s.record(token)
	if err != nil {
		return err
	}
	t.ApplicationID = applicationID
	return nil
}

func (s *TokenStore[E, P]) GetAuthorizationID(token *E) (string, error) {
	t, err := s.record(token)
	if err != nil {
		return "", err
	}
	return t.AuthorizationID, nil
}

// SetAuthorizationID links the token to an authorization. An empty
// identifier unlinks it.
func (s *TokenStore[E, P]) SetAuthorizationID(token *E, authorizationID string) error {
	t, err := s.record(token)
	if err != nil {
		return err
	}
	t.AuthorizationID = authorizationID
	return nil
}

func (s *TokenStore[E, P]) GetCreationDate(token *E) (*time.Time, error) {
	t, err := s.record(token)
	if err != nil {
		return nil, err
	}
	return utc(t.CreationDate), nil
}

func (s *TokenStore[E, P]) SetCreationDate(token *E, date *time.Time) error {
	t, err := s.record(token)
	if err != nil {
		return err
	}
	t.CreationDate = utc(date)
	return nil
}

func (s *TokenStore[E, P]) GetExpirationDate(token *E) (*time.Time, error) {
	t, err := s.record(token)
	if err != nil {
		return nil, err
	}
	return utc(t.ExpirationDate), nil
}

func (s *TokenStore[E, P]) SetExpirationDate(token *E, date *time.Time) error {
	t, err := s.record(token)
	if err != nil {
		return err
	}
	t.ExpirationDate = utc(date)
	return nil
}

func (s *TokenStore[E, P]) GetRedemptionDate(token *E) (*time.Time, error) {
	t, err := s.record(token)
	if err != nil {
		return nil, err
	}
	return utc(t.RedemptionDate), nil
}

func (s *TokenStore[E, P]) SetRedemptionDate(token *E, date *time.Time) error {
	t, err := s.record(token)
	if err != nil {
		return err
	}
	t.RedemptionDate = utc(date)
	return nil
}

func (s *TokenStore[E, P]) GetPayload(token *E) (string, error) {
	t, err := s.record(token)
	if err != nil {
		return "", err
	}
	return t.Payload, nil
}

func (s *TokenStore[E, P]) SetPayload(token *E, payload string) error {
	t, err := s.record(token)
	if err != nil {
		return err
	}
	t.Payload = payload
	return nil
}

func (s *TokenStore[E, P]) GetReferenceID(token *E) (string, error) {
	t, err := s.record(token)
	if err != nil {
		return "", err
	}
	return t.ReferenceID, nil
}

func (s *TokenStore[E, P]) SetReferenceID(token *E, referenceID string) error {
	t, err := s.record(token)
	if err != nil {
		return err
	}
	t.ReferenceID = referenceID
	return nil
}

func (s *TokenStore[E, P]) GetStatus(token *E) (string, error) {
	t, err := s.record(token)
	if err != nil {
		return "", err
	}
	return t.Status, nil
}

func (s *TokenStore[E, P]) SetStatus(token *E, status string) error {
	t, err := s.record(token)
	if err != nil {
		return err
	}
	if err := requireNonBlank("status", status); err != nil {
		return err
	}
	t.Status = status
	return nil
}

func (s *TokenStore[E, P]) GetSubject(token *E) (string, error) {
	t, err := s.record(token)
	if err != nil {
		return "", err
	}
	return t.Subject, nil
}

func (s *TokenStore[E, P]) SetSubject(token *E, subject string) error {
	t, err := s.record(token)
	if err != nil {
		return err
	}
	if err := requireNonBlank("subject", subject); err != nil {
		return err
	}
	t.Subject = subject
	return nil
}

func (s *TokenStore[E, P]) GetType(token *E) (string, error) {
	t, err := s.record(token)
	if err != nil {
		return "", err
	}
	return t.Type, nil
}

func (s *TokenStore[E, P]) SetType(token *E, typ string) error {
	t, err := s.record(token)
	if err != nil {
		return err
	}
	if err := requireNonBlank("token type", typ); err != nil {
		return err
	}
	t.Type = typ
	return nil
}

func (s *TokenStore[E, P]) GetProperties(token *E) (properties.Properties, error) {
	t, err := s.record(token)
	if err != nil {
		return nil, err
	}
	return properties.Parse(t.Properties)
}

func (s *TokenStore[E, P]) SetProperties(token *E, props properties.Properties) error {
	t, err := s.record(token)
	if err != nil {
		return err
	}
	return setProperties(&t.Properties, props)
}
