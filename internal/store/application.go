package store

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"slices"

	apperrors "github.com/alexjbarnes/openid-store/internal/errors"
	"github.com/alexjbarnes/openid-store/internal/models"
	"github.com/alexjbarnes/openid-store/internal/properties"
)

type applicationPtr[E any] interface {
	*E
	models.ApplicationEntity
}

// ApplicationStore stores registered client applications. E is
// models.Application or a struct embedding it by value.
type ApplicationStore[E any, P applicationPtr[E]] struct {
	base[E]
}

// NewApplicationStore returns an empty application store.
func NewApplicationStore[E any, P applicationPtr[E]](opts Options) *ApplicationStore[E, P] {
	rec := func(e *E) *models.Application { return P(e).ApplicationRecord() }
	physID := func(e *E) *int64 { return &rec(e).ID }

	return &ApplicationStore[E, P]{
		base: base[E]{
			kind:   "application",
			opts:   opts,
			logger: opts.logger(),
			key:    func(e *E) string { return rec(e).ApplicationID },
			setKey: func(e *E, id string) { rec(e).ApplicationID = id },
			physID: physID,
			clone:  cloneApplication[E, P],
			records: newCollection(physID, func(candidate, existing *E) error {
				c, x := rec(candidate), rec(existing)
				if c.ClientID != "" && foldEqual(c.ClientID, x.ClientID) {
					return fmt.Errorf("%w: client_id %q is already registered", apperrors.ErrDuplicateKey, c.ClientID)
				}
				return nil
			}),
		},
	}
}

func cloneApplication[E any, P applicationPtr[E]](e *E) *E {
	c := new(E)
	*c = *e
	r := P(c).ApplicationRecord()
	*r = r.Clone()
	return c
}

func (s *ApplicationStore[E, P]) record(app *E) (*models.Application, error) {
	if app == nil {
		return nil, nilEntity("application")
	}
	return P(app).ApplicationRecord(), nil
}

// FindByClientID returns the application whose client_id matches,
// ignoring case, or nil.
func (s *ApplicationStore[E, P]) FindByClientID(ctx context.Context, clientID string) (*E, error) {
	if err := requireNonBlank("client_id", clientID); err != nil {
		return nil, err
	}

	want := fold(clientID)

	return s.findFirst(ctx, func(e *E) bool {
		return fold(P(e).ApplicationRecord().ClientID) == want
	})
}

// FindByRedirectURI returns the applications that registered uri as a
// redirect URI.
func (s *ApplicationStore[E, P]) FindByRedirectURI(ctx context.Context, uri string) (iter.Seq2[*E, error], error) {
	if err := requireNonBlank("redirect_uri", uri); err != nil {
		return nil, err
	}

	return s.find(ctx, func(e *E) bool {
		return slices.Contains(P(e).ApplicationRecord().RedirectURIs, uri)
	})
}

// FindByPostLogoutRedirectURI returns the applications that registered uri
// as a post-logout redirect URI.
func (s *ApplicationStore[E, P]) FindByPostLogoutRedirectURI(ctx context.Context, uri string) (iter.Seq2[*E, error], error) {
	if err := requireNonBlank("post_logout_redirect_uri", uri); err != nil {
		return nil, err
	}

	return s.find(ctx, func(e *E) bool {
		return slices.Contains(P(e).ApplicationRecord().PostLogoutRedirectURIs, uri)
	})
}

func (s *ApplicationStore[E, P]) GetID(app *E) (string, error) {
	a, err := s.record(app)
	if err != nil {
		return "", err
	}
	return a.ApplicationID, nil
}

func (s *ApplicationStore[E, P]) GetClientID(app *E) (string, error) {
	a, err := s.record(app)
	if err != nil {
		return "", err
	}
	return a.ClientID, nil
}

func (s *ApplicationStore[E, P]) SetClientID(app *E, clientID string) error {
	a, err := s.record(app)
	if err != nil {
		return err
	}
	a.ClientID = clientID
	return nil
}

func (s *ApplicationStore[E, P]) GetClientSecret(app *E) (string, error) {
	a, err := s.record(app)
	if err != nil {
		return "", err
	}
	return a.ClientSecret, nil
}

// SetClientSecret stores the secret as given. Callers are expected to
// hash it first.
func (s *ApplicationStore[E, P]) SetClientSecret(app *E, secret string) error {
	a, err := s.record(app)
	if err != nil {
		return err
	}
	a.ClientSecret = secret
	return nil
}

func (s *ApplicationStore[E, P]) GetClientType(app *E) (string, error) {
	a, err := s.record(app)
	if err != nil {
		return "", err
	}
	return a.Type, nil
}

func (s *ApplicationStore[E, P]) SetClientType(app *E, clientType string) error {
	a, err := s.record(app)
	if err != nil {
		return err
	}
	a.Type = clientType
	return nil
}

func (s *ApplicationStore[E, P]) GetConsentType(app *E) (string, error) {
	a, err := s.record(app)
	if err != nil {
		return "", err
	}
	return a.ConsentType, nil
}

func (s *ApplicationStore[E, P]) SetConsentType(app *E, consentType string) error {
	a, err := s.record(app)
	if err != nil {
		return err
	}
	a.ConsentType = consentType
	return nil
}

func (s *ApplicationStore[E, P]) GetDisplayName(app *E) (string, error) {
	a, err := s.record(app)
	if err != nil {
		return "", err
	}
	return a.DisplayName, nil
}

func (s *ApplicationStore[E, P]) SetDisplayName(app *E, name string) error {
	a, err := s.record(app)
	if err != nil {
		return err
	}
	a.DisplayName = name
	return nil
}

func (s *ApplicationStore[E, P]) GetPermissions(app *E) ([]string, error) {
	a, err := s.record(app)
	if err != nil {
		return nil, err
	}
	return slices.Clone(a.Permissions), nil
}

func (s *ApplicationStore[E, P]) SetPermissions(app *E, permissions []string) error {
	a, err := s.record(app)
	if err != nil {
		return err
	}
	a.Permissions = dedupe(permissions)
	return nil
}

func (s *ApplicationStore[E, P]) GetRedirectURIs(app *E) ([]string, error) {
	a, err := s.record(app)
	if err != nil {
		return nil, err
	}
	return slices.Clone(a.RedirectURIs), nil
}

func (s *ApplicationStore[E, P]) SetRedirectURIs(app *E, uris []string) error {
	a, err := s.record(app)
	if err != nil {
		return err
	}
	a.RedirectURIs = dedupe(uris)
	return nil
}

func (s *ApplicationStore[E, P]) GetPostLogoutRedirectURIs(app *E) ([]string, error) {
	a, err := s.record(app)
	if err != nil {
		return nil, err
	}
	return slices.Clone(a.PostLogoutRedirectURIs), nil
}

func (s *ApplicationStore[E, P]) SetPostLogoutRedirectURIs(app *E, uris []string) error {
	a, err := s.record(app)
	if err != nil {
		return err
	}
	a.PostLogoutRedirectURIs = dedupe(uris)
	return nil
}

func (s *ApplicationStore[E, P]) GetRequirements(app *E) ([]string, error) {
	a, err := s.record(app)
	if err != nil {
		return nil, err
	}
	return slices.Clone(a.Requirements), nil
}

func (s *ApplicationStore[E, P]) SetRequirements(app *E, requirements []string) error {
	a, err := s.record(app)
	if err != nil {
		return err
	}
	a.Requirements = dedupe(requirements)
	return nil
}

// GetProperties decodes the application's property bag. The result is
// never nil.
func (s *ApplicationStore[E, P]) GetProperties(app *E) (properties.Properties, error) {
	a, err := s.record(app)
	if err != nil {
		return nil, err
	}
	return properties.Parse(a.Properties)
}

// SetProperties encodes props into the application. An empty bag clears
// the stored properties.
func (s *ApplicationStore[E, P]) SetProperties(app *E, props properties.Properties) error {
	a, err := s.record(app)
	if err != nil {
		return err
	}
	return setProperties(&a.Properties, props)
}

func setProperties(dst *json.RawMessage, props properties.Properties) error {
	data, err := props.Marshal()
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	*dst = data
	return nil
}
