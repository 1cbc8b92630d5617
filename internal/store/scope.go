package store

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"

	apperrors "github.com/alexjbarnes/openid-store/internal/errors"
	"github.com/alexjbarnes/openid-store/internal/models"
	"github.com/alexjbarnes/openid-store/internal/properties"
	"golang.org/x/text/language"
)

type scopePtr[E any] interface {
	*E
	models.ScopeEntity
}

// ScopeStore stores scope declarations. E is models.Scope or a struct
// embedding it by value.
type ScopeStore[E any, P scopePtr[E]] struct {
	base[E]
}

// NewScopeStore returns an empty scope store.
func NewScopeStore[E any, P scopePtr[E]](opts Options) *ScopeStore[E, P] {
	rec := func(e *E) *models.Scope { return P(e).ScopeRecord() }
	physID := func(e *E) *int64 { return &rec(e).ID }

	return &ScopeStore[E, P]{
		base: base[E]{
			kind:   "scope",
			opts:   opts,
			logger: opts.logger(),
			key:    func(e *E) string { return rec(e).ScopeID },
			setKey: func(e *E, id string) { rec(e).ScopeID = id },
			physID: physID,
			clone:  cloneScope[E, P],
			records: newCollection(physID, func(candidate, existing *E) error {
				c, x := rec(candidate), rec(existing)
				if c.Name != "" && foldEqual(c.Name, x.Name) {
					return fmt.Errorf("%w: scope %q already exists", apperrors.ErrDuplicateKey, c.Name)
				}
				return nil
			}),
		},
	}
}

func cloneScope[E any, P scopePtr[E]](e *E) *E {
	c := new(E)
	*c = *e
	r := P(c).ScopeRecord()
	*r = r.Clone()
	return c
}

func (s *ScopeStore[E, P]) record(scope *E) (*models.Scope, error) {
	if scope == nil {
		return nil, nilEntity("scope")
	}
	return P(scope).ScopeRecord(), nil
}

// FindByName returns the scope with the given name, ignoring case, or nil.
func (s *ScopeStore[E, P]) FindByName(ctx context.Context, name string) (*E, error) {
	if err := requireNonBlank("name", name); err != nil {
		return nil, err
	}

	want := fold(name)

	return s.findFirst(ctx, func(e *E) bool {
		return fold(P(e).ScopeRecord().Name) == want
	})
}

// FindByNames returns the scopes whose name is one of names. Every name
// must be non-blank.
func (s *ScopeStore[E, P]) FindByNames(ctx context.Context, names []string) (iter.Seq2[*E, error], error) {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		if err := requireNonBlank("scope name", name); err != nil {
			return nil, err
		}
		set[name] = struct{}{}
	}

	return s.find(ctx, func(e *E) bool {
		_, ok := set[P(e).ScopeRecord().Name]
		return ok
	})
}

// FindByResource returns the scopes that grant access to resource.
func (s *ScopeStore[E, P]) FindByResource(ctx context.Context, resource string) (iter.Seq2[*E, error], error) {
	if err := requireNonBlank("resource", resource); err != nil {
		return nil, err
	}

	return s.find(ctx, func(e *E) bool {
		return slices.Contains(P(e).ScopeRecord().Resources, resource)
	})
}

func (s *ScopeStore[E, P]) GetID(scope *E) (string, error) {
	sc, err := s.record(scope)
	if err != nil {
		return "", err
	}
	return sc.ScopeID, nil
}

func (s *ScopeStore[E, P]) GetName(scope *E) (string, error) {
	sc, err := s.record(scope)
	if err != nil {
		return "", err
	}
	return sc.Name, nil
}

func (s *ScopeStore[E, P]) SetName(scope *E, name string) error {
	sc, err := s.record(scope)
	if err != nil {
		return err
	}
	if err := requireNonBlank("name", name); err != nil {
		return err
	}
	sc.Name = name
	return nil
}

func (s *ScopeStore[E, P]) GetDisplayName(scope *E) (string, error) {
	sc, err := s.record(scope)
	if err != nil {
		return "", err
	}
	return sc.DisplayName, nil
}

func (s *ScopeStore[E, P]) SetDisplayName(scope *E, name string) error {
	sc, err := s.record(scope)
	if err != nil {
		return err
	}
	sc.DisplayName = name
	return nil
}

// GetDisplayNames returns the localized display names. The map is never
// nil.
func (s *ScopeStore[E, P]) GetDisplayNames(scope *E) (map[language.Tag]string, error) {
	sc, err := s.record(scope)
	if err != nil {
		return nil, err
	}
	return localized(sc.DisplayNames), nil
}

func (s *ScopeStore[E, P]) SetDisplayNames(scope *E, names map[language.Tag]string) error {
	sc, err := s.record(scope)
	if err != nil {
		return err
	}
	sc.DisplayNames = storedLocalized(names)
	return nil
}

func (s *ScopeStore[E, P]) GetDescription(scope *E) (string, error) {
	sc, err := s.record(scope)
	if err != nil {
		return "", err
	}
	return sc.Description, nil
}

func (s *ScopeStore[E, P]) SetDescription(scope *E, description string) error {
	sc, err := s.record(scope)
	if err != nil {
		return err
	}
	sc.Description = description
	return nil
}

// GetDescriptions returns the localized descriptions. The map is never
// nil.
func (s *ScopeStore[E, P]) GetDescriptions(scope *E) (map[language.Tag]string, error) {
	sc, err := s.record(scope)
	if err != nil {
		return nil, err
	}
	return localized(sc.Descriptions), nil
}

func (s *ScopeStore[E, P]) SetDescriptions(scope *E, descriptions map[language.Tag]string) error {
	sc, err := s.record(scope)
	if err != nil {
		return err
	}
	sc.Descriptions = storedLocalized(descriptions)
	return nil
}

func (s *ScopeStore[E, P]) GetResources(scope *E) ([]string, error) {
	sc, err := s.record(scope)
	if err != nil {
		return nil, err
	}
	return slices.Clone(sc.Resources), nil
}

func (s *ScopeStore[E, P]) SetResources(scope *E, resources []string) error {
	sc, err := s.record(scope)
	if err != nil {
		return err
	}
	sc.Resources = dedupe(resources)
	return nil
}

func (s *ScopeStore[E, P]) GetProperties(scope *E) (properties.Properties, error) {
	sc, err := s.record(scope)
	if err != nil {
		return nil, err
	}
	return properties.Parse(sc.Properties)
}

func (s *ScopeStore[E, P]) SetProperties(scope *E, props properties.Properties) error {
	sc, err := s.record(scope)
	if err != nil {
		return err
	}
	return setProperties(&sc.Properties, props)
}

func localized(m map[language.Tag]string) map[language.Tag]string {
	if m == nil {
		return make(map[language.Tag]string)
	}
	return maps.Clone(m)
}

// storedLocalized drops undetermined locales and normalizes an empty map
// to nil.
func storedLocalized(m map[language.Tag]string) map[language.Tag]string {
	var out map[language.Tag]string
	for tag, text := range m {
		if tag == language.Und {
			continue
		}
		if out == nil {
			out = make(map[language.Tag]string, len(m))
		}
		out[tag] = text
	}
	return out
}
