package models

import (
	"encoding/json"

	"golang.org/x/text/language"
)

// Scope is a named permission unit, optionally mapped to resources.
type Scope struct {
	ID      int64  `json:"id"`
	ScopeID string `json:"scope_id"`

	// Name is unique across scopes under case-insensitive comparison.
	Name         string                  `json:"name"`
	DisplayName  string                  `json:"display_name,omitempty"`
	DisplayNames map[language.Tag]string `json:"display_names,omitempty"`
	Description  string                  `json:"description,omitempty"`
	Descriptions map[language.Tag]string `json:"descriptions,omitempty"`
	Resources    []string                `json:"resources,omitempty"`

	Properties json.RawMessage `json:"properties,omitempty"`
}

// ScopeEntity is satisfied by Scope and by any struct that embeds it by
// value.
type ScopeEntity interface {
	ScopeRecord() *Scope
}

// ScopeRecord returns the receiver.
func (s *Scope) ScopeRecord() *Scope {
	return s
}

// Clone returns a deep copy of the scope.
func (s *Scope) Clone() Scope {
	c := *s
	c.DisplayNames = cloneLocalized(s.DisplayNames)
	c.Descriptions = cloneLocalized(s.Descriptions)
	c.Resources = cloneStrings(s.Resources)
	c.Properties = cloneRaw(s.Properties)
	return c
}
