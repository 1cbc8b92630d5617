package models

import "encoding/json"

// Application is a registered OAuth client.
type Application struct {
	// ID is the physical, store-local identifier.
	ID int64 `json:"id"`
	// ApplicationID is the public identifier.
	ApplicationID string `json:"application_id"`

	// ClientID is unique across applications under case-insensitive comparison.
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Type         string `json:"type,omitempty"`
	ConsentType  string `json:"consent_type,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`

	Permissions            []string `json:"permissions,omitempty"`
	RedirectURIs           []string `json:"redirect_uris,omitempty"`
	PostLogoutRedirectURIs []string `json:"post_logout_redirect_uris,omitempty"`
	Requirements           []string `json:"requirements,omitempty"`

	// Properties holds the serialized property bag, nil when empty.
	Properties json.RawMessage `json:"properties,omitempty"`
}

// ApplicationEntity is satisfied by Application and by any struct that
// embeds it by value.
type ApplicationEntity interface {
	ApplicationRecord() *Application
}

// ApplicationRecord returns the receiver.
func (a *Application) ApplicationRecord() *Application {
	return a
}

// Clone returns a deep copy of the application.
func (a *Application) Clone() Application {
	c := *a
	c.Permissions = cloneStrings(a.Permissions)
	c.RedirectURIs = cloneStrings(a.RedirectURIs)
	c.PostLogoutRedirectURIs = cloneStrings(a.PostLogoutRedirectURIs)
	c.Requirements = cloneStrings(a.Requirements)
	c.Properties = cloneRaw(a.Properties)
	return c
}
