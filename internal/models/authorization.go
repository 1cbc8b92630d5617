package models

import (
	"encoding/json"
	"time"
)

// Authorization records a consent granted by a subject to an application.
type Authorization struct {
	ID              int64  `json:"id"`
	AuthorizationID string `json:"authorization_id"`

	ApplicationID string     `json:"application_id,omitempty"`
	Subject       string     `json:"subject"`
	Status        string     `json:"status"`
	Type          string     `json:"type"`
	Scopes        []string   `json:"scopes,omitempty"`
	CreationDate  *time.Time `json:"creation_date,omitempty"`

	Properties json.RawMessage `json:"properties,omitempty"`
}

// AuthorizationEntity is satisfied by Authorization and by any struct
// that embeds it by value.
type AuthorizationEntity interface {
	AuthorizationRecord() *Authorization
}

// AuthorizationRecord returns the receiver.
func (a *Authorization) AuthorizationRecord() *Authorization {
	return a
}

// Clone returns a deep copy of the authorization.
func (a *Authorization) Clone() Authorization {
	c := *a
	c.Scopes = cloneStrings(a.Scopes)
	c.CreationDate = cloneTime(a.CreationDate)
	c.Properties = cloneRaw(a.Properties)
	return c
}
