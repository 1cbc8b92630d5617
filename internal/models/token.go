package models

import (
	"encoding/json"
	"time"
)

// Token is an issued artifact: an authorization code, access, refresh or
// identity token.
type Token struct {
	ID      int64  `json:"id"`
	TokenID string `json:"token_id"`

	ApplicationID   string `json:"application_id,omitempty"`
	AuthorizationID string `json:"authorization_id,omitempty"`
	Subject         string `json:"subject"`
	Type            string `json:"type"`
	Status          string `json:"status"`

	// Payload is only set for reference tokens and may be encrypted by
	// the caller.
	Payload string `json:"payload,omitempty"`
	// ReferenceID is the lookup handle of a reference token. Callers may
	// store a hash of the handle instead of the handle itself.
	ReferenceID string `json:"reference_id,omitempty"`

	CreationDate   *time.Time `json:"creation_date,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	RedemptionDate *time.Time `json:"redemption_date,omitempty"`

	Properties json.RawMessage `json:"properties,omitempty"`
}

// TokenEntity is satisfied by Token and by any struct that embeds it by
// value.
type TokenEntity interface {
	TokenRecord() *Token
}

// TokenRecord returns the receiver.
func (t *Token) TokenRecord() *Token {
	return t
}

// Clone returns a deep copy of the token.
func (t *Token) Clone() Token {
	c := *t
	c.CreationDate = cloneTime(t.CreationDate)
	c.ExpirationDate = cloneTime(t.ExpirationDate)
	c.RedemptionDate = cloneTime(t.RedemptionDate)
	c.Properties = cloneRaw(t.Properties)
	return c
}
