// Package models defines the persisted OpenID Connect entities. The
// types carry no behaviour beyond copying themselves; lookups and
// lifecycle rules live in the store package.
package models

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"
	"time"

	"golang.org/x/text/language"
)

// Client types.
const (
	ClientTypeConfidential = "confidential"
	ClientTypePublic       = "public"
)

// Consent types.
const (
	ConsentTypeExplicit   = "explicit"
	ConsentTypeExternal   = "external"
	ConsentTypeImplicit   = "implicit"
	ConsentTypeSystematic = "systematic"
)

// Statuses shared by authorizations and tokens.
const (
	StatusInactive = "inactive"
	StatusPending  = "pending"
	StatusRedeemed = "redeemed"
	StatusRejected = "rejected"
	StatusRevoked  = "revoked"
	StatusValid    = "valid"
)

// Authorization types.
const (
	AuthorizationTypeAdHoc     = "ad-hoc"
	AuthorizationTypePermanent = "permanent"
)

// Token types.
const (
	TokenTypeAccessToken       = "access_token"
	TokenTypeAuthorizationCode = "authorization_code"
	TokenTypeDeviceCode        = "device_code"
	TokenTypeIDToken           = "id_token"
	TokenTypeRefreshToken      = "refresh_token"
	TokenTypeUserCode          = "user_code"
)

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return bytes.Clone(raw)
}

func cloneLocalized(m map[language.Tag]string) map[language.Tag]string {
	return maps.Clone(m)
}

func cloneStrings(s []string) []string {
	return slices.Clone(s)
}
