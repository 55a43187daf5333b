// Package user defines the user, endpoint and SIP credentials records returned
// by the provisioning API and persisted in the session store.
//
// JSON key names are fixed by the provisioning API contract.
package user

//go:generate go tool errtrace -w .

import (
	"encoding/json"
	"log/slog"

	"braces.dev/errtrace"

	"github.com/ghettovoice/softphone/internal/errorutil"
)

// ErrInvalidRecord is returned when a JSON document lacks a required field.
const ErrInvalidRecord errorutil.Error = "invalid record"

// Credentials is a set of SIP credentials.
type Credentials struct {
	Username string
	Realm    string
}

type credentialsJSON struct {
	Username *string `json:"username"`
	Realm    *string `json:"realm"`
}

// MarshalJSON implements [json.Marshaler].
func (c Credentials) MarshalJSON() ([]byte, error) {
	return errtrace.Wrap2(json.Marshal(credentialsJSON{&c.Username, &c.Realm}))
}

// UnmarshalJSON implements [json.Unmarshaler].
func (c *Credentials) UnmarshalJSON(data []byte) error {
	var v credentialsJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return errtrace.Wrap(err)
	}
	if v.Username == nil || v.Realm == nil {
		return errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidRecord, "credentials: missing username or realm"))
	}
	*c = Credentials{Username: *v.Username, Realm: *v.Realm}
	return nil
}

// Endpoint describes a SIP endpoint provisioned for a user.
type Endpoint struct {
	ID            string
	DomainID      string
	ApplicationID string
	Enabled       bool
	Name          string
	SIPURI        string
	Credentials   Credentials
}

type endpointJSON struct {
	ID            *string      `json:"id"`
	DomainID      *string      `json:"domainId"`
	ApplicationID *string      `json:"applicationId"`
	Enabled       *bool        `json:"enabled"`
	Name          *string      `json:"name"`
	SIPURI        *string      `json:"sipUri"`
	Credentials   *Credentials `json:"credentials"`
}

// MarshalJSON implements [json.Marshaler].
func (e Endpoint) MarshalJSON() ([]byte, error) {
	return errtrace.Wrap2(json.Marshal(endpointJSON{
		ID:            &e.ID,
		DomainID:      &e.DomainID,
		ApplicationID: &e.ApplicationID,
		Enabled:       &e.Enabled,
		Name:          &e.Name,
		SIPURI:        &e.SIPURI,
		Credentials:   &e.Credentials,
	}))
}

// UnmarshalJSON implements [json.Unmarshaler].
func (e *Endpoint) UnmarshalJSON(data []byte) error {
	var v endpointJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return errtrace.Wrap(err)
	}
	if v.ID == nil || v.DomainID == nil || v.ApplicationID == nil || v.Enabled == nil ||
		v.Name == nil || v.SIPURI == nil || v.Credentials == nil {
		return errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidRecord, "endpoint: missing required field"))
	}
	*e = Endpoint{
		ID:            *v.ID,
		DomainID:      *v.DomainID,
		ApplicationID: *v.ApplicationID,
		Enabled:       *v.Enabled,
		Name:          *v.Name,
		SIPURI:        *v.SIPURI,
		Credentials:   *v.Credentials,
	}
	return nil
}

// User is a provisioned softphone user.
// Password is nil when it is not known, e.g. it was cleared after logout.
type User struct {
	Username string
	Password *string
	Number   string
	Endpoint Endpoint
}

type userJSON struct {
	Username *string   `json:"userName"`
	Password *string   `json:"password"`
	Number   *string   `json:"phoneNumber"`
	Endpoint *Endpoint `json:"endpoint"`
}

// MarshalJSON implements [json.Marshaler].
// A nil password is rendered as JSON null.
func (u User) MarshalJSON() ([]byte, error) {
	return errtrace.Wrap2(json.Marshal(userJSON{
		Username: &u.Username,
		Password: u.Password,
		Number:   &u.Number,
		Endpoint: &u.Endpoint,
	}))
}

// UnmarshalJSON implements [json.Unmarshaler].
func (u *User) UnmarshalJSON(data []byte) error {
	var v userJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return errtrace.Wrap(err)
	}
	if v.Username == nil || v.Number == nil || v.Endpoint == nil {
		return errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidRecord, "user: missing userName, phoneNumber or endpoint"))
	}
	*u = User{
		Username: *v.Username,
		Password: v.Password,
		Number:   *v.Number,
		Endpoint: *v.Endpoint,
	}
	return nil
}

// Parse decodes a user record from JSON.
func Parse(data []byte) (*User, error) {
	u := new(User)
	if err := json.Unmarshal(data, u); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return u, nil
}

// WithPassword returns a copy of the user with the password replaced.
func (u *User) WithPassword(pwd string) *User {
	cp := *u
	cp.Password = &pwd
	return &cp
}

// PasswordOrEmpty returns the password or an empty string if it is not set.
func (u *User) PasswordOrEmpty() string {
	if u == nil || u.Password == nil {
		return ""
	}
	return *u.Password
}

// Realm returns the SIP realm of the user's endpoint.
func (u *User) Realm() string {
	if u == nil {
		return ""
	}
	return u.Endpoint.Credentials.Realm
}

// LogValue implements [slog.LogValuer].
// The password is never logged.
func (u *User) LogValue() slog.Value {
	if u == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.String("username", u.Username),
		slog.String("number", u.Number),
		slog.String("sip_username", u.Endpoint.Credentials.Username),
		slog.String("realm", u.Endpoint.Credentials.Realm),
		slog.Bool("has_password", u.Password != nil),
	)
}
