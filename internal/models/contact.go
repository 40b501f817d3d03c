package models

import "strings"

// Gender is the contact gender enum used by the backend.
type Gender int

const (
	GenderUnknown Gender = 0
	GenderMale    Gender = 1
	GenderFemale  Gender = 2
)

// Contact is the local record for one account. Account and AccountAlias are
// two coexisting identifier namespaces for the same contact; either may be
// used as a cache key.
type Contact struct {
	Account      string `json:"account"`
	AccountAlias string `json:"account_alias"`
	Name         string `json:"name"`
	Remark       string `json:"remark,omitempty"`
	Avatar       string `json:"avatar,omitempty"`
	Province     string `json:"province,omitempty"`
	City         string `json:"city,omitempty"`
	Description  string `json:"description,omitempty"`
	Gender       Gender `json:"gender"`
	Stranger     string `json:"stranger,omitempty"`
	Disturb      string `json:"disturb,omitempty"`
}

// ID returns the preferred cache key: the alias when present, otherwise the
// account identifier.
func (c *Contact) ID() string {
	if c.AccountAlias != "" {
		return c.AccountAlias
	}
	return c.Account
}

// IsFriend reports whether the stranger marker indicates an accepted friend.
func (c *Contact) IsFriend() bool {
	return strings.HasPrefix(c.Stranger, "v1_")
}

// IsRoomID reports whether id names a room rather than a contact.
func IsRoomID(id string) bool {
	return strings.HasSuffix(id, "@chatroom")
}
