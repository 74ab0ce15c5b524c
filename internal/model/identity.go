package model

import "time"

// Identity is a stored credential record for one bot user. The bot user ID is
// the chat platform user the credentials belong to.
type Identity struct {
	ID               string    `json:"id"`
	Username         string    `json:"username"`
	Region           string    `json:"region"`
	PUUID            string    `json:"puuid"`
	AccessToken      string    `json:"-"`
	EntitlementToken string    `json:"-"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HasSession reports whether the identity carries every field needed for an
// authenticated store call.
func (i *Identity) HasSession() bool {
	return i != nil && i.AccessToken != "" && i.EntitlementToken != "" && i.Region != ""
}
