package model

import "time"

// Storefront is a user's rotating daily offer list.
type Storefront struct {
	IdentityID string        `json:"identity_id"`
	Username   string        `json:"username"`
	OfferIDs   []string      `json:"offer_ids"`
	Remaining  time.Duration `json:"remaining_ns"`
	FetchedAt  time.Time     `json:"fetched_at"`
}

// ExpiresAt returns when the offers rotate.
func (s *Storefront) ExpiresAt() time.Time {
	return s.FetchedAt.Add(s.Remaining)
}

// ShopView is a storefront with its offers resolved against the catalog.
type ShopView struct {
	IdentityID string     `json:"identity_id"`
	Username   string     `json:"username"`
	ExpiresAt  time.Time  `json:"expires_at"`
	Offers     []ItemView `json:"offers"`
}

// Wallet holds a user's currency balances.
type Wallet struct {
	IdentityID string `json:"identity_id"`
	Username   string `json:"username"`
	Points     int    `json:"valorant_points"`
	Radianite  int    `json:"radianite"`
}
