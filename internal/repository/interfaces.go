package repository

import (
	"context"

	"shopbot-api/internal/model"
)

// CatalogStore persists the catalog cache document. Load returns (nil, nil)
// when no usable document exists.
type CatalogStore interface {
	// Load reads the persisted document.
	Load(ctx context.Context) (*model.CacheDocument, error)

	// Save replaces the persisted document.
	Save(ctx context.Context, doc *model.CacheDocument) error

	// Close releases the store.
	Close() error
}

// IdentityRepository is the credential provider consumed by the store client
// and the catalog price refresh.
type IdentityRepository interface {
	// ListIdentities returns identity IDs in registration order.
	ListIdentities(ctx context.Context) ([]string, error)

	// GetIdentity returns the identity, or nil when it does not exist.
	GetIdentity(ctx context.Context, id string) (*model.Identity, error)

	// Authenticate reports whether the identity has a live session.
	Authenticate(ctx context.Context, id string) (bool, error)
}
