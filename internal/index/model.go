// Package index maintains the identity index: the append-only record of which
// authenticated identity listed or bought which sealed asset. The ledger is
// the source of truth for ownership; this index only makes assets findable
// per identity.
package index

import (
	"errors"
	"time"
)

// Action distinguishes how an identity came to hold an asset.
type Action string

const (
	// ActionListed marks an asset the identity sealed and put up for sale.
	ActionListed Action = "LISTED"
	// ActionBought marks an asset the identity purchased access to.
	ActionBought Action = "BOUGHT"
)

// DefaultCategory labels records whose scan produced no sector.
const DefaultCategory = "Uncategorized"

// Validation errors.
var (
	ErrMissingOwner   = errors.New("owner identity cannot be empty")
	ErrMissingAssetID = errors.New("asset ID cannot be empty")
	ErrInvalidAction  = errors.New("action must be LISTED or BOUGHT")
)

// ListingRecord is a single identity-index row. Records are never mutated:
// a purchase of a listed asset appends a new BOUGHT row.
type ListingRecord struct {
	// Owner is the authenticated email of the identity holding the asset.
	Owner string `json:"owner"`
	// AssetID is the sealed blob's content hash, unique per (owner, asset).
	AssetID string `json:"assetId"`
	// WalletAddress links the identity to its ledger address.
	WalletAddress string `json:"walletAddress,omitempty"`
	FileName      string `json:"fileName,omitempty"`
	FileType      string `json:"fileType,omitempty"`
	// StorageKey locates the sealed blob in the object store.
	StorageKey string `json:"storageKey,omitempty"`
	// Category is the scan's sector label.
	Category string `json:"category"`
	// Price is the human-entered decimal native-token amount.
	Price  string `json:"price"`
	Action Action `json:"action"`
	// Timestamp is when the row was appended, UTC.
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks the required fields and fills defaults.
func (r *ListingRecord) Validate() error {
	if r.Owner == "" {
		return ErrMissingOwner
	}
	if r.AssetID == "" {
		return ErrMissingAssetID
	}
	if r.Action != ActionListed && r.Action != ActionBought {
		return ErrInvalidAction
	}
	if r.Category == "" {
		r.Category = DefaultCategory
	}
	if r.Price == "" {
		r.Price = "0"
	}
	return nil
}
