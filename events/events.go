// Package events is the marketplace audit trail. Every listing state
// change is appended as one JSON line to a log file and published on the
// in-process bus, so indexers can either tail the file or subscribe live
// without polling the ledger.
package events

import "time"

const (
	TypeListed       = "listed"
	TypeSold         = "sold"
	TypeCancelled    = "cancelled"
	TypePriceChanged = "price_changed"
)

// Topic is the bus topic all marketplace events are published on.
const Topic = "market:events"

type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ListingID uint64    `json:"listing_id"`
	Contract  string    `json:"nft_contract"`
	TokenID   uint64    `json:"token_id"`
	Seller    string    `json:"seller"`
	Buyer     string    `json:"buyer,omitempty"`
	Price     string    `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}
