package market

import (
	"encoding/json"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// Listing is a seller's fixed-price offer for one token. Deactivated
// listings are kept forever as sale history; only Price (while active) and
// Active ever change after creation.
type Listing struct {
	ID       uint64
	Contract string
	TokenID  uint64
	Seller   string
	Price    *uint256.Int
	Active   bool
}

type listingJSON struct {
	ID       uint64 `json:"id"`
	Contract string `json:"nft_contract"`
	TokenID  uint64 `json:"token_id"`
	Seller   string `json:"seller"`
	Price    string `json:"price"`
	Active   bool   `json:"active"`
}

func (l Listing) MarshalJSON() ([]byte, error) {
	return json.Marshal(listingJSON{
		ID:       l.ID,
		Contract: l.Contract,
		TokenID:  l.TokenID,
		Seller:   l.Seller,
		Price:    l.Price.Dec(),
		Active:   l.Active,
	})
}

func (l *Listing) UnmarshalJSON(data []byte) error {
	var w listingJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	price, err := uint256.FromDecimal(w.Price)
	if err != nil {
		return errors.Wrap(err, "listing price")
	}
	*l = Listing{
		ID:       w.ID,
		Contract: w.Contract,
		TokenID:  w.TokenID,
		Seller:   w.Seller,
		Price:    price,
		Active:   w.Active,
	}
	return nil
}
