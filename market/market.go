// Package market is the marketplace ledger: it records fixed-price
// listings for tokens held in one or more asset registries, executes
// purchases with a basis-point fee split, and writes every state change to
// the audit trail.
//
// The ledger never holds tokens itself. Sellers approve the ledger's
// account as the token's operator, and the purchase moves token and funds
// inside one bolt transaction, so either every leg settles or none does.
package market

import (
	"encoding/binary"

	"github.com/boltdb/bolt"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/mintbay/nft-trade/events"
)

// DefaultFeeBps is the initial marketplace fee: 250 bps = 2.5%.
const DefaultFeeBps = 250

const feeDenominator = 10000

// AssetRegistry is the narrow view of a token registry the ledger needs.
type AssetRegistry interface {
	OwnerOfTx(tx *bolt.Tx, tokenID uint64) (string, error)
	ApprovedOperatorOfTx(tx *bolt.Tx, tokenID uint64) (string, error)
	TransferTx(tx *bolt.Tx, caller, from, to string, tokenID uint64) error
}

// Bank moves native-unit funds between accounts.
type Bank interface {
	MoveTx(tx *bolt.Tx, from, to string, amount *uint256.Int) error
}

var (
	bucketListings = []byte("listings")
	bucketIndex    = []byte("listing-index")
	bucketConfig   = []byte("market-config")

	keyFeeBps       = []byte("fee_bps")
	keyFeeRecipient = []byte("fee_recipient")
)

type Ledger struct {
	db        *bolt.DB
	address   string // operator account sellers approve
	owner     string // may change fee and recipient
	bank      Bank
	contracts map[string]AssetRegistry
	trail     *events.Log
}

// New opens the listing buckets and seeds the fee configuration on first
// run. trail may be nil.
func New(db *bolt.DB, address, owner, feeRecipient string, bank Bank, trail *events.Log) (*Ledger, error) {
	l := &Ledger{
		db:        db,
		address:   address,
		owner:     owner,
		bank:      bank,
		contracts: make(map[string]AssetRegistry),
		trail:     trail,
	}
	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketListings, bucketIndex, bucketConfig} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		cfg := tx.Bucket(bucketConfig)
		if cfg.Get(keyFeeBps) == nil {
			if err := cfg.Put(keyFeeBps, itob(DefaultFeeBps)); err != nil {
				return err
			}
		}
		if cfg.Get(keyFeeRecipient) == nil {
			if err := cfg.Put(keyFeeRecipient, []byte(feeRecipient)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to init the listing buckets")
	}
	return l, nil
}

// AddContract registers an asset registry under its contract name.
// Wiring-time only, not safe once the ledger serves requests.
func (l *Ledger) AddContract(name string, reg AssetRegistry) {
	l.contracts[name] = reg
}

// Address is the operator account sellers must approve before listing.
func (l *Ledger) Address() string {
	return l.address
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func indexKey(contract string, tokenID uint64) []byte {
	return append([]byte(contract+"\x00"), itob(tokenID)...)
}

func (l *Ledger) getListing(tx *bolt.Tx, listingID uint64) (*Listing, error) {
	val := tx.Bucket(bucketListings).Get(itob(listingID))
	if val == nil {
		return nil, ErrNoSuchListing
	}
	var lst Listing
	if err := lst.UnmarshalJSON(val); err != nil {
		return nil, errors.Wrapf(err, "corrupt listing %d", listingID)
	}
	return &lst, nil
}

func (l *Ledger) putListing(tx *bolt.Tx, lst *Listing) error {
	val, err := lst.MarshalJSON()
	if err != nil {
		return err
	}
	return tx.Bucket(bucketListings).Put(itob(lst.ID), val)
}

// ListNFT creates an active listing and returns its 1-based id.
//
// Preconditions, first failure wins: caller owns the token, the ledger's
// account is the approved operator, price is positive, and no active
// listing exists for the same (contract, token) pair.
func (l *Ledger) ListNFT(caller, contract string, tokenID uint64, price *uint256.Int) (uint64, error) {
	reg, ok := l.contracts[contract]
	if !ok {
		return 0, errors.Wrap(ErrUnknownContract, contract)
	}

	var listingID uint64
	err := l.db.Update(func(tx *bolt.Tx) error {
		owner, err := reg.OwnerOfTx(tx, tokenID)
		if err != nil {
			return err
		}
		if owner != caller {
			return ErrNotOwner
		}

		operator, err := reg.ApprovedOperatorOfTx(tx, tokenID)
		if err != nil {
			return err
		}
		if operator != l.address {
			return ErrNotApproved
		}

		if price == nil || price.IsZero() {
			return ErrInvalidPrice
		}

		idx := tx.Bucket(bucketIndex)
		key := indexKey(contract, tokenID)
		if idx.Get(key) != nil {
			return ErrAlreadyListed
		}

		listingID, err = tx.Bucket(bucketListings).NextSequence()
		if err != nil {
			return err
		}
		lst := &Listing{
			ID:       listingID,
			Contract: contract,
			TokenID:  tokenID,
			Seller:   caller,
			Price:    price.Clone(),
			Active:   true,
		}
		if err := l.putListing(tx, lst); err != nil {
			return err
		}
		return idx.Put(key, itob(listingID))
	})
	if err != nil {
		return 0, err
	}

	l.trail.Record(events.Event{
		Type:      events.TypeListed,
		ListingID: listingID,
		Contract:  contract,
		TokenID:   tokenID,
		Seller:    caller,
		Price:     price.Dec(),
	})
	return listingID, nil
}

// BuyNFT executes the sale. payment must equal the listing price exactly;
// over- and underpayment are both rejected. The token transfer, both
// payment legs and the deactivation commit atomically.
func (l *Ledger) BuyNFT(caller string, listingID uint64, payment *uint256.Int) error {
	var sold *Listing
	err := l.db.Update(func(tx *bolt.Tx) error {
		lst, err := l.getListing(tx, listingID)
		if err != nil {
			return err
		}
		if !lst.Active {
			return ErrNotActive
		}
		if caller == lst.Seller {
			return ErrOwnListing
		}
		if payment == nil || payment.Cmp(lst.Price) != 0 {
			return ErrWrongAmount
		}

		reg, ok := l.contracts[lst.Contract]
		if !ok {
			return errors.Wrap(ErrUnknownContract, lst.Contract)
		}

		fee, sellerAmount, err := splitPrice(lst.Price, l.feeBps(tx))
		if err != nil {
			return err
		}

		if err := reg.TransferTx(tx, l.address, lst.Seller, caller, lst.TokenID); err != nil {
			return errors.Wrap(err, "token transfer")
		}
		if err := l.bank.MoveTx(tx, caller, lst.Seller, sellerAmount); err != nil {
			return errors.Wrap(err, "seller payment")
		}
		if err := l.bank.MoveTx(tx, caller, l.feeRecipient(tx), fee); err != nil {
			return errors.Wrap(err, "fee payment")
		}

		lst.Active = false
		if err := l.putListing(tx, lst); err != nil {
			return err
		}
		if err := tx.Bucket(bucketIndex).Delete(indexKey(lst.Contract, lst.TokenID)); err != nil {
			return err
		}
		sold = lst
		return nil
	})
	if err != nil {
		return err
	}

	l.trail.Record(events.Event{
		Type:      events.TypeSold,
		ListingID: sold.ID,
		Contract:  sold.Contract,
		TokenID:   sold.TokenID,
		Seller:    sold.Seller,
		Buyer:     caller,
		Price:     sold.Price.Dec(),
	})
	return nil
}

// splitPrice computes the fee with floor division; the remainder stays
// with the seller. The price*bps product must fit in 256 bits or the sale
// fails rather than settle with a wrapped, too-small fee.
func splitPrice(price *uint256.Int, feeBps uint64) (fee, sellerAmount *uint256.Int, err error) {
	fee, overflow := new(uint256.Int).MulOverflow(price, uint256.NewInt(feeBps))
	if overflow {
		return nil, nil, errors.Wrapf(ErrPriceOverflow, "%s at %d bps", price.Dec(), feeBps)
	}
	fee.Div(fee, uint256.NewInt(feeDenominator))
	sellerAmount = new(uint256.Int).Sub(price, fee)
	return fee, sellerAmount, nil
}

// CancelListing deactivates an active listing. Seller only, no payment
// moves. The (contract, token) slot becomes listable again.
func (l *Ledger) CancelListing(caller string, listingID uint64) error {
	var cancelled *Listing
	err := l.db.Update(func(tx *bolt.Tx) error {
		lst, err := l.getListing(tx, listingID)
		if err != nil {
			return err
		}
		if !lst.Active {
			return ErrNotActive
		}
		if caller != lst.Seller {
			return ErrNotOwner
		}

		lst.Active = false
		if err := l.putListing(tx, lst); err != nil {
			return err
		}
		if err := tx.Bucket(bucketIndex).Delete(indexKey(lst.Contract, lst.TokenID)); err != nil {
			return err
		}
		cancelled = lst
		return nil
	})
	if err != nil {
		return err
	}

	l.trail.Record(events.Event{
		Type:      events.TypeCancelled,
		ListingID: cancelled.ID,
		Contract:  cancelled.Contract,
		TokenID:   cancelled.TokenID,
		Seller:    cancelled.Seller,
		Price:     cancelled.Price.Dec(),
	})
	return nil
}

// UpdatePrice changes the price of an active listing in place; the listing
// id is preserved. Seller only.
func (l *Ledger) UpdatePrice(caller string, listingID uint64, newPrice *uint256.Int) error {
	var updated *Listing
	err := l.db.Update(func(tx *bolt.Tx) error {
		lst, err := l.getListing(tx, listingID)
		if err != nil {
			return err
		}
		if !lst.Active {
			return ErrNotActive
		}
		if caller != lst.Seller {
			return ErrNotOwner
		}
		if newPrice == nil || newPrice.IsZero() {
			return ErrInvalidPrice
		}

		lst.Price = newPrice.Clone()
		if err := l.putListing(tx, lst); err != nil {
			return err
		}
		updated = lst
		return nil
	})
	if err != nil {
		return err
	}

	l.trail.Record(events.Event{
		Type:      events.TypePriceChanged,
		ListingID: updated.ID,
		Contract:  updated.Contract,
		TokenID:   updated.TokenID,
		Seller:    updated.Seller,
		Price:     updated.Price.Dec(),
	})
	return nil
}

// GetListing returns the listing record, active or not.
func (l *Ledger) GetListing(listingID uint64) (*Listing, error) {
	var lst *Listing
	err := l.db.View(func(tx *bolt.Tx) error {
		var err error
		lst, err = l.getListing(tx, listingID)
		return err
	})
	return lst, err
}

// GetAllListings returns every listing ever created, in ascending id
// order. Callers filter by Active themselves.
func (l *Ledger) GetAllListings() ([]Listing, error) {
	var out []Listing
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketListings).ForEach(func(k, v []byte) error {
			var lst Listing
			if err := lst.UnmarshalJSON(v); err != nil {
				return errors.Wrapf(err, "corrupt listing %x", k)
			}
			out = append(out, lst)
			return nil
		})
	})
	return out, err
}

func (l *Ledger) feeBps(tx *bolt.Tx) uint64 {
	val := tx.Bucket(bucketConfig).Get(keyFeeBps)
	if val == nil {
		return DefaultFeeBps
	}
	return binary.BigEndian.Uint64(val)
}

func (l *Ledger) feeRecipient(tx *bolt.Tx) string {
	return string(tx.Bucket(bucketConfig).Get(keyFeeRecipient))
}

// GetMarketplaceFee returns the current fee in basis points.
func (l *Ledger) GetMarketplaceFee() (uint64, error) {
	var bps uint64
	err := l.db.View(func(tx *bolt.Tx) error {
		bps = l.feeBps(tx)
		return nil
	})
	return bps, err
}

// SetFee updates the fee. Marketplace owner only, capped at 100%.
func (l *Ledger) SetFee(caller string, bps uint64) error {
	if caller != l.owner {
		return ErrUnauthorized
	}
	if bps > feeDenominator {
		return errors.Wrapf(ErrInvalidFee, "%d bps", bps)
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConfig).Put(keyFeeBps, itob(bps))
	})
}

// FeeRecipient returns the account the fee leg is paid to.
func (l *Ledger) FeeRecipient() (string, error) {
	var addr string
	err := l.db.View(func(tx *bolt.Tx) error {
		addr = l.feeRecipient(tx)
		return nil
	})
	return addr, err
}

// SetFeeRecipient changes the fee sink. Marketplace owner only.
func (l *Ledger) SetFeeRecipient(caller, recipient string) error {
	if caller != l.owner {
		return ErrUnauthorized
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketConfig).Put(keyFeeRecipient, []byte(recipient))
	})
}
