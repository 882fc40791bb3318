package market

import (
	"path/filepath"
	"testing"

	"github.com/boltdb/bolt"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mintbay/nft-trade/bank"
	"github.com/mintbay/nft-trade/events"
	"github.com/mintbay/nft-trade/registry"
)

const (
	minter   = "0xminter"
	mktOwner = "0xmarketowner"
	mktAddr  = "0xmarketplace"
	feeSink  = "0xfeesink"
	seller   = "0xseller"
	buyer    = "0xbuyer"
	other    = "0xaddr1"

	contract = "mynft"
)

func ether(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), uint256.NewInt(1000000000000000000))
}

// 0.5 ETH, for the wrong-payment case
func halfEther() *uint256.Int {
	return uint256.NewInt(500000000000000000)
}

type fixture struct {
	reg     *registry.Registry
	bnk     *bank.Bank
	mkt     *Ledger
	logPath string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	db, err := bolt.Open(filepath.Join(dir, "test.db"), 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logPath := filepath.Join(dir, "events.jsonl")
	trail, err := events.Open(logPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { trail.Close() })

	reg, err := registry.New(db, contract, minter)
	require.NoError(t, err)
	bnk, err := bank.New(db)
	require.NoError(t, err)
	mkt, err := New(db, mktAddr, mktOwner, feeSink, bnk, trail)
	require.NoError(t, err)
	mkt.AddContract(reg.Name(), reg)

	return &fixture{reg: reg, bnk: bnk, mkt: mkt, logPath: logPath}
}

// mints a token to seller and approves the marketplace for it
func (f *fixture) mintApproved(t *testing.T) uint64 {
	t.Helper()
	tokenID, err := f.reg.Mint(minter, seller, "QmTestHash1")
	require.NoError(t, err)
	require.NoError(t, f.reg.Approve(seller, f.mkt.Address(), tokenID))
	return tokenID
}

func (f *fixture) balance(t *testing.T, addr string) *uint256.Int {
	t.Helper()
	b, err := f.bnk.Balance(addr)
	require.NoError(t, err)
	return b
}

func TestDefaultFee(t *testing.T) {
	f := newFixture(t)

	bps, err := f.mkt.GetMarketplaceFee()
	require.NoError(t, err)
	assert.Equal(t, uint64(250), bps)

	recipient, err := f.mkt.FeeRecipient()
	require.NoError(t, err)
	assert.Equal(t, feeSink, recipient)
}

func TestListNFT(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)

	listingID, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), listingID)

	lst, err := f.mkt.GetListing(listingID)
	require.NoError(t, err)
	assert.Equal(t, contract, lst.Contract)
	assert.Equal(t, tokenID, lst.TokenID)
	assert.Equal(t, seller, lst.Seller)
	assert.Equal(t, ether(1), lst.Price)
	assert.True(t, lst.Active)

	evs, err := events.Read(f.logPath)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, events.TypeListed, evs[0].Type)
	assert.Equal(t, listingID, evs[0].ListingID)
	assert.Equal(t, ether(1).Dec(), evs[0].Price)
}

func TestListNFTNotOwner(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)

	_, err := f.mkt.ListNFT(buyer, contract, tokenID, ether(1))
	assert.ErrorIs(t, err, ErrNotOwner)

	listings, err := f.mkt.GetAllListings()
	require.NoError(t, err)
	assert.Empty(t, listings)
}

func TestListNFTNotApproved(t *testing.T) {
	f := newFixture(t)
	tokenID, err := f.reg.Mint(minter, seller, "QmTestHash1")
	require.NoError(t, err)

	_, err = f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	assert.ErrorIs(t, err, ErrNotApproved)

	// approving some other operator is not enough
	require.NoError(t, f.reg.Approve(seller, other, tokenID))
	_, err = f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	assert.ErrorIs(t, err, ErrNotApproved)
}

func TestListNFTInvalidPrice(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)

	_, err := f.mkt.ListNFT(seller, contract, tokenID, uint256.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidPrice)

	_, err = f.mkt.ListNFT(seller, contract, tokenID, nil)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestListNFTAlreadyListed(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)

	_, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)

	_, err = f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	assert.ErrorIs(t, err, ErrAlreadyListed)

	listings, err := f.mkt.GetAllListings()
	require.NoError(t, err)
	assert.Len(t, listings, 1)
}

func TestListNFTUnknownContract(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)

	_, err := f.mkt.ListNFT(seller, "bogus", tokenID, ether(1))
	assert.ErrorIs(t, err, ErrUnknownContract)
}

func TestListNFTNoSuchToken(t *testing.T) {
	f := newFixture(t)

	_, err := f.mkt.ListNFT(seller, contract, 42, ether(1))
	assert.ErrorIs(t, err, registry.ErrNoSuchToken)
}

func TestBuyNFT(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)
	listingID, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)
	require.NoError(t, f.bnk.Deposit(buyer, ether(1)))

	require.NoError(t, f.mkt.BuyNFT(buyer, listingID, ether(1)))

	owner, err := f.reg.OwnerOf(tokenID)
	require.NoError(t, err)
	assert.Equal(t, buyer, owner)

	lst, err := f.mkt.GetListing(listingID)
	require.NoError(t, err)
	assert.False(t, lst.Active)

	// 2.5% fee split: 0.975 to the seller, 0.025 to the fee sink
	assert.Equal(t, "975000000000000000", f.balance(t, seller).Dec())
	assert.Equal(t, "25000000000000000", f.balance(t, feeSink).Dec())
	assert.True(t, f.balance(t, buyer).IsZero())

	evs, err := events.Read(f.logPath)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, events.TypeSold, evs[1].Type)
	assert.Equal(t, buyer, evs[1].Buyer)
	assert.Equal(t, seller, evs[1].Seller)
}

func TestBuyNFTWrongAmount(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)
	listingID, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)
	require.NoError(t, f.bnk.Deposit(buyer, ether(2)))

	// underpayment
	err = f.mkt.BuyNFT(buyer, listingID, halfEther())
	assert.ErrorIs(t, err, ErrWrongAmount)

	// overpayment is rejected too, exact amount only
	err = f.mkt.BuyNFT(buyer, listingID, ether(2))
	assert.ErrorIs(t, err, ErrWrongAmount)

	// state unchanged
	owner, err := f.reg.OwnerOf(tokenID)
	require.NoError(t, err)
	assert.Equal(t, seller, owner)
	lst, err := f.mkt.GetListing(listingID)
	require.NoError(t, err)
	assert.True(t, lst.Active)
	assert.Equal(t, ether(2), f.balance(t, buyer))
	assert.True(t, f.balance(t, seller).IsZero())
}

func TestBuyNFTOwnListing(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)
	listingID, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)
	require.NoError(t, f.bnk.Deposit(seller, ether(1)))

	err = f.mkt.BuyNFT(seller, listingID, ether(1))
	assert.ErrorIs(t, err, ErrOwnListing)
}

func TestBuyNFTNotActive(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)
	listingID, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)
	require.NoError(t, f.bnk.Deposit(buyer, ether(1)))
	require.NoError(t, f.bnk.Deposit(other, ether(1)))

	require.NoError(t, f.mkt.BuyNFT(buyer, listingID, ether(1)))

	// sold once, the listing is dead regardless of payment
	err = f.mkt.BuyNFT(other, listingID, ether(1))
	assert.ErrorIs(t, err, ErrNotActive)

	owner, err := f.reg.OwnerOf(tokenID)
	require.NoError(t, err)
	assert.Equal(t, buyer, owner)
	assert.Equal(t, ether(1), f.balance(t, other))
}

func TestBuyNFTNoSuchListing(t *testing.T) {
	f := newFixture(t)

	err := f.mkt.BuyNFT(buyer, 99, ether(1))
	assert.ErrorIs(t, err, ErrNoSuchListing)
}

func TestBuyNFTInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)
	listingID, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)

	err = f.mkt.BuyNFT(buyer, listingID, ether(1))
	assert.ErrorIs(t, err, bank.ErrInsufficientFunds)

	// the whole purchase rolled back, including the token transfer
	owner, err := f.reg.OwnerOf(tokenID)
	require.NoError(t, err)
	assert.Equal(t, seller, owner)
	lst, err := f.mkt.GetListing(listingID)
	require.NoError(t, err)
	assert.True(t, lst.Active)
}

func TestFeeConservation(t *testing.T) {
	for _, price := range []uint64{10000, 10001, 19999, 1, 39, 123456789} {
		fee, sellerAmount, err := splitPrice(uint256.NewInt(price), 250)
		require.NoError(t, err, "price %d", price)

		total := new(uint256.Int).Add(fee, sellerAmount)
		assert.Equal(t, uint256.NewInt(price), total, "price %d", price)

		// floor division, remainder accrues to the seller
		assert.Equal(t, price*250/10000, fee.Uint64(), "price %d", price)
	}
}

func TestSplitPriceOverflow(t *testing.T) {
	// price*bps wraps mod 2^256 here; the split must refuse instead of
	// settling with a fee of zero
	price := new(uint256.Int).Lsh(uint256.NewInt(1), 255)

	_, _, err := splitPrice(price, 250)
	assert.ErrorIs(t, err, ErrPriceOverflow)

	// just below the wrap boundary the split still conserves the price
	safe := new(uint256.Int).Div(new(uint256.Int).SetAllOne(), uint256.NewInt(250))
	fee, sellerAmount, err := splitPrice(safe, 250)
	require.NoError(t, err)
	assert.Equal(t, safe, new(uint256.Int).Add(fee, sellerAmount))
}

func TestBuyNFTPriceOverflow(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)

	price := new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	listingID, err := f.mkt.ListNFT(seller, contract, tokenID, price)
	require.NoError(t, err)
	require.NoError(t, f.bnk.Deposit(buyer, price))

	err = f.mkt.BuyNFT(buyer, listingID, price)
	assert.ErrorIs(t, err, ErrPriceOverflow)

	// nothing settled: token, listing and balances are untouched
	owner, err := f.reg.OwnerOf(tokenID)
	require.NoError(t, err)
	assert.Equal(t, seller, owner)
	lst, err := f.mkt.GetListing(listingID)
	require.NoError(t, err)
	assert.True(t, lst.Active)
	assert.Equal(t, price, f.balance(t, buyer))
	assert.True(t, f.balance(t, seller).IsZero())
}

func TestCancelListing(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)
	listingID, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)

	require.NoError(t, f.mkt.CancelListing(seller, listingID))

	lst, err := f.mkt.GetListing(listingID)
	require.NoError(t, err)
	assert.False(t, lst.Active)

	// cancelled listings cannot be bought
	require.NoError(t, f.bnk.Deposit(buyer, ether(1)))
	err = f.mkt.BuyNFT(buyer, listingID, ether(1))
	assert.ErrorIs(t, err, ErrNotActive)

	// the slot is free again and the new listing gets a fresh id
	newID, err := f.mkt.ListNFT(seller, contract, tokenID, ether(2))
	require.NoError(t, err)
	assert.Equal(t, listingID+1, newID)
}

func TestCancelListingNotSeller(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)
	listingID, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)

	err = f.mkt.CancelListing(other, listingID)
	assert.ErrorIs(t, err, ErrNotOwner)

	lst, err := f.mkt.GetListing(listingID)
	require.NoError(t, err)
	assert.True(t, lst.Active)
}

func TestCancelListingNotActive(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)
	listingID, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)
	require.NoError(t, f.mkt.CancelListing(seller, listingID))

	err = f.mkt.CancelListing(seller, listingID)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestUpdatePrice(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)
	listingID, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)

	require.NoError(t, f.mkt.UpdatePrice(seller, listingID, ether(2)))

	lst, err := f.mkt.GetListing(listingID)
	require.NoError(t, err)
	assert.Equal(t, listingID, lst.ID)
	assert.Equal(t, ether(2), lst.Price)
	assert.True(t, lst.Active)

	// the old price no longer clears
	require.NoError(t, f.bnk.Deposit(buyer, ether(2)))
	err = f.mkt.BuyNFT(buyer, listingID, ether(1))
	assert.ErrorIs(t, err, ErrWrongAmount)

	require.NoError(t, f.mkt.BuyNFT(buyer, listingID, ether(2)))
}

func TestUpdatePriceNotSeller(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)
	listingID, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)

	err = f.mkt.UpdatePrice(other, listingID, ether(2))
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestUpdatePriceInvalid(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)
	listingID, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)

	err = f.mkt.UpdatePrice(seller, listingID, uint256.NewInt(0))
	assert.ErrorIs(t, err, ErrInvalidPrice)

	require.NoError(t, f.mkt.CancelListing(seller, listingID))
	err = f.mkt.UpdatePrice(seller, listingID, ether(2))
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestGetAllListings(t *testing.T) {
	f := newFixture(t)

	token1, err := f.reg.Mint(minter, seller, "QmTestHash1")
	require.NoError(t, err)
	token2, err := f.reg.Mint(minter, seller, "QmTestHash2")
	require.NoError(t, err)
	require.NoError(t, f.reg.Approve(seller, f.mkt.Address(), token1))
	require.NoError(t, f.reg.Approve(seller, f.mkt.Address(), token2))

	id1, err := f.mkt.ListNFT(seller, contract, token1, ether(1))
	require.NoError(t, err)
	id2, err := f.mkt.ListNFT(seller, contract, token2, ether(2))
	require.NoError(t, err)
	require.NoError(t, f.mkt.CancelListing(seller, id1))

	listings, err := f.mkt.GetAllListings()
	require.NoError(t, err)
	require.Len(t, listings, 2)

	// ascending id order, inactive history included
	assert.Equal(t, id1, listings[0].ID)
	assert.False(t, listings[0].Active)
	assert.Equal(t, ether(1), listings[0].Price)
	assert.Equal(t, id2, listings[1].ID)
	assert.True(t, listings[1].Active)
	assert.Equal(t, ether(2), listings[1].Price)
}

func TestSetFee(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.mkt.SetFee(seller, 100), ErrUnauthorized)
	assert.ErrorIs(t, f.mkt.SetFee(mktOwner, 10001), ErrInvalidFee)

	require.NoError(t, f.mkt.SetFee(mktOwner, 0))
	bps, err := f.mkt.GetMarketplaceFee()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), bps)

	// with a zero fee the seller receives the full price
	tokenID := f.mintApproved(t)
	listingID, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)
	require.NoError(t, f.bnk.Deposit(buyer, ether(1)))
	require.NoError(t, f.mkt.BuyNFT(buyer, listingID, ether(1)))

	assert.Equal(t, ether(1), f.balance(t, seller))
	assert.True(t, f.balance(t, feeSink).IsZero())
}

func TestSetFeeRecipient(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.mkt.SetFeeRecipient(seller, other), ErrUnauthorized)

	require.NoError(t, f.mkt.SetFeeRecipient(mktOwner, other))
	recipient, err := f.mkt.FeeRecipient()
	require.NoError(t, err)
	assert.Equal(t, other, recipient)

	tokenID := f.mintApproved(t)
	listingID, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)
	require.NoError(t, f.bnk.Deposit(buyer, ether(1)))
	require.NoError(t, f.mkt.BuyNFT(buyer, listingID, ether(1)))

	assert.Equal(t, "25000000000000000", f.balance(t, other).Dec())
	assert.True(t, f.balance(t, feeSink).IsZero())
}

// at most one active listing per (contract, token) at any point
func assertSingleActive(t *testing.T, f *fixture) {
	t.Helper()
	listings, err := f.mkt.GetAllListings()
	require.NoError(t, err)
	active := make(map[string]map[uint64]int)
	for _, lst := range listings {
		if !lst.Active {
			continue
		}
		if active[lst.Contract] == nil {
			active[lst.Contract] = make(map[uint64]int)
		}
		active[lst.Contract][lst.TokenID]++
		assert.LessOrEqual(t, active[lst.Contract][lst.TokenID], 1,
			"duplicate active listing for token %d", lst.TokenID)
	}
}

func TestSingleActiveListingInvariant(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)
	require.NoError(t, f.bnk.Deposit(buyer, ether(3)))

	id, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)
	assertSingleActive(t, f)

	_, err = f.mkt.ListNFT(seller, contract, tokenID, ether(2))
	require.Error(t, err)
	assertSingleActive(t, f)

	require.NoError(t, f.mkt.CancelListing(seller, id))
	assertSingleActive(t, f)

	id, err = f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)
	assertSingleActive(t, f)

	require.NoError(t, f.mkt.BuyNFT(buyer, id, ether(1)))
	assertSingleActive(t, f)
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t)
	tokenID := f.mintApproved(t)
	require.NoError(t, f.bnk.Deposit(buyer, ether(2)))

	id, err := f.mkt.ListNFT(seller, contract, tokenID, ether(1))
	require.NoError(t, err)
	require.NoError(t, f.mkt.UpdatePrice(seller, id, ether(2)))
	require.NoError(t, f.mkt.CancelListing(seller, id))

	id2, err := f.mkt.ListNFT(seller, contract, tokenID, ether(2))
	require.NoError(t, err)
	require.NoError(t, f.mkt.BuyNFT(buyer, id2, ether(2)))

	evs, err := events.Read(f.logPath)
	require.NoError(t, err)
	require.Len(t, evs, 5)

	types := make([]string, len(evs))
	for i, ev := range evs {
		types[i] = ev.Type
	}
	assert.Equal(t, []string{
		events.TypeListed,
		events.TypePriceChanged,
		events.TypeCancelled,
		events.TypeListed,
		events.TypeSold,
	}, types)
}
