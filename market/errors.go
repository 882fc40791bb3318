package market

import "errors"

// Listing/sale failure modes. Messages follow the marketplace contract's
// revert reasons so front-ends can show the same copy.
var (
	ErrNotOwner        = errors.New("not the owner")
	ErrPriceOverflow   = errors.New("price too large to compute fee")
	ErrNotApproved     = errors.New("marketplace not approved for this token")
	ErrInvalidPrice    = errors.New("price must be greater than 0")
	ErrAlreadyListed   = errors.New("NFT already listed")
	ErrNotActive       = errors.New("listing not active")
	ErrOwnListing      = errors.New("cannot buy your own NFT")
	ErrWrongAmount     = errors.New("incorrect payment amount")
	ErrNoSuchListing   = errors.New("no listing with this id")
	ErrUnknownContract = errors.New("unknown NFT contract")
	ErrUnauthorized    = errors.New("not the marketplace owner")
	ErrInvalidFee      = errors.New("fee exceeds 10000 basis points")
)
