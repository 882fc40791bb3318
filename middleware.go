package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mintbay/nft-trade/bank"
	"github.com/mintbay/nft-trade/market"
	"github.com/mintbay/nft-trade/registry"
)

// checkErr maps each ledger failure mode to a distinct status so the
// front-end can show actionable messages instead of a generic failure.
func checkErr(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var status int
	switch {
	case errors.Is(err, registry.ErrNoSuchToken),
		errors.Is(err, market.ErrNoSuchListing):
		status = http.StatusNotFound
	case errors.Is(err, registry.ErrUnauthorized),
		errors.Is(err, registry.ErrNotOwner),
		errors.Is(err, registry.ErrNotAuthorized),
		errors.Is(err, market.ErrNotOwner),
		errors.Is(err, market.ErrNotApproved),
		errors.Is(err, market.ErrOwnListing),
		errors.Is(err, market.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, market.ErrAlreadyListed),
		errors.Is(err, market.ErrNotActive):
		status = http.StatusConflict
	case errors.Is(err, market.ErrWrongAmount),
		errors.Is(err, bank.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, market.ErrInvalidPrice),
		errors.Is(err, market.ErrPriceOverflow),
		errors.Is(err, market.ErrInvalidFee),
		errors.Is(err, market.ErrUnknownContract),
		errors.Is(err, bank.ErrInvalidAmount):
		status = http.StatusBadRequest
	default:
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{"message": err.Error()})
}

func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(400, gin.H{"message": "invalid " + name})
		return 0, false
	}
	return id, true
}
