package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
)

type buyRequest struct {
	Caller  string `json:"caller"`
	Payment string `json:"payment"`
}

func handleBuy() gin.HandlerFunc {
	return func(c *gin.Context) {
		listingID, ok := parseIDParam(c, "listingId")
		if !ok {
			return
		}

		var req buyRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"message": "invalid request body"})
			return
		}

		payment, err := uint256.FromDecimal(req.Payment)
		if err != nil {
			c.JSON(400, gin.H{"message": "invalid payment"})
			return
		}

		if err := mkt.BuyNFT(req.Caller, listingID, payment); err != nil {
			checkErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"listing_id": listingID, "buyer": req.Caller})
	}
}
