package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
)

type listRequest struct {
	Caller   string `json:"caller"`
	Contract string `json:"nft_contract"`
	TokenID  uint64 `json:"token_id"`
	Price    string `json:"price"`
}

type cancelRequest struct {
	Caller string `json:"caller"`
}

type updatePriceRequest struct {
	Caller string `json:"caller"`
	Price  string `json:"price"`
}

type setFeeRequest struct {
	Caller string `json:"caller"`
	FeeBps uint64 `json:"fee_bps"`
}

type setFeeRecipientRequest struct {
	Caller    string `json:"caller"`
	Recipient string `json:"recipient"`
}

func handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req listRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"message": "invalid request body"})
			return
		}

		price, err := uint256.FromDecimal(req.Price)
		if err != nil {
			c.JSON(400, gin.H{"message": "invalid price"})
			return
		}

		listingID, err := mkt.ListNFT(req.Caller, req.Contract, req.TokenID, price)
		if err != nil {
			checkErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"listing_id": listingID})
	}
}

func handleGetListing() gin.HandlerFunc {
	return func(c *gin.Context) {
		listingID, ok := parseIDParam(c, "listingId")
		if !ok {
			return
		}

		lst, err := mkt.GetListing(listingID)
		if err != nil {
			checkErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"listing": lst})
	}
}

func handleGetAllListings() gin.HandlerFunc {
	return func(c *gin.Context) {
		listings, err := mkt.GetAllListings()
		if err != nil {
			checkErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"listings": listings})
	}
}

func handleCancel() gin.HandlerFunc {
	return func(c *gin.Context) {
		listingID, ok := parseIDParam(c, "listingId")
		if !ok {
			return
		}

		var req cancelRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"message": "invalid request body"})
			return
		}

		if err := mkt.CancelListing(req.Caller, listingID); err != nil {
			checkErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"listing_id": listingID, "active": false})
	}
}

func handleUpdatePrice() gin.HandlerFunc {
	return func(c *gin.Context) {
		listingID, ok := parseIDParam(c, "listingId")
		if !ok {
			return
		}

		var req updatePriceRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"message": "invalid request body"})
			return
		}

		price, err := uint256.FromDecimal(req.Price)
		if err != nil {
			c.JSON(400, gin.H{"message": "invalid price"})
			return
		}

		if err := mkt.UpdatePrice(req.Caller, listingID, price); err != nil {
			checkErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"listing_id": listingID, "price": price.Dec()})
	}
}

func handleGetFee() gin.HandlerFunc {
	return func(c *gin.Context) {
		bps, err := mkt.GetMarketplaceFee()
		if err != nil {
			checkErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"fee_bps": bps})
	}
}

func handleSetFee() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setFeeRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"message": "invalid request body"})
			return
		}

		if err := mkt.SetFee(req.Caller, req.FeeBps); err != nil {
			checkErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"fee_bps": req.FeeBps})
	}
}

func handleSetFeeRecipient() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req setFeeRecipientRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"message": "invalid request body"})
			return
		}

		if err := mkt.SetFeeRecipient(req.Caller, req.Recipient); err != nil {
			checkErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"fee_recipient": req.Recipient})
	}
}
