package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type mintRequest struct {
	Caller   string `json:"caller"`
	To       string `json:"to"`
	TokenURI string `json:"token_uri"`
}

type approveRequest struct {
	Caller   string `json:"caller"`
	Operator string `json:"operator"`
}

type tokenTransferRequest struct {
	Caller string `json:"caller"`
	From   string `json:"from"`
	To     string `json:"to"`
}

func handleMint() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req mintRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"message": "invalid request body"})
			return
		}

		tokenID, err := reg.Mint(req.Caller, req.To, req.TokenURI)
		if err != nil {
			checkErr(c, err)
			return
		}

		tok, err := reg.Token(tokenID)
		if err != nil {
			checkErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token_id":    tokenID,
			"fingerprint": tok.Fingerprint,
		})
	}
}

func handleApprove() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenID, ok := parseIDParam(c, "tokenId")
		if !ok {
			return
		}

		var req approveRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"message": "invalid request body"})
			return
		}

		if err := reg.Approve(req.Caller, req.Operator, tokenID); err != nil {
			checkErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"token_id": tokenID, "operator": req.Operator})
	}
}

func handleTokenTransfer() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenID, ok := parseIDParam(c, "tokenId")
		if !ok {
			return
		}

		var req tokenTransferRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"message": "invalid request body"})
			return
		}

		if err := reg.Transfer(req.Caller, req.From, req.To, tokenID); err != nil {
			checkErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"token_id": tokenID, "owner": req.To})
	}
}

func handleGetToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenID, ok := parseIDParam(c, "tokenId")
		if !ok {
			return
		}

		tok, err := reg.Token(tokenID)
		if err != nil {
			checkErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token_id":          tokenID,
			"owner":             tok.Owner,
			"token_uri":         tok.TokenURI,
			"approved_operator": tok.Approved,
			"fingerprint":       tok.Fingerprint,
		})
	}
}

func handleSupply() gin.HandlerFunc {
	return func(c *gin.Context) {
		supply, err := reg.TotalSupply()
		if err != nil {
			checkErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"total_supply": supply})
	}
}
