package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
)

type depositRequest struct {
	Amount string `json:"amount"`
}

func handleDeposit() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Param("address")

		var req depositRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(400, gin.H{"message": "invalid request body"})
			return
		}

		amount, err := uint256.FromDecimal(req.Amount)
		if err != nil {
			c.JSON(400, gin.H{"message": "invalid amount"})
			return
		}

		if err := bnk.Deposit(address, amount); err != nil {
			checkErr(c, err)
			return
		}

		balance, err := bnk.Balance(address)
		if err != nil {
			checkErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"address": address, "balance": balance.Dec()})
	}
}

func handleBalance() gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.Param("address")

		balance, err := bnk.Balance(address)
		if err != nil {
			checkErr(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"address": address, "balance": balance.Dec()})
	}
}
