package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	evbus "github.com/asaskevich/EventBus"
	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/hcl"
	"github.com/sirupsen/logrus"

	"github.com/mintbay/nft-trade/bank"
	"github.com/mintbay/nft-trade/events"
	"github.com/mintbay/nft-trade/market"
	"github.com/mintbay/nft-trade/registry"
)

var (
	cfg   *config
	db    *bolt.DB
	reg   *registry.Registry
	bnk   *bank.Bank
	mkt   *market.Ledger
	trail *events.Log
	bus   evbus.Bus
)

type config struct {
	Port          int    `hcl:"port"`
	DataDir       string `hcl:"datadir"`
	Minter        string `hcl:"minter"`
	Collection    string `hcl:"collection"`
	MarketOwner   string `hcl:"market_owner"`
	MarketAccount string `hcl:"market_account"`
	FeeRecipient  string `hcl:"fee_recipient"`
}

func readConfig(confpath string) *config {
	var cfg config

	dat, err := os.ReadFile(confpath)
	if err != nil {
		panic(fmt.Sprintf("unable to read the configuration: %v", err))
	}

	if err = hcl.Unmarshal(dat, &cfg); nil != err {
		panic(fmt.Sprintf("unable to parse the configuration: %v", err))
	}

	if cfg.Collection == "" {
		cfg.Collection = "mynft"
	}
	if cfg.MarketAccount == "" {
		cfg.MarketAccount = "marketplace"
	}

	return &cfg
}

func openDB(dbpath string) *bolt.DB {
	db, err := bolt.Open(dbpath, 0660, nil)
	if err != nil {
		panic(fmt.Sprintf("unable to init the database: %v", err))
	}
	return db
}

func setup() {
	var err error

	bus = evbus.New()
	trail, err = events.Open(filepath.Join(cfg.DataDir, "events.jsonl"), bus)
	if err != nil {
		panic(fmt.Sprintf("unable to open the event log: %v", err))
	}

	reg, err = registry.New(db, cfg.Collection, cfg.Minter)
	if err != nil {
		panic(fmt.Sprintf("unable to init the asset registry: %v", err))
	}

	bnk, err = bank.New(db)
	if err != nil {
		panic(fmt.Sprintf("unable to init the balance ledger: %v", err))
	}

	mkt, err = market.New(db, cfg.MarketAccount, cfg.MarketOwner, cfg.FeeRecipient, bnk, trail)
	if err != nil {
		panic(fmt.Sprintf("unable to init the marketplace ledger: %v", err))
	}
	mkt.AddContract(reg.Name(), reg)
}

func newRouter() *gin.Engine {
	r := gin.Default()

	v1 := r.Group("/v1")

	v1.POST("/tokens", handleMint())
	v1.GET("/tokens/:tokenId", handleGetToken())
	v1.POST("/tokens/:tokenId/approve", handleApprove())
	v1.POST("/tokens/:tokenId/transfer", handleTokenTransfer())
	v1.GET("/supply", handleSupply())

	v1.POST("/listings", handleList())
	v1.GET("/listings", handleGetAllListings())
	v1.GET("/listings/:listingId", handleGetListing())
	v1.POST("/listings/:listingId/buy", handleBuy())
	v1.POST("/listings/:listingId/cancel", handleCancel())
	v1.POST("/listings/:listingId/price", handleUpdatePrice())

	v1.GET("/fee", handleGetFee())
	v1.POST("/fee", handleSetFee())
	v1.POST("/fee/recipient", handleSetFeeRecipient())

	v1.POST("/accounts/:address/deposit", handleDeposit())
	v1.GET("/accounts/:address", handleBalance())

	v1.GET("/events", handleEventStream())

	return r
}

func main() {
	var confpath string
	flag.StringVar(&confpath, "conf", "", "Specify configuration file")
	flag.Parse()

	cfg = readConfig(confpath)
	db = openDB(filepath.Join(cfg.DataDir, "nft-trade.db"))
	setup()

	logrus.Infof("nft-trade listening on :%d", cfg.Port)
	newRouter().Run(fmt.Sprintf(":%d", cfg.Port))
}
