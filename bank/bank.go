// Package bank keeps native-unit account balances and moves funds between
// them. It backs the payment leg of a marketplace sale: the debit of the
// buyer and both credits happen inside the same bolt transaction as the
// token transfer, so a sale either settles completely or not at all.
package bank

import (
	goerrors "errors"

	"github.com/boltdb/bolt"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

var (
	ErrInsufficientFunds = goerrors.New("insufficient funds")
	ErrInvalidAmount     = goerrors.New("invalid amount")
)

var bucketBalances = []byte("balances")

type Bank struct {
	db *bolt.DB
}

func New(db *bolt.DB) (*Bank, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBalances)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to init the balance bucket")
	}
	return &Bank{db: db}, nil
}

// BalanceTx reads the balance of address; missing accounts hold zero.
func (b *Bank) BalanceTx(tx *bolt.Tx, address string) *uint256.Int {
	val := tx.Bucket(bucketBalances).Get([]byte(address))
	if val == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).SetBytes(val)
}

func (b *Bank) putBalance(tx *bolt.Tx, address string, amount *uint256.Int) error {
	return tx.Bucket(bucketBalances).Put([]byte(address), amount.Bytes())
}

// DepositTx credits address with amount.
func (b *Bank) DepositTx(tx *bolt.Tx, address string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	balance, overflow := new(uint256.Int).AddOverflow(b.BalanceTx(tx, address), amount)
	if overflow {
		return errors.Wrapf(ErrInvalidAmount, "balance overflow for %s", address)
	}
	return b.putBalance(tx, address, balance)
}

// MoveTx debits from and credits to by amount within the transaction.
// Zero-amount moves are allowed so a zero fee leg is a no-op, not an error.
func (b *Bank) MoveTx(tx *bolt.Tx, from, to string, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	if amount.IsZero() {
		return nil
	}

	fromBalance := b.BalanceTx(tx, from)
	if fromBalance.Cmp(amount) < 0 {
		return errors.Wrapf(ErrInsufficientFunds, "account %s", from)
	}
	if err := b.putBalance(tx, from, new(uint256.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}

	toBalance, overflow := new(uint256.Int).AddOverflow(b.BalanceTx(tx, to), amount)
	if overflow {
		return errors.Wrapf(ErrInvalidAmount, "balance overflow for %s", to)
	}
	return b.putBalance(tx, to, toBalance)
}

func (b *Bank) Deposit(address string, amount *uint256.Int) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return b.DepositTx(tx, address, amount)
	})
}

func (b *Bank) Move(from, to string, amount *uint256.Int) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return b.MoveTx(tx, from, to, amount)
	})
}

func (b *Bank) Balance(address string) (*uint256.Int, error) {
	var balance *uint256.Int
	err := b.db.View(func(tx *bolt.Tx) error {
		balance = b.BalanceTx(tx, address)
		return nil
	})
	return balance, err
}
