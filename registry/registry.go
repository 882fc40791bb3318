// Package registry tracks ownership of non-fungible tokens: a sequential
// token id space, one owner per token, an immutable metadata URI, and at
// most one approved operator per token.
//
// All state lives in a single bolt bucket. Methods with a Tx suffix run
// inside a caller-provided transaction so other ledgers can compose with
// them atomically; the plain variants open their own transaction.
package registry

import (
	"encoding/binary"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

type Registry struct {
	db     *bolt.DB
	name   string
	minter string
	bucket []byte
}

// New opens the token bucket for the named collection. Only the minter
// address may mint.
func New(db *bolt.DB, name, minter string) (*Registry, error) {
	r := &Registry{
		db:     db,
		name:   name,
		minter: minter,
		bucket: []byte("tokens-" + name),
	}
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(r.bucket)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to init the token bucket")
	}
	return r, nil
}

func (r *Registry) Name() string {
	return r.name
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func (r *Registry) getToken(tx *bolt.Tx, tokenID uint64) (*Token, error) {
	val := tx.Bucket(r.bucket).Get(itob(tokenID))
	if val == nil {
		return nil, ErrNoSuchToken
	}
	return decodeToken(val)
}

func (r *Registry) putToken(tx *bolt.Tx, tokenID uint64, t *Token) error {
	val, err := encodeToken(t)
	if err != nil {
		return err
	}
	return tx.Bucket(r.bucket).Put(itob(tokenID), val)
}

// MintTx assigns the next sequential token id (starting at 0) to a new
// token owned by to. Caller must be the minter.
func (r *Registry) MintTx(tx *bolt.Tx, caller, to, tokenURI string) (uint64, error) {
	if caller != r.minter {
		return 0, ErrUnauthorized
	}

	b := tx.Bucket(r.bucket)
	seq, err := b.NextSequence()
	if err != nil {
		return 0, err
	}
	tokenID := seq - 1

	t := &Token{
		Owner:       to,
		TokenURI:    tokenURI,
		Fingerprint: computeFingerprint([]byte(tokenURI)),
	}
	return tokenID, r.putToken(tx, tokenID, t)
}

// ApproveTx authorizes operator to transfer the token. Owner only.
func (r *Registry) ApproveTx(tx *bolt.Tx, caller, operator string, tokenID uint64) error {
	t, err := r.getToken(tx, tokenID)
	if err != nil {
		return err
	}
	if caller != t.Owner {
		return ErrNotOwner
	}
	t.Approved = operator
	return r.putToken(tx, tokenID, t)
}

// TransferTx reassigns ownership from -> to and clears the approval.
// Caller must be the current owner or the approved operator.
func (r *Registry) TransferTx(tx *bolt.Tx, caller, from, to string, tokenID uint64) error {
	t, err := r.getToken(tx, tokenID)
	if err != nil {
		return err
	}
	if from != t.Owner {
		return ErrNotOwner
	}
	if caller != t.Owner && caller != t.Approved {
		return ErrNotAuthorized
	}
	t.Owner = to
	t.Approved = ""
	return r.putToken(tx, tokenID, t)
}

func (r *Registry) OwnerOfTx(tx *bolt.Tx, tokenID uint64) (string, error) {
	t, err := r.getToken(tx, tokenID)
	if err != nil {
		return "", err
	}
	return t.Owner, nil
}

func (r *Registry) ApprovedOperatorOfTx(tx *bolt.Tx, tokenID uint64) (string, error) {
	t, err := r.getToken(tx, tokenID)
	if err != nil {
		return "", err
	}
	return t.Approved, nil
}

func (r *Registry) Mint(caller, to, tokenURI string) (uint64, error) {
	var tokenID uint64
	err := r.db.Update(func(tx *bolt.Tx) error {
		var err error
		tokenID, err = r.MintTx(tx, caller, to, tokenURI)
		return err
	})
	return tokenID, err
}

func (r *Registry) Approve(caller, operator string, tokenID uint64) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return r.ApproveTx(tx, caller, operator, tokenID)
	})
}

func (r *Registry) Transfer(caller, from, to string, tokenID uint64) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return r.TransferTx(tx, caller, from, to, tokenID)
	})
}

// Token returns the full asset record.
func (r *Registry) Token(tokenID uint64) (*Token, error) {
	var t *Token
	err := r.db.View(func(tx *bolt.Tx) error {
		var err error
		t, err = r.getToken(tx, tokenID)
		return err
	})
	return t, err
}

func (r *Registry) OwnerOf(tokenID uint64) (string, error) {
	t, err := r.Token(tokenID)
	if err != nil {
		return "", err
	}
	return t.Owner, nil
}

func (r *Registry) TokenURI(tokenID uint64) (string, error) {
	t, err := r.Token(tokenID)
	if err != nil {
		return "", err
	}
	return t.TokenURI, nil
}

func (r *Registry) ApprovedOperatorOf(tokenID uint64) (string, error) {
	t, err := r.Token(tokenID)
	if err != nil {
		return "", err
	}
	return t.Approved, nil
}

// TotalSupply is the number of tokens minted so far.
func (r *Registry) TotalSupply() (uint64, error) {
	var n uint64
	err := r.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(r.bucket).Sequence()
		return nil
	})
	return n, err
}
