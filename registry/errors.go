package registry

import "errors"

var (
	ErrUnauthorized  = errors.New("not the minter")
	ErrNotOwner      = errors.New("not the owner")
	ErrNotAuthorized = errors.New("not authorized to transfer")
	ErrNoSuchToken   = errors.New("no token with this id")
)
