package sharedstate

import (
	"github.com/vango-dev/sharedstate/internal/errors"
)

// Sentinel errors for errors.Is. Errors returned or reported by this
// package carry the same code with detail attached. The sentinels are
// shared values: build new errors with errors.New(code), never by calling
// WithDetail or Wrap on a sentinel.
var (
	ErrEmptyKey      = errors.New("E001")
	ErrSerialize     = errors.New("E101")
	ErrDecode        = errors.New("E102")
	ErrStorageWrite  = errors.New("E103")
	ErrStorageRead   = errors.New("E104")
	ErrStorageRemove = errors.New("E105")
)

// mustKey panics on the empty key and on a bare durable sigil, which has
// no name to store under.
func mustKey(key string) {
	switch key {
	case "":
		panic(errors.New("E001"))
	case DurableSigil:
		panic(errors.New("E001").WithDetail("durable key without a name"))
	}
}
