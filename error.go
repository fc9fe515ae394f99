package larch

import (
	"errors"

	"larch/internal/base"
)

//goland:noinspection GoUnusedGlobalVariable
var (
	ErrIndexExists  = errors.New("index name already registered")
	ErrInvalidName  = errors.New("index name must be 1-32 bytes")
	ErrHeaderFull   = errors.New("header page is full")
	ErrIteratorDone = errors.New("iterator is past the last entry")

	ErrPoolExhausted   = base.ErrPoolExhausted
	ErrPageNotFound    = base.ErrPageNotFound
	ErrPagePinned      = base.ErrPagePinned
	ErrInvalidPageID   = base.ErrInvalidPageID
	ErrInvalidChecksum = base.ErrInvalidChecksum
	ErrClosed          = base.ErrClosed
	ErrIndexNotFound   = base.ErrIndexNotFound
	ErrTreeCorrupted   = base.ErrTreeCorrupted
)
