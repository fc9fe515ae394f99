package base

import "errors"

var (
	ErrPoolExhausted   = errors.New("buffer pool exhausted: all frames pinned")
	ErrPageNotFound    = errors.New("page not found")
	ErrPagePinned      = errors.New("page is pinned")
	ErrInvalidPageID   = errors.New("invalid page id")
	ErrInvalidChecksum = errors.New("invalid checksum")
	ErrClosed          = errors.New("closed")
	ErrIndexNotFound   = errors.New("index not found in header page")
	ErrIndexExists     = errors.New("index already registered")
	ErrTreeCorrupted   = errors.New("tree structure corrupted")
)
