package prediction

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("prediction not found")
	ErrStorage      = errors.New("prediction storage failure")
	ErrEnqueue      = errors.New("prediction could not be queued")
)
