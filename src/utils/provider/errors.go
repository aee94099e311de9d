package provider

import "errors"

var (
	ErrFailedToParse = errors.New("failed to parse response")
)
