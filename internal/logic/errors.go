package logic

import "errors"

// ErrInvalidTicker is returned for path values that can never name a security.
var ErrInvalidTicker = errors.New("invalid ticker")
