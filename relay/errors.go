package relay

import "errors"

var (
	NoTokenIssuedErr = errors.New("no token issued for this account")
	TokenExpiredErr  = errors.New("token expired")
	TokenMismatchErr = errors.New("token mismatch")
	RelayFailedErr   = errors.New("relay attempt failed")
)
