package ws

import "errors"

var (
	errSetupRead = errors.New("connection closed before setup frame")
	errNoSetup   = errors.New("first frame must be a setup frame")
	errNoUserID  = errors.New("setup frame missing user_id")
)
