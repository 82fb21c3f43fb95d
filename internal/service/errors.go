package service

import "errors"

var (
	ErrInvalidBattle  = errors.New("invalid battle setup")
	ErrBattleNotFound = errors.New("battle not found")
	ErrLogMismatch    = errors.New("event log does not match local state")
	ErrInvalidAction  = errors.New("invalid action")
)
