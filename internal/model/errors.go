package model

import "errors"

var (
	ErrInvalidTier           = errors.New("unknown tier")
	ErrInvalidQuantity       = errors.New("quantity must be a positive integer")
	ErrEmptyKey              = errors.New("key must not be empty")
	ErrInsufficientInventory = errors.New("not enough keys in stock")
	ErrOrderNotFound         = errors.New("no matching pending order")
	ErrInvalidTransition     = errors.New("invalid order status transition")
)
