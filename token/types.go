// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package token

import "errors"

var (
	ErrNilAmount             = errors.New("nil amount")
	ErrNegativeAmount        = errors.New("negative amount")
	ErrAmountOverflow        = errors.New("amount overflows u256")
	ErrBalanceOverflow       = errors.New("balance overflows u256")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidSnapshot       = errors.New("invalid snapshot id")
)
