// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import "errors"

var errBadAmount = errors.New("amountIn must be a base-10 integer")
