// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import "math/big"

// sqrtFloor returns floor(sqrt(x)) for x >= 0.
func sqrtFloor(x *big.Int) *big.Int {
	return new(big.Int).Sqrt(x)
}

// mulDiv returns floor(a*b/denom).
func mulDiv(a, b, denom *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Div(out, denom)
}

// feeOf returns floor(amount*bps/10000).
func feeOf(amount *big.Int, bps uint32) *big.Int {
	fee := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return fee.Div(fee, big.NewInt(BpsDenominator))
}

// swapOutput applies the constant-product formula to the fee-adjusted input:
//
//	net = amountIn*(10000-feeBps)/10000
//	out = reserveOut*net/(reserveIn+net)
//
// For any feeBps >= 0 this keeps reserveIn'*reserveOut' >= reserveIn*reserveOut.
func swapOutput(reserveIn, reserveOut, amountIn *big.Int, feeBps uint32) *big.Int {
	net := new(big.Int).Mul(amountIn, big.NewInt(int64(BpsDenominator-feeBps)))
	net.Div(net, big.NewInt(BpsDenominator))
	denom := new(big.Int).Add(reserveIn, net)
	return mulDiv(reserveOut, net, denom)
}

// minBig returns the smaller of a and b.
func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}
