// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package bridge

import (
	"encoding/binary"
	"math/big"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

// Secp256k1Scheme recovers signer addresses from 65-byte [R || S || V]
// secp256k1 signatures, the scheme the off-chain validator processes use.
type Secp256k1Scheme struct{}

var _ SignerScheme = Secp256k1Scheme{}

func (Secp256k1Scheme) RecoverSigner(digest common.Hash, sig []byte) (common.Address, error) {
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, ErrInvalidSignature
	}
	return common.Address(crypto.PubkeyToAddress(*pub)), nil
}

// WithdrawalDigest is the canonical message digest validators sign for a
// withdrawal, and simultaneously the withdrawal's unique ID. Every field is
// encoded at a fixed width (the variable-length source address is hashed
// first) so no two parameter tuples share an encoding.
func WithdrawalDigest(recipient, asset common.Address, amount *big.Int, sourceAddress string, sequence uint64) common.Hash {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)

	source := crypto.Keccak256([]byte(sourceAddress))

	data := make([]byte, 0, 20+20+32+32+8)
	data = append(data, recipient.Bytes()...)
	data = append(data, asset.Bytes()...)
	data = append(data, common.LeftPadBytes(amount.Bytes(), 32)...)
	data = append(data, source...)
	data = append(data, seq[:]...)
	return common.Hash(crypto.Keccak256Hash(data))
}

// depositID derives a collision-resistant deposit identifier. Unlike the
// withdrawal digest it also binds the wall-clock time; uniqueness is already
// guaranteed by the ever-incrementing per-account sequence number.
func depositID(depositor, asset common.Address, net *big.Int, destination string, sequence, timestamp uint64) common.Hash {
	var seq, ts [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)
	binary.BigEndian.PutUint64(ts[:], timestamp)

	dest := crypto.Keccak256([]byte(destination))

	data := make([]byte, 0, 20+20+32+32+16)
	data = append(data, depositor.Bytes()...)
	data = append(data, asset.Bytes()...)
	data = append(data, common.LeftPadBytes(net.Bytes(), 32)...)
	data = append(data, dest...)
	data = append(data, seq[:]...)
	data = append(data, ts[:]...)
	return common.Hash(crypto.Keccak256Hash(data))
}
