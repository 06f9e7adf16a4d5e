/*
 * Copyright 2024 AetherCycle Foundation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package acmodule

import (
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"

	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
)

const AddressBytes = 20

// Address identifies a participant, the engine or any other caller of a
// mutating operation. All authorization checks compare addresses.
type Address [AddressBytes]byte

var ZeroAddress = Address{}

func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) Equal(o Address) bool {
	return a == o
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(b []byte) error {
	addr, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

func ParseAddress(s string) (Address, error) {
	var a Address
	body := strings.TrimPrefix(s, "0x")
	if len(body) != AddressBytes*2 {
		return a, errors.IllegalArgumentError.Errorf(
			"InvalidAddress(addr=%s)", s)
	}
	bs, err := hex.DecodeString(body)
	if err != nil {
		return a, errors.IllegalArgumentError.Wrapf(err,
			"InvalidAddress(addr=%s)", s)
	}
	copy(a[:], bs)
	return a, nil
}

// MustParseAddress is for well-known addresses in tests and fixtures.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

const (
	rateDenom    = int64(10_000)
	decimalPlace = 4
)

// Rate is a percentage-like value in units of 1/10000 (basis points).
type Rate int64

var bigIntRateDenom = big.NewInt(rateDenom)

func (r Rate) DenomInt64() int64 {
	return rateDenom
}

func (r Rate) DenomBigInt() *big.Int {
	return bigIntRateDenom
}

func (r Rate) NumInt64() int64 {
	return int64(r)
}

func (r Rate) NumBigInt() *big.Int {
	return big.NewInt(r.NumInt64())
}

func (r Rate) MulInt64(v int64) int64 {
	ret := v * r.NumInt64()
	return ret / r.DenomInt64()
}

func (r Rate) MulBigInt(v *big.Int) *big.Int {
	ret := new(big.Int).Set(v)
	ret = ret.Mul(ret, r.NumBigInt())
	return ret.Quo(ret, r.DenomBigInt())
}

func (r Rate) Percent() int64 {
	return r.NumInt64() * 100 / r.DenomInt64()
}

func (r Rate) String() string {
	q := r.NumInt64() / r.DenomInt64()
	rest := r.NumInt64() % r.DenomInt64()

	var sb strings.Builder
	if r < 0 {
		q *= -1
		rest *= -1 // abs(rest)
		sb.WriteByte('-')
	}
	sb.WriteString(strconv.FormatInt(q, 10))
	sb.WriteByte('.')

	if rest != 0 {
		digits := make([]byte, 0, decimalPlace)
		for i := 0; i < decimalPlace; i++ {
			digit := rest % 10
			if digit != 0 || len(digits) > 0 {
				digits = append(digits, byte(digit))
			}
			rest /= 10
		}
		for i := len(digits) - 1; i >= 0; i-- {
			sb.WriteByte(byte('0') + digits[i])
		}
	} else {
		sb.WriteByte('0')
	}
	return sb.String()
}

func (r Rate) IsValid() bool {
	n := r.NumInt64()
	return n >= 0 && n <= r.DenomInt64()
}

func ToRate(percent int64) Rate {
	return Rate(percent * rateDenom / 100)
}

// TokenLedger is the external fungible-token collaborator. Implementations
// must fail with InsufficientFundsError when the source balance is short.
type TokenLedger interface {
	BalanceOf(owner Address) *big.Int
	Transfer(from, to Address, amount *big.Int) error
	TransferFrom(spender, from, to Address, amount *big.Int) error
}
