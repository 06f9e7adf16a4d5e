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
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("0x0000000000000000000000000000000000000001")
	assert.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000000001", a.String())
	assert.False(t, a.IsZero())

	b, err := ParseAddress("0000000000000000000000000000000000000001")
	assert.NoError(t, err)
	assert.True(t, a.Equal(b))

	_, err = ParseAddress("0x01")
	assert.Error(t, err)
	_, err = ParseAddress("0xzz00000000000000000000000000000000000001")
	assert.Error(t, err)

	assert.True(t, ZeroAddress.IsZero())
}

func TestAddress_JSON(t *testing.T) {
	a := MustParseAddress("0x000000000000000000000000000000000000000a")
	bs, err := json.Marshal(a)
	assert.NoError(t, err)
	assert.Equal(t, `"0x000000000000000000000000000000000000000a"`, string(bs))

	var b Address
	assert.NoError(t, json.Unmarshal(bs, &b))
	assert.True(t, a.Equal(b))
}

func TestRate(t *testing.T) {
	half := Rate(5000)
	assert.Equal(t, int64(50), half.Percent())
	assert.Equal(t, int64(500), half.MulInt64(1000))
	assert.Equal(t, "0.5", half.String())
	assert.True(t, half.IsValid())

	assert.Equal(t, int64(1555555555),
		DefaultDecayRate.MulBigInt(big.NewInt(311_111_111_000)).Int64())
	assert.Equal(t, "0.005", DefaultDecayRate.String())

	assert.False(t, Rate(-1).IsValid())
	assert.False(t, Rate(10001).IsValid())
	assert.True(t, Rate(0).IsValid())
	assert.True(t, Rate(10000).IsValid())

	assert.Equal(t, Rate(10000), ToRate(100))
	assert.Equal(t, Rate(50), ToRate(100)/200)
}

func TestTokenAmounts(t *testing.T) {
	one := ToTokenAmount(1)
	assert.Equal(t, "1000000000000000000", one.String())
	assert.Equal(t, 0, one.Cmp(ToDecimal(1, TokenDecimals)))

	assert.Equal(t, 0, BigIntEndowmentInitial.Cmp(ToTokenAmount(EndowmentInitialTokens)))
	assert.Nil(t, Pow10(-1))
	assert.Equal(t, int64(1), Pow10(0).Int64())
}
