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
	"math/big"
)

const (
	DaySecond   = 24 * 60 * 60
	DayPerMonth = 30
	MonthSecond = DaySecond * DayPerMonth
	YearSecond  = DaySecond * 365

	// DefaultDecayRate releases 0.5% of the remaining quantity per period.
	DefaultDecayRate    = Rate(50)
	DefaultPeriodLength = int64(MonthSecond)

	// MaxPeriodsPerCall bounds the work done by a single catch-up call.
	MaxPeriodsPerCall = 6

	MinReleaseInterval = int64(DaySecond)
	MaxReleaseInterval = int64(YearSecond)

	// EmergencyInactivityWindow must elapse since the last release before
	// the emergency authority may drain the endowment.
	EmergencyInactivityWindow = int64(3 * YearSecond)

	DefaultBonusDuration = int64(7 * DaySecond)

	EndowmentInitialTokens = 311_111_111

	TokenDecimals = 18
)

var (
	// BigIntPrecision is the fixed-point scale of reward-per-unit values.
	BigIntPrecision = Pow10(18)

	// BigIntTokenUnit is one whole token in base units.
	BigIntTokenUnit = Pow10(TokenDecimals)

	// BigIntMinStake is the dust threshold for stakes and releases.
	BigIntMinStake = Pow10(15)

	BigIntEndowmentInitial = new(big.Int).Mul(
		big.NewInt(EndowmentInitialTokens), BigIntTokenUnit)
)

func Pow10(n int) *big.Int {
	if n < 0 {
		return nil
	}
	if n == 0 {
		return big.NewInt(1)
	}
	ret := big.NewInt(10)
	return ret.Exp(ret, big.NewInt(int64(n)), nil)
}

func ToDecimal(x, y int) *big.Int {
	if y < 0 {
		return nil
	}
	ret := big.NewInt(int64(x))
	return ret.Mul(ret, Pow10(y))
}

// ToTokenAmount converts whole tokens to base units.
func ToTokenAmount(tokens int) *big.Int {
	return ToDecimal(tokens, TokenDecimals)
}
