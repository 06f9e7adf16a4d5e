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

package staking

import (
	"math/big"
)

// Stake is one participant's position in a pool. It is created on first
// stake and zeroed, never removed, on full withdrawal.
type Stake struct {
	amount            *big.Int
	weighted          *big.Int
	tier              int
	lockEnd           int64
	rewardPerUnitPaid *big.Int
	accrued           *big.Int
}

func newStake() *Stake {
	return &Stake{
		amount:            new(big.Int),
		weighted:          new(big.Int),
		rewardPerUnitPaid: new(big.Int),
		accrued:           new(big.Int),
	}
}

func (s *Stake) Amount() *big.Int {
	return new(big.Int).Set(s.amount)
}

func (s *Stake) WeightedAmount() *big.Int {
	return new(big.Int).Set(s.weighted)
}

func (s *Stake) Tier() int {
	return s.tier
}

func (s *Stake) LockEnd() int64 {
	return s.lockEnd
}

func (s *Stake) AccruedRewards() *big.Int {
	return new(big.Int).Set(s.accrued)
}

func (s *Stake) IsEmpty() bool {
	return s.amount.Sign() == 0
}

// settle folds rewards earned since the last checkpoint into accrued and
// moves the checkpoint. Must run before any mutation of the position.
func (s *Stake) settle(rewardPerUnitStored *big.Int) {
	if s.weighted.Sign() > 0 {
		delta := new(big.Int).Sub(rewardPerUnitStored, s.rewardPerUnitPaid)
		if delta.Sign() > 0 {
			earned := delta.Mul(delta, s.weighted)
			earned.Quo(earned, precision)
			s.accrued.Add(s.accrued, earned)
		}
	}
	s.rewardPerUnitPaid.Set(rewardPerUnitStored)
}

// earned is the claimable total at the given accumulator value without
// moving the checkpoint.
func (s *Stake) earned(rewardPerUnitStored *big.Int) *big.Int {
	total := new(big.Int).Set(s.accrued)
	if s.weighted.Sign() > 0 {
		delta := new(big.Int).Sub(rewardPerUnitStored, s.rewardPerUnitPaid)
		if delta.Sign() > 0 {
			pending := delta.Mul(delta, s.weighted)
			pending.Quo(pending, precision)
			total.Add(total, pending)
		}
	}
	return total
}

// zero clears the position on full withdrawal. Accrued rewards survive so
// the participant can still claim them.
func (s *Stake) zero() {
	s.amount.SetInt64(0)
	s.weighted.SetInt64(0)
	s.tier = 0
	s.lockEnd = 0
}

// StakeInfo is the external view of a position.
type StakeInfo struct {
	Amount         *big.Int `json:"amount"`
	WeightedAmount *big.Int `json:"weightedAmount"`
	Tier           int      `json:"tier"`
	TierName       string   `json:"tierName"`
	LockEnd        int64    `json:"lockEnd"`
	Earned         *big.Int `json:"earned"`
}
