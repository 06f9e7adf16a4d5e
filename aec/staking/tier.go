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
	"math"
	"math/big"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
)

// NoLockEnd marks a stake that can never be withdrawn.
const NoLockEnd = int64(math.MaxInt64)

// Tier is an immutable catalog entry. Multiplier is in bps; 10000 is 1.0x.
type Tier struct {
	name         string
	lockDuration int64
	multiplier   acmodule.Rate
	participant  bool
}

func (t *Tier) Name() string {
	return t.name
}

func (t *Tier) LockDuration() int64 {
	return t.lockDuration
}

func (t *Tier) Multiplier() acmodule.Rate {
	return t.multiplier
}

// IsParticipantTier is false only for the engine tier. The engine's
// treasury-derived stake locks forever and earns no multiplier bonus.
func (t *Tier) IsParticipantTier() bool {
	return t.participant
}

func (t *Tier) WeightedAmount(amount *big.Int) *big.Int {
	return t.multiplier.MulBigInt(amount)
}

// Registry is the fixed tier catalog of one pool. The engine tier, if any,
// is always the last entry.
type Registry struct {
	tiers     []*Tier
	engineIdx int
}

func NewRegistry(tiers []*Tier) *Registry {
	engineIdx := -1
	for i, t := range tiers {
		if !t.participant {
			engineIdx = i
		}
	}
	return &Registry{tiers: tiers, engineIdx: engineIdx}
}

func (r *Registry) Len() int {
	return len(r.tiers)
}

func (r *Registry) Get(idx int) (*Tier, error) {
	if idx < 0 || idx >= len(r.tiers) {
		return nil, errors.BoundsError.Errorf(
			"InvalidTier(tier=%d,catalog=%d)", idx, len(r.tiers))
	}
	return r.tiers[idx], nil
}

func (r *Registry) EngineTier() int {
	return r.engineIdx
}

// DefaultRegistry is the participant catalog shared by the token and LP
// pools plus the reserved engine tier.
func DefaultRegistry() *Registry {
	return NewRegistry([]*Tier{
		{name: "Bronze", lockDuration: 30 * acmodule.DaySecond, multiplier: 10_000, participant: true},
		{name: "Silver", lockDuration: 90 * acmodule.DaySecond, multiplier: 11_500, participant: true},
		{name: "Gold", lockDuration: 180 * acmodule.DaySecond, multiplier: 13_000, participant: true},
		{name: "Platinum", lockDuration: 365 * acmodule.DaySecond, multiplier: 16_000, participant: true},
		{name: "Engine", lockDuration: NoLockEnd, multiplier: 10_000, participant: false},
	})
}
