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

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/log"
)

const (
	LPPoolName    = "lp"
	TokenPoolName = "token"
	NFTPoolName   = "nft"
)

// NFTRegistry locks whole collectibles; there is no engine tier because the
// engine never holds collectibles.
func NFTRegistry() *Registry {
	return NewRegistry([]*Tier{
		{name: "Common", lockDuration: 30 * acmodule.DaySecond, multiplier: 10_000, participant: true},
		{name: "Rare", lockDuration: 90 * acmodule.DaySecond, multiplier: 11_500, participant: true},
		{name: "Legendary", lockDuration: 180 * acmodule.DaySecond, multiplier: 13_000, participant: true},
	})
}

// NewLPPool stakes liquidity-position tokens. It is the only pool with an
// engine entry point: the engine parks protocol-owned liquidity here under
// the reserved tier.
func NewLPPool(self, actor acmodule.Address, clock acmodule.Clock,
	ledger acmodule.TokenLedger, sink acmodule.EventSink, logger log.Logger) (*Pool, error) {
	return NewPool(&Config{
		Name:          LPPoolName,
		Self:          self,
		Actor:         actor,
		Registry:      DefaultRegistry(),
		PeriodLength:  acmodule.DefaultPeriodLength,
		DecayRate:     acmodule.DefaultDecayRate,
		Compounding:   true,
		BonusDuration: acmodule.DefaultBonusDuration,
		MinStake:      acmodule.BigIntMinStake,
		EngineStake:   true,
	}, clock, ledger, sink, logger)
}

// NewTokenPool stakes the protocol token itself.
func NewTokenPool(self, actor acmodule.Address, clock acmodule.Clock,
	ledger acmodule.TokenLedger, sink acmodule.EventSink, logger log.Logger) (*Pool, error) {
	return NewPool(&Config{
		Name:          TokenPoolName,
		Self:          self,
		Actor:         actor,
		Registry:      DefaultRegistry(),
		PeriodLength:  acmodule.DefaultPeriodLength,
		DecayRate:     acmodule.DefaultDecayRate,
		Compounding:   true,
		BonusDuration: acmodule.DefaultBonusDuration,
		MinStake:      acmodule.BigIntMinStake,
	}, clock, ledger, sink, logger)
}

// NewNFTPool stakes collectibles counted in whole units.
func NewNFTPool(self, actor acmodule.Address, clock acmodule.Clock,
	ledger acmodule.TokenLedger, sink acmodule.EventSink, logger log.Logger) (*Pool, error) {
	return NewPool(&Config{
		Name:          NFTPoolName,
		Self:          self,
		Actor:         actor,
		Registry:      NFTRegistry(),
		PeriodLength:  acmodule.DefaultPeriodLength,
		DecayRate:     acmodule.DefaultDecayRate,
		Compounding:   true,
		BonusDuration: acmodule.DefaultBonusDuration,
		MinStake:      big.NewInt(1),
	}, clock, ledger, sink, logger)
}
