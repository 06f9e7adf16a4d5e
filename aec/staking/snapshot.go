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
	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
)

type StakeEncoded struct {
	Amount            string `msgpack:"amount" json:"amount"`
	Weighted          string `msgpack:"weighted" json:"weighted"`
	Tier              int    `msgpack:"tier" json:"tier"`
	LockEnd           int64  `msgpack:"lockEnd" json:"lockEnd"`
	RewardPerUnitPaid string `msgpack:"rewardPerUnitPaid" json:"rewardPerUnitPaid"`
	Accrued           string `msgpack:"accrued" json:"accrued"`
}

// PoolSnapshot is the persistable form of one pool. Stake owners are keyed
// by their address string.
type PoolSnapshot struct {
	Name                 string                  `msgpack:"name" json:"name"`
	TotalSupply          string                  `msgpack:"totalSupply" json:"totalSupply"`
	TotalWeighted        string                  `msgpack:"totalWeighted" json:"totalWeighted"`
	RewardPerUnitStored  string                  `msgpack:"rewardPerUnitStored" json:"rewardPerUnitStored"`
	LastUpdateTime       int64                   `msgpack:"lastUpdateTime" json:"lastUpdateTime"`
	RemainingBase        string                  `msgpack:"remainingBase" json:"remainingBase"`
	LastBaseUpdate       int64                   `msgpack:"lastBaseUpdate" json:"lastBaseUpdate"`
	BonusRate            string                  `msgpack:"bonusRate" json:"bonusRate"`
	BonusFinish          int64                   `msgpack:"bonusFinish" json:"bonusFinish"`
	TotalBaseDistributed string                  `msgpack:"totalBaseDistributed" json:"totalBaseDistributed"`
	TotalBonusAdded      string                  `msgpack:"totalBonusAdded" json:"totalBonusAdded"`
	Stakes               map[string]StakeEncoded `msgpack:"stakes" json:"stakes"`
}

func (p *Pool) Snapshot() *PoolSnapshot {
	p.lock.Lock()
	defer p.lock.Unlock()

	stakes := make(map[string]StakeEncoded, len(p.stakes))
	for owner, s := range p.stakes {
		stakes[owner.String()] = StakeEncoded{
			Amount:            s.amount.String(),
			Weighted:          s.weighted.String(),
			Tier:              s.tier,
			LockEnd:           s.lockEnd,
			RewardPerUnitPaid: s.rewardPerUnitPaid.String(),
			Accrued:           s.accrued.String(),
		}
	}
	return &PoolSnapshot{
		Name:                 p.name,
		TotalSupply:          p.totalSupply.String(),
		TotalWeighted:        p.totalWeighted.String(),
		RewardPerUnitStored:  p.rewardPerUnitStored.String(),
		LastUpdateTime:       p.lastUpdateTime,
		RemainingBase:        p.remainingBase.String(),
		LastBaseUpdate:       p.lastBaseUpdate,
		BonusRate:            p.bonusRate.String(),
		BonusFinish:          p.bonusFinish,
		TotalBaseDistributed: p.totalBaseDistributed.String(),
		TotalBonusAdded:      p.totalBonusAdded.String(),
		Stakes:               stakes,
	}
}

// RestoreSnapshot loads persisted state into a freshly constructed pool.
func (p *Pool) RestoreSnapshot(s *PoolSnapshot) error {
	p.lock.Lock()
	defer p.lock.Unlock()

	if len(p.stakes) != 0 || p.totalSupply.Sign() != 0 {
		return errors.StateError.New("AlreadyInUse")
	}
	if s.Name != p.name {
		return errors.IllegalArgumentError.Errorf(
			"PoolMismatch(snapshot=%s,pool=%s)", s.Name, p.name)
	}

	setBig := func(name, v string, dst **big.Int) error {
		i, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return errors.CriticalFormatError.Errorf(
				"InvalidQuantity(field=%s,value=%s)", name, v)
		}
		*dst = i
		return nil
	}

	var totalSupply, totalWeighted, rps, remainingBase *big.Int
	var bonusRate, baseDistributed, bonusAdded *big.Int
	if err := setBig("totalSupply", s.TotalSupply, &totalSupply); err != nil {
		return err
	}
	if err := setBig("totalWeighted", s.TotalWeighted, &totalWeighted); err != nil {
		return err
	}
	if err := setBig("rewardPerUnitStored", s.RewardPerUnitStored, &rps); err != nil {
		return err
	}
	if err := setBig("remainingBase", s.RemainingBase, &remainingBase); err != nil {
		return err
	}
	if err := setBig("bonusRate", s.BonusRate, &bonusRate); err != nil {
		return err
	}
	if err := setBig("totalBaseDistributed", s.TotalBaseDistributed, &baseDistributed); err != nil {
		return err
	}
	if err := setBig("totalBonusAdded", s.TotalBonusAdded, &bonusAdded); err != nil {
		return err
	}

	stakes := make(map[acmodule.Address]*Stake, len(s.Stakes))
	for addr, enc := range s.Stakes {
		owner, err := acmodule.ParseAddress(addr)
		if err != nil {
			return err
		}
		st := newStake()
		st.tier = enc.Tier
		st.lockEnd = enc.LockEnd
		if _, ok := st.amount.SetString(enc.Amount, 10); !ok {
			return errors.CriticalFormatError.Errorf(
				"InvalidStakeAmount(owner=%s,value=%s)", addr, enc.Amount)
		}
		if _, ok := st.weighted.SetString(enc.Weighted, 10); !ok {
			return errors.CriticalFormatError.Errorf(
				"InvalidStakeWeighted(owner=%s,value=%s)", addr, enc.Weighted)
		}
		if _, ok := st.rewardPerUnitPaid.SetString(enc.RewardPerUnitPaid, 10); !ok {
			return errors.CriticalFormatError.Errorf(
				"InvalidStakeCheckpoint(owner=%s,value=%s)", addr, enc.RewardPerUnitPaid)
		}
		if _, ok := st.accrued.SetString(enc.Accrued, 10); !ok {
			return errors.CriticalFormatError.Errorf(
				"InvalidStakeAccrued(owner=%s,value=%s)", addr, enc.Accrued)
		}
		stakes[owner] = st
	}

	p.totalSupply = totalSupply
	p.totalWeighted = totalWeighted
	p.rewardPerUnitStored = rps
	p.lastUpdateTime = s.LastUpdateTime
	p.remainingBase = remainingBase
	p.lastBaseUpdate = s.LastBaseUpdate
	p.bonusRate = bonusRate
	p.bonusFinish = s.BonusFinish
	p.totalBaseDistributed = baseDistributed
	p.totalBonusAdded = bonusAdded
	p.stakes = stakes
	return nil
}
