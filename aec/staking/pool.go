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

// Package staking implements the tiered stake ledger and its reward
// accumulator. Rewards merge a decaying base emission with time-boxed bonus
// streams; every mutating operation settles the accumulator first.
package staking

import (
	"math/big"
	"sync"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/decay"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/log"
)

// precision scales rewardPerUnitStored.
var precision = acmodule.BigIntPrecision

type PoolStatus struct {
	Name                 string   `json:"name"`
	TotalSupply          *big.Int `json:"totalSupply"`
	TotalWeightedSupply  *big.Int `json:"totalWeightedSupply"`
	RewardPerUnitStored  *big.Int `json:"rewardPerUnitStored"`
	RemainingBaseRewards *big.Int `json:"remainingBaseRewards"`
	BonusRewardRate      *big.Int `json:"bonusRewardRate"`
	BonusPeriodFinish    int64    `json:"bonusPeriodFinish"`
	TotalBaseDistributed *big.Int `json:"totalBaseRewardsDistributed"`
	TotalBonusAdded      *big.Int `json:"totalBonusRewardsAdded"`
	LastUpdateTime       int64    `json:"lastUpdateTime"`
	Stakers              int      `json:"stakers"`
}

type Config struct {
	Name          string
	Self          acmodule.Address
	Actor         acmodule.Address
	Registry      *Registry
	PeriodLength  int64
	DecayRate     acmodule.Rate
	Compounding   bool
	BonusDuration int64
	MinStake      *big.Int
	// EngineStake enables StakeForEngine. Only the liquidity pool allows
	// the engine to hold a position.
	EngineStake bool
}

type Pool struct {
	lock    sync.Mutex
	entered bool

	name   string
	clock  acmodule.Clock
	ledger acmodule.TokenLedger
	sink   acmodule.EventSink
	logger log.Logger

	self  acmodule.Address
	actor acmodule.Address

	registry    *Registry
	schedule    *decay.Schedule
	minStake    *big.Int
	engineStake bool

	totalSupply          *big.Int
	totalWeighted        *big.Int
	rewardPerUnitStored  *big.Int
	lastUpdateTime       int64
	remainingBase        *big.Int
	lastBaseUpdate       int64
	bonusRate            *big.Int
	bonusFinish          int64
	bonusDuration        int64
	totalBaseDistributed *big.Int
	totalBonusAdded      *big.Int

	stakes map[acmodule.Address]*Stake
}

func NewPool(cfg *Config, clock acmodule.Clock, ledger acmodule.TokenLedger,
	sink acmodule.EventSink, logger log.Logger) (*Pool, error) {
	if cfg.Registry == nil || cfg.Registry.Len() == 0 {
		return nil, errors.IllegalArgumentError.New("EmptyTierRegistry")
	}
	if cfg.MinStake == nil || cfg.MinStake.Sign() < 0 {
		return nil, errors.IllegalArgumentError.New("InvalidMinStake")
	}
	if cfg.BonusDuration <= 0 {
		return nil, errors.IllegalArgumentError.Errorf(
			"InvalidBonusDuration(duration=%d)", cfg.BonusDuration)
	}
	sch, err := decay.NewSchedule(
		cfg.PeriodLength, cfg.DecayRate, acmodule.MaxPeriodsPerCall, cfg.Compounding)
	if err != nil {
		return nil, err
	}
	now := clock.Unix()
	return &Pool{
		name:   cfg.Name,
		clock:  clock,
		ledger: ledger,
		sink:   sink,
		logger: logger.WithFields(log.Fields{
			log.FieldKeyModule: "staking",
			log.FieldKeyPool:   cfg.Name,
		}),

		self:  cfg.Self,
		actor: cfg.Actor,

		registry:    cfg.Registry,
		schedule:    sch,
		minStake:    new(big.Int).Set(cfg.MinStake),
		engineStake: cfg.EngineStake,

		totalSupply:          new(big.Int),
		totalWeighted:        new(big.Int),
		rewardPerUnitStored:  new(big.Int),
		lastUpdateTime:       now,
		remainingBase:        new(big.Int),
		lastBaseUpdate:       now,
		bonusRate:            new(big.Int),
		bonusDuration:        cfg.BonusDuration,
		totalBaseDistributed: new(big.Int),
		totalBonusAdded:      new(big.Int),

		stakes: make(map[acmodule.Address]*Stake),
	}, nil
}

// enter acquires the pool lock for the whole mutating call and keeps it
// held until leave. The entered flag only guards against re-entrant calls
// from ledger or sink callbacks.
func (p *Pool) enter() error {
	p.lock.Lock()
	if p.entered {
		p.lock.Unlock()
		return errors.StateError.New("ReentrantCall")
	}
	p.entered = true
	return nil
}

func (p *Pool) leave() {
	p.entered = false
	p.lock.Unlock()
}

func (p *Pool) Name() string {
	return p.name
}

func (p *Pool) Actor() acmodule.Address {
	return p.actor
}

// settle brings rewardPerUnitStored up to now. Base emission only advances
// while somebody is staked: with zero weighted supply the pending periods
// stay queued against remainingBaseRewards instead of being burned.
func (p *Pool) settle(now int64) {
	if p.totalWeighted.Sign() > 0 {
		r := p.schedule.Advance(p.remainingBase, p.lastBaseUpdate, now)
		if r.Periods > 0 {
			p.lastBaseUpdate += int64(r.Periods) * p.schedule.PeriodLength()
			if r.Released.Sign() > 0 {
				delta := new(big.Int).Mul(r.Released, precision)
				delta.Quo(delta, p.totalWeighted)
				p.rewardPerUnitStored.Add(p.rewardPerUnitStored, delta)
				p.remainingBase.Set(r.Remaining)
				p.totalBaseDistributed.Add(p.totalBaseDistributed, r.Released)
			}
		}

		effective := now
		if p.bonusFinish < effective {
			effective = p.bonusFinish
		}
		if p.bonusRate.Sign() > 0 && effective > p.lastUpdateTime {
			accrued := new(big.Int).Mul(
				p.bonusRate, big.NewInt(effective-p.lastUpdateTime))
			delta := accrued.Mul(accrued, precision)
			delta.Quo(delta, p.totalWeighted)
			p.rewardPerUnitStored.Add(p.rewardPerUnitStored, delta)
		}
	}
	p.lastUpdateTime = now
}

func (p *Pool) stakeOf(owner acmodule.Address) *Stake {
	s, ok := p.stakes[owner]
	if !ok {
		s = newStake()
		p.stakes[owner] = s
	}
	return s
}

// Stake adds principal under the given tier. A new tier for an existing
// position must not be lower than the current one, and the lock end never
// moves backwards.
func (p *Pool) Stake(caller acmodule.Address, amount *big.Int, tierIdx int) error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()

	tier, err := p.registry.Get(tierIdx)
	if err != nil {
		return err
	}
	if !tier.IsParticipantTier() {
		return errors.BoundsError.Errorf("ReservedTier(tier=%d)", tierIdx)
	}
	if amount == nil || amount.Cmp(p.minStake) < 0 {
		return errors.BoundsError.Errorf(
			"StakeBelowMinimum(amount=%v,min=%d)", amount, p.minStake)
	}

	now := p.clock.Unix()
	p.settle(now)

	s := p.stakeOf(caller)
	if !s.IsEmpty() && tierIdx < s.tier {
		return errors.BoundsError.Errorf(
			"TierDowngrade(current=%d,requested=%d)", s.tier, tierIdx)
	}
	s.settle(p.rewardPerUnitStored)

	prevAmount := new(big.Int).Set(s.amount)
	prevWeighted := new(big.Int).Set(s.weighted)
	prevTier := s.tier
	prevLockEnd := s.lockEnd

	s.amount.Add(s.amount, amount)
	s.tier = tierIdx
	s.weighted = tier.WeightedAmount(s.amount)
	if lockEnd := now + tier.LockDuration(); lockEnd > s.lockEnd {
		s.lockEnd = lockEnd
	}
	weightedDelta := new(big.Int).Sub(s.weighted, prevWeighted)
	p.totalSupply.Add(p.totalSupply, amount)
	p.totalWeighted.Add(p.totalWeighted, weightedDelta)

	if err := p.ledger.TransferFrom(p.self, caller, p.self, amount); err != nil {
		s.amount.Set(prevAmount)
		s.weighted.Set(prevWeighted)
		s.tier = prevTier
		s.lockEnd = prevLockEnd
		p.totalSupply.Sub(p.totalSupply, amount)
		p.totalWeighted.Sub(p.totalWeighted, weightedDelta)
		return errors.Wrap(err, "StakeTransferFail")
	}

	p.sink.OnEvent(acmodule.NewEvent(p.name, "Staked", now,
		map[string]string{
			"owner":          caller.String(),
			"amount":         amount.String(),
			"tier":           tier.Name(),
			"weightedAmount": s.weighted.String(),
			"lockEnd":        big.NewInt(s.lockEnd).String(),
			"totalSupply":    p.totalSupply.String(),
		}))
	p.logger.Debugf("stake owner=%s amount=%d tier=%s", caller, amount, tier.Name())
	return nil
}

// StakeForEngine books the engine's stake under the reserved tier no matter
// what. The position locks forever and earns no multiplier bonus.
func (p *Pool) StakeForEngine(caller acmodule.Address, amount *big.Int) error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()

	if !p.engineStake {
		return errors.UnsupportedError.Errorf("NoEngineStake(pool=%s)", p.name)
	}
	if !caller.Equal(p.actor) {
		return errors.AuthorizationError.Errorf("NotActor(caller=%s)", caller)
	}
	engineIdx := p.registry.EngineTier()
	if engineIdx < 0 {
		return errors.UnsupportedError.Errorf("NoEngineTier(pool=%s)", p.name)
	}
	if amount == nil || amount.Sign() <= 0 {
		return errors.BoundsError.Errorf("InvalidAmount(amount=%v)", amount)
	}
	tier, err := p.registry.Get(engineIdx)
	if err != nil {
		return err
	}

	now := p.clock.Unix()
	p.settle(now)

	s := p.stakeOf(caller)
	s.settle(p.rewardPerUnitStored)

	prevWeighted := new(big.Int).Set(s.weighted)
	s.amount.Add(s.amount, amount)
	s.tier = engineIdx
	s.weighted = tier.WeightedAmount(s.amount)
	s.lockEnd = NoLockEnd
	weightedDelta := new(big.Int).Sub(s.weighted, prevWeighted)
	p.totalSupply.Add(p.totalSupply, amount)
	p.totalWeighted.Add(p.totalWeighted, weightedDelta)

	if err := p.ledger.Transfer(caller, p.self, amount); err != nil {
		s.amount.Sub(s.amount, amount)
		s.weighted.Set(prevWeighted)
		p.totalSupply.Sub(p.totalSupply, amount)
		p.totalWeighted.Sub(p.totalWeighted, weightedDelta)
		return errors.Wrap(err, "StakeTransferFail")
	}

	p.sink.OnEvent(acmodule.NewEvent(p.name, "EngineStaked", now,
		map[string]string{
			"amount":      amount.String(),
			"totalSupply": p.totalSupply.String(),
		}))
	return nil
}

// Withdraw returns principal after the lock expires. The weighted total
// shrinks proportionally so remaining rewards stay fair.
func (p *Pool) Withdraw(caller acmodule.Address, amount *big.Int) error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()

	if amount == nil || amount.Sign() <= 0 {
		return errors.BoundsError.Errorf("InvalidAmount(amount=%v)", amount)
	}

	now := p.clock.Unix()
	p.settle(now)

	s, ok := p.stakes[caller]
	if !ok || s.IsEmpty() {
		return errors.NotFoundError.Errorf("NoStake(owner=%s)", caller)
	}
	if now < s.lockEnd {
		return errors.TimingError.Errorf(
			"StakeLocked(now=%d,lockEnd=%d)", now, s.lockEnd)
	}
	if amount.Cmp(s.amount) > 0 {
		return errors.InsufficientFundsError.Errorf(
			"WithdrawOverStake(amount=%d,staked=%d)", amount, s.amount)
	}
	s.settle(p.rewardPerUnitStored)

	// proportional share of the weighted amount leaves with the principal
	weightedDelta := new(big.Int).Mul(s.weighted, amount)
	weightedDelta.Quo(weightedDelta, s.amount)

	prevAmount := new(big.Int).Set(s.amount)
	prevWeighted := new(big.Int).Set(s.weighted)
	prevTier := s.tier
	prevLockEnd := s.lockEnd

	s.amount.Sub(s.amount, amount)
	s.weighted.Sub(s.weighted, weightedDelta)
	weightedRemoved := new(big.Int).Set(weightedDelta)
	if s.IsEmpty() {
		// rounding dust in the weighted amount leaves with the last unit
		weightedRemoved.Add(weightedRemoved, s.weighted)
		s.zero()
	}
	p.totalSupply.Sub(p.totalSupply, amount)
	p.totalWeighted.Sub(p.totalWeighted, weightedRemoved)

	if err := p.ledger.Transfer(p.self, caller, amount); err != nil {
		s.amount.Set(prevAmount)
		s.weighted.Set(prevWeighted)
		s.tier = prevTier
		s.lockEnd = prevLockEnd
		p.totalSupply.Add(p.totalSupply, amount)
		p.totalWeighted.Add(p.totalWeighted, weightedRemoved)
		return errors.Wrap(err, "WithdrawTransferFail")
	}

	p.sink.OnEvent(acmodule.NewEvent(p.name, "Withdrawn", now,
		map[string]string{
			"owner":       caller.String(),
			"amount":      amount.String(),
			"remaining":   s.amount.String(),
			"totalSupply": p.totalSupply.String(),
		}))
	p.logger.Debugf("withdraw owner=%s amount=%d", caller, amount)
	return nil
}

// ClaimReward pays out everything earned so far. Claiming zero is a no-op.
func (p *Pool) ClaimReward(caller acmodule.Address) (*big.Int, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()

	now := p.clock.Unix()
	p.settle(now)

	s, ok := p.stakes[caller]
	if !ok {
		return new(big.Int), nil
	}
	s.settle(p.rewardPerUnitStored)

	amount := new(big.Int).Set(s.accrued)
	if amount.Sign() == 0 {
		return amount, nil
	}
	s.accrued.SetInt64(0)

	if err := p.ledger.Transfer(p.self, caller, amount); err != nil {
		s.accrued.Set(amount)
		return nil, errors.Wrap(err, "ClaimTransferFail")
	}

	p.sink.OnEvent(acmodule.NewEvent(p.name, "RewardClaimed", now,
		map[string]string{
			"owner":  caller.String(),
			"amount": amount.String(),
		}))
	p.logger.Debugf("claim owner=%s amount=%d", caller, amount)
	return amount, nil
}

// UpgradeTier moves a position to a strictly stronger tier. Settled rewards
// are untouched; only future accrual uses the new weight.
func (p *Pool) UpgradeTier(caller acmodule.Address, tierIdx int) error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()

	tier, err := p.registry.Get(tierIdx)
	if err != nil {
		return err
	}
	if !tier.IsParticipantTier() {
		return errors.BoundsError.Errorf("ReservedTier(tier=%d)", tierIdx)
	}

	now := p.clock.Unix()
	p.settle(now)

	s, ok := p.stakes[caller]
	if !ok || s.IsEmpty() {
		return errors.NotFoundError.Errorf("NoStake(owner=%s)", caller)
	}
	current, err := p.registry.Get(s.tier)
	if err != nil {
		return err
	}
	if tier.Multiplier() <= current.Multiplier() {
		return errors.BoundsError.Errorf(
			"NotAnUpgrade(current=%d,requested=%d)", s.tier, tierIdx)
	}
	s.settle(p.rewardPerUnitStored)

	prevWeighted := new(big.Int).Set(s.weighted)
	s.tier = tierIdx
	s.weighted = tier.WeightedAmount(s.amount)
	if lockEnd := now + tier.LockDuration(); lockEnd > s.lockEnd {
		s.lockEnd = lockEnd
	}
	p.totalWeighted.Add(p.totalWeighted, s.weighted)
	p.totalWeighted.Sub(p.totalWeighted, prevWeighted)

	p.sink.OnEvent(acmodule.NewEvent(p.name, "TierUpgraded", now,
		map[string]string{
			"owner":          caller.String(),
			"tier":           tier.Name(),
			"weightedAmount": s.weighted.String(),
			"lockEnd":        big.NewInt(s.lockEnd).String(),
		}))
	return nil
}

// NotifyRewardAmount starts or extends a bonus stream. The unpaid remainder
// of an active stream folds into the new rate.
func (p *Pool) NotifyRewardAmount(caller acmodule.Address, amount *big.Int) error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()

	if !caller.Equal(p.actor) {
		return errors.AuthorizationError.Errorf("NotActor(caller=%s)", caller)
	}
	if amount == nil || amount.Sign() <= 0 {
		return errors.BoundsError.Errorf("InvalidAmount(amount=%v)", amount)
	}

	now := p.clock.Unix()
	p.settle(now)

	budget := new(big.Int).Set(amount)
	if now < p.bonusFinish {
		leftover := new(big.Int).Mul(p.bonusRate, big.NewInt(p.bonusFinish-now))
		budget.Add(budget, leftover)
	}
	prevRate := new(big.Int).Set(p.bonusRate)
	prevFinish := p.bonusFinish
	p.bonusRate.Quo(budget, big.NewInt(p.bonusDuration))
	p.bonusFinish = now + p.bonusDuration
	p.totalBonusAdded.Add(p.totalBonusAdded, amount)

	if err := p.ledger.Transfer(caller, p.self, amount); err != nil {
		p.bonusRate.Set(prevRate)
		p.bonusFinish = prevFinish
		p.totalBonusAdded.Sub(p.totalBonusAdded, amount)
		return errors.Wrap(err, "BonusTransferFail")
	}

	p.sink.OnEvent(acmodule.NewEvent(p.name, "BonusRewardAdded", now,
		map[string]string{
			"amount":       amount.String(),
			"rate":         p.bonusRate.String(),
			"periodFinish": big.NewInt(p.bonusFinish).String(),
		}))
	p.logger.Infof("bonus added amount=%d rate=%d", amount, p.bonusRate)
	return nil
}

// RefillBase adds budget to the decaying base emission. The engine feeds
// endowment releases into pools through this.
func (p *Pool) RefillBase(caller acmodule.Address, amount *big.Int) error {
	if err := p.enter(); err != nil {
		return err
	}
	defer p.leave()

	if !caller.Equal(p.actor) {
		return errors.AuthorizationError.Errorf("NotActor(caller=%s)", caller)
	}
	if amount == nil || amount.Sign() <= 0 {
		return errors.BoundsError.Errorf("InvalidAmount(amount=%v)", amount)
	}

	now := p.clock.Unix()
	p.settle(now)

	p.remainingBase.Add(p.remainingBase, amount)
	if err := p.ledger.Transfer(caller, p.self, amount); err != nil {
		p.remainingBase.Sub(p.remainingBase, amount)
		return errors.Wrap(err, "RefillTransferFail")
	}

	p.sink.OnEvent(acmodule.NewEvent(p.name, "BaseRewardsRefilled", now,
		map[string]string{
			"amount":    amount.String(),
			"remaining": p.remainingBase.String(),
		}))
	return nil
}

func (p *Pool) Earned(owner acmodule.Address) *big.Int {
	p.lock.Lock()
	defer p.lock.Unlock()

	s, ok := p.stakes[owner]
	if !ok {
		return new(big.Int)
	}
	return s.earned(p.projectedRewardPerUnit(p.clock.Unix()))
}

// projectedRewardPerUnit is the view-only counterpart of settle.
func (p *Pool) projectedRewardPerUnit(now int64) *big.Int {
	rps := new(big.Int).Set(p.rewardPerUnitStored)
	if p.totalWeighted.Sign() == 0 {
		return rps
	}
	r := p.schedule.Advance(p.remainingBase, p.lastBaseUpdate, now)
	if r.Released.Sign() > 0 {
		delta := new(big.Int).Mul(r.Released, precision)
		delta.Quo(delta, p.totalWeighted)
		rps.Add(rps, delta)
	}
	effective := now
	if p.bonusFinish < effective {
		effective = p.bonusFinish
	}
	if p.bonusRate.Sign() > 0 && effective > p.lastUpdateTime {
		accrued := new(big.Int).Mul(
			p.bonusRate, big.NewInt(effective-p.lastUpdateTime))
		delta := accrued.Mul(accrued, precision)
		delta.Quo(delta, p.totalWeighted)
		rps.Add(rps, delta)
	}
	return rps
}

func (p *Pool) GetStakeInfo(owner acmodule.Address) *StakeInfo {
	p.lock.Lock()
	defer p.lock.Unlock()

	s, ok := p.stakes[owner]
	if !ok {
		s = newStake()
	}
	name := ""
	if tier, err := p.registry.Get(s.tier); err == nil && !s.IsEmpty() {
		name = tier.Name()
	}
	return &StakeInfo{
		Amount:         s.Amount(),
		WeightedAmount: s.WeightedAmount(),
		Tier:           s.tier,
		TierName:       name,
		LockEnd:        s.lockEnd,
		Earned:         s.earned(p.projectedRewardPerUnit(p.clock.Unix())),
	}
}

func (p *Pool) GetStatus() *PoolStatus {
	p.lock.Lock()
	defer p.lock.Unlock()

	stakers := 0
	for _, s := range p.stakes {
		if !s.IsEmpty() {
			stakers++
		}
	}
	return &PoolStatus{
		Name:                 p.name,
		TotalSupply:          new(big.Int).Set(p.totalSupply),
		TotalWeightedSupply:  new(big.Int).Set(p.totalWeighted),
		RewardPerUnitStored:  new(big.Int).Set(p.rewardPerUnitStored),
		RemainingBaseRewards: new(big.Int).Set(p.remainingBase),
		BonusRewardRate:      new(big.Int).Set(p.bonusRate),
		BonusPeriodFinish:    p.bonusFinish,
		TotalBaseDistributed: new(big.Int).Set(p.totalBaseDistributed),
		TotalBonusAdded:      new(big.Int).Set(p.totalBonusAdded),
		LastUpdateTime:       p.lastUpdateTime,
		Stakers:              stakers,
	}
}

func (p *Pool) Registry() *Registry {
	return p.registry
}
