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

// Package engine drives the protocol's periodic cycle: release the
// endowment, then feed the staking pools. The release is atomic; the
// downstream refills are best effort and never abort the cycle.
package engine

import (
	"math/big"
	"sync"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/endowment"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/staking"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/log"
)

const ModuleName = "engine"

// PoolSplit routes a share of each release into one pool's base emission.
type PoolSplit struct {
	Pool  *staking.Pool
	Share acmodule.Rate
}

type RefillResult struct {
	Pool   string   `json:"pool"`
	Amount *big.Int `json:"amount"`
	OK     bool     `json:"ok"`
	Reason string   `json:"reason,omitempty"`
}

type CycleResult struct {
	Released     *big.Int        `json:"released"`
	Periods      int             `json:"periods"`
	Refills      []*RefillResult `json:"refills"`
	DeployedLP   *big.Int        `json:"deployedLP"`
	LPDeployOK   bool            `json:"lpDeployOk"`
	LPDeployNote string          `json:"lpDeployNote,omitempty"`
}

type Status struct {
	Renounced     bool     `json:"renounced"`
	CycleCount    int64    `json:"cycleCount"`
	LastCycleTime int64    `json:"lastCycleTime"`
	TotalRouted   *big.Int `json:"totalRouted"`
}

type Engine struct {
	lock    sync.Mutex
	entered bool

	clock  acmodule.Clock
	ledger acmodule.TokenLedger
	sink   acmodule.EventSink
	logger log.Logger

	self  acmodule.Address
	admin acmodule.Address

	endow  *endowment.Endowment
	splits []*PoolSplit
	lpPool *staking.Pool

	renounced     bool
	cycleCount    int64
	lastCycleTime int64
	totalRouted   *big.Int
}

type Config struct {
	Self  acmodule.Address
	Admin acmodule.Address
	// LPPool receives the rounding remainder of each release as
	// protocol-owned liquidity. Optional.
	LPPool *staking.Pool
}

func New(cfg *Config, endow *endowment.Endowment, splits []*PoolSplit,
	clock acmodule.Clock, ledger acmodule.TokenLedger,
	sink acmodule.EventSink, logger log.Logger) (*Engine, error) {
	total := acmodule.Rate(0)
	for _, s := range splits {
		if s.Pool == nil || !s.Share.IsValid() {
			return nil, errors.IllegalArgumentError.New("InvalidPoolSplit")
		}
		total += s.Share
	}
	if !total.IsValid() {
		return nil, errors.BoundsError.Errorf(
			"SplitOverflow(total=%d)", total.NumInt64())
	}
	return &Engine{
		clock:  clock,
		ledger: ledger,
		sink:   sink,
		logger: logger.WithFields(log.Fields{log.FieldKeyModule: ModuleName}),

		self:  cfg.Self,
		admin: cfg.Admin,

		endow:  endow,
		splits: splits,
		lpPool: cfg.LPPool,

		totalRouted: new(big.Int),
	}, nil
}

// enter acquires the engine lock for the whole mutating call and keeps it
// held until leave. The entered flag only guards against re-entrant calls
// from ledger or sink callbacks.
func (e *Engine) enter() error {
	e.lock.Lock()
	if e.entered {
		e.lock.Unlock()
		return errors.StateError.New("ReentrantCall")
	}
	e.entered = true
	return nil
}

func (e *Engine) leave() {
	e.entered = false
	e.lock.Unlock()
}

func (e *Engine) Address() acmodule.Address {
	return e.self
}

// RunCycle executes one full actor cycle. The endowment release either
// fully succeeds or the cycle fails; every downstream step degrades
// gracefully and is reported instead of propagated.
func (e *Engine) RunCycle() (*CycleResult, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.leave()

	if e.renounced {
		return nil, errors.StateError.New("PrivilegesRenounced")
	}

	rec, err := e.endow.Release(e.self)
	if err != nil {
		return nil, err
	}
	now := e.clock.Unix()

	result := &CycleResult{
		Released:   rec.Amount,
		Periods:    rec.Periods,
		DeployedLP: new(big.Int),
	}

	routed := new(big.Int)
	for _, split := range e.splits {
		amount := split.Share.MulBigInt(rec.Amount)
		rr := &RefillResult{
			Pool:   split.Pool.Name(),
			Amount: amount,
		}
		result.Refills = append(result.Refills, rr)
		if amount.Sign() == 0 {
			rr.OK = true
			continue
		}
		if err := split.Pool.RefillBase(e.self, amount); err != nil {
			rr.Reason = err.Error()
			e.sink.OnEvent(acmodule.NewEvent(ModuleName, "RefillSkipped", now,
				map[string]string{
					"pool":   split.Pool.Name(),
					"amount": amount.String(),
					"reason": err.Error(),
				}))
			e.logger.Warnf("refill skipped pool=%s amount=%d err=%v",
				split.Pool.Name(), amount, err)
			continue
		}
		rr.OK = true
		routed.Add(routed, amount)
	}

	// remainder becomes protocol-owned liquidity; failure is tolerated
	if e.lpPool != nil {
		remainder := new(big.Int).Sub(rec.Amount, routed)
		if remainder.Cmp(acmodule.BigIntMinStake) >= 0 {
			if err := e.lpPool.StakeForEngine(e.self, remainder); err != nil {
				result.LPDeployNote = err.Error()
				e.sink.OnEvent(acmodule.NewEvent(ModuleName, "LiquidityDeploySkipped", now,
					map[string]string{
						"amount": remainder.String(),
						"reason": err.Error(),
					}))
				e.logger.Warnf("liquidity deploy skipped amount=%d err=%v",
					remainder, err)
			} else {
				result.DeployedLP = remainder
				result.LPDeployOK = true
				routed.Add(routed, remainder)
			}
		}
	}

	e.cycleCount++
	e.lastCycleTime = now
	e.totalRouted.Add(e.totalRouted, routed)

	e.sink.OnEvent(acmodule.NewEvent(ModuleName, "CycleCompleted", now,
		map[string]string{
			"released":   rec.Amount.String(),
			"routed":     routed.String(),
			"cycleCount": big.NewInt(e.cycleCount).String(),
		}))
	e.logger.Infof("cycle done released=%d routed=%d", rec.Amount, routed)
	return result, nil
}

// NotifyBonus forwards a bonus stream into one of the managed pools.
func (e *Engine) NotifyBonus(caller acmodule.Address, pool *staking.Pool, amount *big.Int) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	if !caller.Equal(e.admin) {
		return errors.AuthorizationError.Errorf("NotAdmin(caller=%s)", caller)
	}
	if e.renounced {
		return errors.StateError.New("PrivilegesRenounced")
	}
	return pool.NotifyRewardAmount(e.self, amount)
}

// RenouncePrivileges permanently disables the engine. There is no way back;
// after this the endowment can only be drained by the emergency authority.
func (e *Engine) RenouncePrivileges(caller acmodule.Address) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	if !caller.Equal(e.admin) {
		return errors.AuthorizationError.Errorf("NotAdmin(caller=%s)", caller)
	}
	if e.renounced {
		return errors.StateError.New("AlreadyRenounced")
	}
	e.renounced = true

	now := e.clock.Unix()
	e.sink.OnEvent(acmodule.NewEvent(ModuleName, "PrivilegesRenounced", now, nil))
	e.logger.Warn("privileges renounced")
	return nil
}

func (e *Engine) IsRenounced() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.renounced
}

func (e *Engine) GetStatus() *Status {
	e.lock.Lock()
	defer e.lock.Unlock()
	return &Status{
		Renounced:     e.renounced,
		CycleCount:    e.cycleCount,
		LastCycleTime: e.lastCycleTime,
		TotalRouted:   new(big.Int).Set(e.totalRouted),
	}
}
