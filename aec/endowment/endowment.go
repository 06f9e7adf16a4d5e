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

// Package endowment implements the sealed treasury releasing its balance
// through a perpetual decay schedule. The balance approaches zero
// asymptotically; it never fully depletes under compounding.
package endowment

import (
	"math/big"
	"sync"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/decay"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/log"
)

const ModuleName = "endowment"

type ReleaseRecord struct {
	Amount    *big.Int `json:"amount"`
	Timestamp int64    `json:"timestamp"`
	Periods   int      `json:"periodsProcessed"`
}

type Status struct {
	Sealed          bool     `json:"sealed"`
	Drained         bool     `json:"drained"`
	Balance         *big.Int `json:"balance"`
	InitialAmount   *big.Int `json:"initialAmount"`
	LastReleaseTime int64    `json:"lastReleaseTime"`
	ReleaseInterval int64    `json:"releaseInterval"`
	Compounding     bool     `json:"compounding"`
	ReleaseCount    int64    `json:"releaseCount"`
	TotalReleased   *big.Int `json:"totalReleased"`
	PeriodsDue      int64    `json:"periodsDue"`
}

// ReleaseSuggestion advises whether triggering a release now is worth the
// call overhead. Due == false means no period has elapsed; the remaining
// fields are zero in that case.
type ReleaseSuggestion struct {
	Due       bool     `json:"due"`
	Periods   int64    `json:"periods"`
	Amount    *big.Int `json:"amount"`
	PerPeriod *big.Int `json:"perPeriod"`
}

type Endowment struct {
	lock    sync.Mutex
	entered bool

	clock  acmodule.Clock
	ledger acmodule.TokenLedger
	sink   acmodule.EventSink
	logger log.Logger

	self      acmodule.Address
	actor     acmodule.Address
	emergency acmodule.Address

	schedule *decay.Schedule
	rate     acmodule.Rate

	initialAmount   *big.Int
	balance         *big.Int
	sealed          bool
	sealedAt        int64
	drained         bool
	lastReleaseTime int64
	releaseCount    int64
	totalReleased   *big.Int
	history         []*ReleaseRecord
}

type Config struct {
	Self            acmodule.Address
	Actor           acmodule.Address
	Emergency       acmodule.Address
	InitialAmount   *big.Int
	ReleaseInterval int64
	DecayRate       acmodule.Rate
	Compounding     bool
}

func New(cfg *Config, clock acmodule.Clock, ledger acmodule.TokenLedger,
	sink acmodule.EventSink, logger log.Logger) (*Endowment, error) {
	if cfg.InitialAmount == nil || cfg.InitialAmount.Sign() <= 0 {
		return nil, errors.IllegalArgumentError.New("InvalidInitialAmount")
	}
	if cfg.ReleaseInterval < acmodule.MinReleaseInterval ||
		cfg.ReleaseInterval > acmodule.MaxReleaseInterval {
		return nil, errors.BoundsError.Errorf(
			"InvalidReleaseInterval(interval=%d)", cfg.ReleaseInterval)
	}
	sch, err := decay.NewSchedule(
		cfg.ReleaseInterval, cfg.DecayRate, acmodule.MaxPeriodsPerCall, cfg.Compounding)
	if err != nil {
		return nil, err
	}
	return &Endowment{
		clock:  clock,
		ledger: ledger,
		sink:   sink,
		logger: logger.WithFields(log.Fields{log.FieldKeyModule: ModuleName}),

		self:      cfg.Self,
		actor:     cfg.Actor,
		emergency: cfg.Emergency,

		schedule: sch,
		rate:     cfg.DecayRate,

		initialAmount: new(big.Int).Set(cfg.InitialAmount),
		balance:       new(big.Int),
		totalReleased: new(big.Int),
	}, nil
}

// enter acquires the endowment lock for the whole mutating call and keeps
// it held until leave. The entered flag only guards against re-entrant
// calls from ledger or sink callbacks.
func (e *Endowment) enter() error {
	e.lock.Lock()
	if e.entered {
		e.lock.Unlock()
		return errors.StateError.New("ReentrantCall")
	}
	e.entered = true
	return nil
}

func (e *Endowment) leave() {
	e.entered = false
	e.lock.Unlock()
}

// Initialize seals the endowment. It may be called exactly once and only
// after the full initial amount has been funded to the endowment address.
func (e *Endowment) Initialize() error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	if e.sealed {
		return errors.StateError.New("AlreadySealed")
	}
	funded := e.ledger.BalanceOf(e.self)
	if funded.Cmp(e.initialAmount) < 0 {
		return errors.StateError.Errorf(
			"NotFunded(balance=%d,required=%d)", funded, e.initialAmount)
	}
	now := e.clock.Unix()
	e.balance.Set(e.initialAmount)
	e.sealed = true
	e.sealedAt = now
	e.lastReleaseTime = now

	e.sink.OnEvent(acmodule.NewEvent(ModuleName, "EndowmentSealed", now,
		map[string]string{
			"amount": e.initialAmount.String(),
		}))
	e.logger.Infof("sealed amount=%d", e.initialAmount)
	return nil
}

// Release advances the decay schedule and transfers the released amount to
// the protocol actor. Internal accounting settles before the transfer; a
// transfer failure rolls the accounting back.
func (e *Endowment) Release(caller acmodule.Address) (*ReleaseRecord, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.leave()

	if !caller.Equal(e.actor) {
		return nil, errors.AuthorizationError.Errorf(
			"NotActor(caller=%s)", caller)
	}
	if !e.sealed {
		return nil, errors.StateError.New("NotSealed")
	}
	if e.drained {
		return nil, errors.StateError.New("Drained")
	}

	now := e.clock.Unix()
	r := e.schedule.Advance(e.balance, e.lastReleaseTime, now)
	if r.Periods == 0 {
		return nil, errors.TimingError.Errorf(
			"NoReleaseDue(last=%d,now=%d)", e.lastReleaseTime, now)
	}
	if r.Released.Cmp(acmodule.BigIntMinStake) < 0 {
		return nil, errors.TimingError.Errorf(
			"ReleaseBelowDust(amount=%d)", r.Released)
	}

	prevBalance := new(big.Int).Set(e.balance)
	prevLast := e.lastReleaseTime

	e.balance.Set(r.Remaining)
	e.lastReleaseTime += int64(r.Periods) * e.schedule.PeriodLength()
	e.releaseCount++
	e.totalReleased.Add(e.totalReleased, r.Released)
	rec := &ReleaseRecord{
		Amount:    new(big.Int).Set(r.Released),
		Timestamp: now,
		Periods:   r.Periods,
	}
	e.history = append(e.history, rec)

	if err := e.ledger.Transfer(e.self, e.actor, r.Released); err != nil {
		e.balance.Set(prevBalance)
		e.lastReleaseTime = prevLast
		e.releaseCount--
		e.totalReleased.Sub(e.totalReleased, r.Released)
		e.history = e.history[:len(e.history)-1]
		return nil, errors.Wrap(err, "ReleaseTransferFail")
	}

	e.sink.OnEvent(acmodule.NewEvent(ModuleName, "EndowmentReleased", now,
		map[string]string{
			"amount":           r.Released.String(),
			"periodsProcessed": big.NewInt(int64(r.Periods)).String(),
			"newBalance":       e.balance.String(),
			"releaseCount":     big.NewInt(e.releaseCount).String(),
		}))
	e.logger.Infof("released amount=%d periods=%d balance=%d",
		r.Released, r.Periods, e.balance)
	return rec, nil
}

// UpdateReleaseInterval changes the decay period length within policy bounds.
func (e *Endowment) UpdateReleaseInterval(caller acmodule.Address, interval int64) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	if !caller.Equal(e.actor) {
		return errors.AuthorizationError.Errorf("NotActor(caller=%s)", caller)
	}
	if interval < acmodule.MinReleaseInterval || interval > acmodule.MaxReleaseInterval {
		return errors.BoundsError.Errorf(
			"IntervalOutOfBounds(interval=%d,min=%d,max=%d)",
			interval, acmodule.MinReleaseInterval, acmodule.MaxReleaseInterval)
	}
	sch, err := decay.NewSchedule(
		interval, e.rate, acmodule.MaxPeriodsPerCall, e.schedule.Compounding())
	if err != nil {
		return err
	}
	old := e.schedule.PeriodLength()
	e.schedule = sch

	now := e.clock.Unix()
	e.sink.OnEvent(acmodule.NewEvent(ModuleName, "ReleaseIntervalUpdated", now,
		map[string]string{
			"oldInterval": big.NewInt(old).String(),
			"newInterval": big.NewInt(interval).String(),
		}))
	return nil
}

func (e *Endowment) SetCompoundingEnabled(caller acmodule.Address, yn bool) error {
	if err := e.enter(); err != nil {
		return err
	}
	defer e.leave()

	if !caller.Equal(e.actor) {
		return errors.AuthorizationError.Errorf("NotActor(caller=%s)", caller)
	}
	e.schedule.SetCompounding(yn)

	now := e.clock.Unix()
	e.sink.OnEvent(acmodule.NewEvent(ModuleName, "CompoundingUpdated", now,
		map[string]string{
			"enabled": big.NewInt(boolToInt64(yn)).String(),
		}))
	return nil
}

// EmergencyRelease drains the remaining balance to the emergency authority.
// It is a terminal safety valve usable only after the inactivity window.
func (e *Endowment) EmergencyRelease(caller acmodule.Address) (*big.Int, error) {
	if err := e.enter(); err != nil {
		return nil, err
	}
	defer e.leave()

	if !caller.Equal(e.emergency) {
		return nil, errors.AuthorizationError.Errorf(
			"NotEmergencyAuthority(caller=%s)", caller)
	}
	if !e.sealed {
		return nil, errors.StateError.New("NotSealed")
	}
	if e.drained {
		return nil, errors.StateError.New("AlreadyDrained")
	}
	now := e.clock.Unix()
	if now-e.lastReleaseTime < acmodule.EmergencyInactivityWindow {
		return nil, errors.TimingError.Errorf(
			"InactivityWindowNotMet(idle=%d,required=%d)",
			now-e.lastReleaseTime, acmodule.EmergencyInactivityWindow)
	}

	amount := new(big.Int).Set(e.balance)
	e.balance.SetInt64(0)
	e.drained = true

	if err := e.ledger.Transfer(e.self, e.emergency, amount); err != nil {
		e.balance.Set(amount)
		e.drained = false
		return nil, errors.Wrap(err, "EmergencyTransferFail")
	}

	e.sink.OnEvent(acmodule.NewEvent(ModuleName, "EmergencyReleased", now,
		map[string]string{
			"amount": amount.String(),
		}))
	e.logger.Warnf("emergency release amount=%d", amount)
	return amount, nil
}

func (e *Endowment) Actor() acmodule.Address {
	return e.actor
}

func (e *Endowment) IsSealed() bool {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.sealed
}

func (e *Endowment) Balance() *big.Int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return new(big.Int).Set(e.balance)
}

func (e *Endowment) TotalReleased() *big.Int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return new(big.Int).Set(e.totalReleased)
}

func (e *Endowment) History() []*ReleaseRecord {
	e.lock.Lock()
	defer e.lock.Unlock()
	history := make([]*ReleaseRecord, len(e.history))
	copy(history, e.history)
	return history
}

func (e *Endowment) GetStatus() *Status {
	e.lock.Lock()
	defer e.lock.Unlock()
	return &Status{
		Sealed:          e.sealed,
		Drained:         e.drained,
		Balance:         new(big.Int).Set(e.balance),
		InitialAmount:   new(big.Int).Set(e.initialAmount),
		LastReleaseTime: e.lastReleaseTime,
		ReleaseInterval: e.schedule.PeriodLength(),
		Compounding:     e.schedule.Compounding(),
		ReleaseCount:    e.releaseCount,
		TotalReleased:   new(big.Int).Set(e.totalReleased),
		PeriodsDue:      e.schedule.PeriodsDue(e.lastReleaseTime, e.clock.Unix()),
	}
}

// ProjectBalance returns the balance expected after periods further full
// periods of compounding decay.
func (e *Endowment) ProjectBalance(periods int) *big.Int {
	e.lock.Lock()
	defer e.lock.Unlock()
	return e.schedule.Project(e.balance, periods)
}

// CheckSustainability reports whether the balance stays positive over the
// given horizon of periods.
func (e *Endowment) CheckSustainability(horizonPeriods int) bool {
	return e.ProjectBalance(horizonPeriods).Sign() > 0
}

// SuggestRelease estimates the amount a release would move right now. The
// zero-period case returns Due == false instead of dividing by zero.
func (e *Endowment) SuggestRelease() *ReleaseSuggestion {
	e.lock.Lock()
	defer e.lock.Unlock()

	now := e.clock.Unix()
	periods := e.schedule.PeriodsDue(e.lastReleaseTime, now)
	if !e.sealed || e.drained || periods == 0 {
		return &ReleaseSuggestion{
			Due:       false,
			Amount:    new(big.Int),
			PerPeriod: new(big.Int),
		}
	}
	r := e.schedule.Advance(e.balance, e.lastReleaseTime, now)
	perPeriod := new(big.Int).Quo(r.Released, big.NewInt(int64(r.Periods)))
	return &ReleaseSuggestion{
		Due:       true,
		Periods:   periods,
		Amount:    r.Released,
		PerPeriod: perPeriod,
	}
}

func boolToInt64(yn bool) int64 {
	if yn {
		return 1
	}
	return 0
}
