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

// Package decay computes period-based percentage releases of a remaining
// quantity. It is pure: callers own the state and thread it through.
package decay

import (
	"math/big"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
)

// Schedule fixes the release parameters of one decaying quantity. Every
// consumer (endowment, each pool's base emission) owns an independent
// Schedule so that a parameter change in one cannot affect another.
type Schedule struct {
	periodLength int64
	rate         acmodule.Rate
	maxPeriods   int
	compounding  bool
}

func NewSchedule(periodLength int64, rate acmodule.Rate, maxPeriods int, compounding bool) (*Schedule, error) {
	if periodLength <= 0 {
		return nil, errors.IllegalArgumentError.Errorf(
			"InvalidPeriodLength(length=%d)", periodLength)
	}
	if !rate.IsValid() {
		return nil, errors.IllegalArgumentError.Errorf(
			"InvalidDecayRate(rate=%d)", rate.NumInt64())
	}
	if maxPeriods <= 0 {
		return nil, errors.IllegalArgumentError.Errorf(
			"InvalidMaxPeriods(max=%d)", maxPeriods)
	}
	return &Schedule{
		periodLength: periodLength,
		rate:         rate,
		maxPeriods:   maxPeriods,
		compounding:  compounding,
	}, nil
}

func DefaultSchedule() *Schedule {
	s, _ := NewSchedule(
		acmodule.DefaultPeriodLength,
		acmodule.DefaultDecayRate,
		acmodule.MaxPeriodsPerCall,
		true,
	)
	return s
}

func (s *Schedule) PeriodLength() int64 {
	return s.periodLength
}

func (s *Schedule) Rate() acmodule.Rate {
	return s.rate
}

func (s *Schedule) MaxPeriods() int {
	return s.maxPeriods
}

func (s *Schedule) Compounding() bool {
	return s.compounding
}

func (s *Schedule) SetCompounding(yn bool) {
	s.compounding = yn
}

// PeriodsDue returns full periods elapsed since lastUpdate, before capping.
func (s *Schedule) PeriodsDue(lastUpdate, now int64) int64 {
	if now <= lastUpdate {
		return 0
	}
	return (now - lastUpdate) / s.periodLength
}

// Result is the outcome of one Advance call. Remaining and Released are
// fresh values; the inputs are never mutated.
type Result struct {
	Released  *big.Int
	Periods   int
	Remaining *big.Int
}

// Advance processes up to MaxPeriods() full periods elapsed between
// lastUpdate and now. The caller must move its lastUpdate forward by exactly
// Periods × PeriodLength() so that leftover elapsed time carries over to the
// next call. Periods == 0 means nothing is due and nothing was computed.
func (s *Schedule) Advance(remaining *big.Int, lastUpdate, now int64) *Result {
	periods := s.PeriodsDue(lastUpdate, now)
	if periods > int64(s.maxPeriods) {
		periods = int64(s.maxPeriods)
	}
	if periods == 0 || remaining.Sign() <= 0 {
		return &Result{
			Released:  new(big.Int),
			Periods:   0,
			Remaining: new(big.Int).Set(remaining),
		}
	}

	released := new(big.Int)
	left := new(big.Int).Set(remaining)
	if s.compounding {
		for i := int64(0); i < periods; i++ {
			step := s.rate.MulBigInt(left)
			released.Add(released, step)
			left.Sub(left, step)
		}
	} else {
		step := s.rate.MulBigInt(remaining)
		released.Mul(step, big.NewInt(periods))
		if released.Cmp(left) > 0 {
			released.Set(left)
		}
		left.Sub(left, released)
	}

	return &Result{
		Released:  released,
		Periods:   int(periods),
		Remaining: left,
	}
}

// Project returns the remaining quantity after n further full periods of
// compounding decay without mutating anything. Used by analytics views.
func (s *Schedule) Project(remaining *big.Int, n int) *big.Int {
	left := new(big.Int).Set(remaining)
	for i := 0; i < n; i++ {
		step := s.rate.MulBigInt(left)
		left.Sub(left, step)
	}
	return left
}
