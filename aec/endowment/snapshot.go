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

package endowment

import (
	"math/big"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/decay"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
)

// Snapshot is the persistable form of the endowment state. Quantities are
// decimal strings so the encoding stays codec-agnostic.
type Snapshot struct {
	Sealed          bool             `msgpack:"sealed" json:"sealed"`
	SealedAt        int64            `msgpack:"sealedAt" json:"sealedAt"`
	Drained         bool             `msgpack:"drained" json:"drained"`
	Balance         string           `msgpack:"balance" json:"balance"`
	LastReleaseTime int64            `msgpack:"lastReleaseTime" json:"lastReleaseTime"`
	ReleaseInterval int64            `msgpack:"releaseInterval" json:"releaseInterval"`
	Compounding     bool             `msgpack:"compounding" json:"compounding"`
	ReleaseCount    int64            `msgpack:"releaseCount" json:"releaseCount"`
	TotalReleased   string           `msgpack:"totalReleased" json:"totalReleased"`
	History         []ReleaseEncoded `msgpack:"history" json:"history"`
}

type ReleaseEncoded struct {
	Amount    string `msgpack:"amount" json:"amount"`
	Timestamp int64  `msgpack:"timestamp" json:"timestamp"`
	Periods   int    `msgpack:"periods" json:"periods"`
}

func (e *Endowment) Snapshot() *Snapshot {
	e.lock.Lock()
	defer e.lock.Unlock()

	history := make([]ReleaseEncoded, len(e.history))
	for i, r := range e.history {
		history[i] = ReleaseEncoded{
			Amount:    r.Amount.String(),
			Timestamp: r.Timestamp,
			Periods:   r.Periods,
		}
	}
	return &Snapshot{
		Sealed:          e.sealed,
		SealedAt:        e.sealedAt,
		Drained:         e.drained,
		Balance:         e.balance.String(),
		LastReleaseTime: e.lastReleaseTime,
		ReleaseInterval: e.schedule.PeriodLength(),
		Compounding:     e.schedule.Compounding(),
		ReleaseCount:    e.releaseCount,
		TotalReleased:   e.totalReleased.String(),
		History:         history,
	}
}

// RestoreSnapshot loads persisted state into a freshly constructed
// endowment. It fails on an instance that has already been used.
func (e *Endowment) RestoreSnapshot(s *Snapshot) error {
	e.lock.Lock()
	defer e.lock.Unlock()

	if e.sealed || e.releaseCount != 0 {
		return errors.StateError.New("AlreadyInUse")
	}
	balance, ok := new(big.Int).SetString(s.Balance, 10)
	if !ok {
		return errors.CriticalFormatError.Errorf("InvalidBalance(value=%s)", s.Balance)
	}
	totalReleased, ok := new(big.Int).SetString(s.TotalReleased, 10)
	if !ok {
		return errors.CriticalFormatError.Errorf(
			"InvalidTotalReleased(value=%s)", s.TotalReleased)
	}
	sch, err := decay.NewSchedule(
		s.ReleaseInterval, e.rate, acmodule.MaxPeriodsPerCall, s.Compounding)
	if err != nil {
		return err
	}

	history := make([]*ReleaseRecord, len(s.History))
	for i, r := range s.History {
		amount, ok := new(big.Int).SetString(r.Amount, 10)
		if !ok {
			return errors.CriticalFormatError.Errorf(
				"InvalidHistoryAmount(value=%s)", r.Amount)
		}
		history[i] = &ReleaseRecord{
			Amount:    amount,
			Timestamp: r.Timestamp,
			Periods:   r.Periods,
		}
	}

	e.sealed = s.Sealed
	e.sealedAt = s.SealedAt
	e.drained = s.Drained
	e.balance = balance
	e.lastReleaseTime = s.LastReleaseTime
	e.schedule = sch
	e.releaseCount = s.ReleaseCount
	e.totalReleased = totalReleased
	e.history = history
	return nil
}
