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

// Package actest provides in-memory collaborators for package tests.
package actest

import (
	"math/big"
	"sync"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
)

// MemoryLedger is a minimal fungible-token ledger.
type MemoryLedger struct {
	lock       sync.Mutex
	balances   map[acmodule.Address]*big.Int
	allowances map[acmodule.Address]map[acmodule.Address]*big.Int

	// FailNextTransfer makes the next Transfer fail, simulating an
	// external token rejection.
	FailNextTransfer bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances:   make(map[acmodule.Address]*big.Int),
		allowances: make(map[acmodule.Address]map[acmodule.Address]*big.Int),
	}
}

func (l *MemoryLedger) Mint(owner acmodule.Address, amount *big.Int) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.credit(owner, amount)
}

func (l *MemoryLedger) credit(owner acmodule.Address, amount *big.Int) {
	if b, ok := l.balances[owner]; ok {
		b.Add(b, amount)
	} else {
		l.balances[owner] = new(big.Int).Set(amount)
	}
}

func (l *MemoryLedger) BalanceOf(owner acmodule.Address) *big.Int {
	l.lock.Lock()
	defer l.lock.Unlock()
	if b, ok := l.balances[owner]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (l *MemoryLedger) Transfer(from, to acmodule.Address, amount *big.Int) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.FailNextTransfer {
		l.FailNextTransfer = false
		return errors.New("TransferRejected")
	}
	return l.transfer(from, to, amount)
}

func (l *MemoryLedger) transfer(from, to acmodule.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return errors.IllegalArgumentError.Errorf("NegativeAmount(amount=%d)", amount)
	}
	b, ok := l.balances[from]
	if !ok || b.Cmp(amount) < 0 {
		return errors.InsufficientFundsError.Errorf(
			"ShortBalance(from=%s,amount=%d)", from, amount)
	}
	b.Sub(b, amount)
	l.credit(to, amount)
	return nil
}

func (l *MemoryLedger) Approve(owner, spender acmodule.Address, amount *big.Int) {
	l.lock.Lock()
	defer l.lock.Unlock()
	m, ok := l.allowances[owner]
	if !ok {
		m = make(map[acmodule.Address]*big.Int)
		l.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)
}

func (l *MemoryLedger) TransferFrom(spender, from, to acmodule.Address, amount *big.Int) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	allowed, ok := l.allowances[from][spender]
	if !ok || allowed.Cmp(amount) < 0 {
		return errors.InsufficientFundsError.Errorf(
			"ShortAllowance(from=%s,spender=%s,amount=%d)", from, spender, amount)
	}
	if err := l.transfer(from, to, amount); err != nil {
		return err
	}
	allowed.Sub(allowed, amount)
	return nil
}

// RecorderSink keeps every emitted event for assertions.
type RecorderSink struct {
	lock   sync.Mutex
	events []*acmodule.Event
}

func NewRecorderSink() *RecorderSink {
	return &RecorderSink{}
}

func (s *RecorderSink) OnEvent(e *acmodule.Event) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.events = append(s.events, e)
}

func (s *RecorderSink) Events() []*acmodule.Event {
	s.lock.Lock()
	defer s.lock.Unlock()
	events := make([]*acmodule.Event, len(s.events))
	copy(events, s.events)
	return events
}

func (s *RecorderSink) Last() *acmodule.Event {
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.events) == 0 {
		return nil
	}
	return s.events[len(s.events)-1]
}

func (s *RecorderSink) LastByName(name string) *acmodule.Event {
	s.lock.Lock()
	defer s.lock.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Name == name {
			return s.events[i]
		}
	}
	return nil
}

func (s *RecorderSink) CountByName(name string) int {
	s.lock.Lock()
	defer s.lock.Unlock()
	cnt := 0
	for _, e := range s.events {
		if e.Name == name {
			cnt++
		}
	}
	return cnt
}

// Addresses for fixtures. They are stable across tests.
var (
	EndowmentAddress = addressOf(0x01)
	EngineAddress    = addressOf(0x02)
	EmergencyAddress = addressOf(0x03)
	PoolAddress      = addressOf(0x04)
	Alice            = addressOf(0x0a)
	Bob              = addressOf(0x0b)
	Carol            = addressOf(0x0c)
)

func addressOf(b byte) acmodule.Address {
	var a acmodule.Address
	a[acmodule.AddressBytes-1] = b
	return a
}
