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

// Package acledger keeps the in-process token account book. Balances move
// only through Transfer and TransferFrom; supply changes only at genesis.
package acledger

import (
	"math/big"
	"sync"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
)

type Ledger struct {
	lock        sync.Mutex
	balances    map[acmodule.Address]*big.Int
	allowances  map[acmodule.Address]map[acmodule.Address]*big.Int
	totalSupply *big.Int
	sealed      bool
}

func New() *Ledger {
	return &Ledger{
		balances:    make(map[acmodule.Address]*big.Int),
		allowances:  make(map[acmodule.Address]map[acmodule.Address]*big.Int),
		totalSupply: new(big.Int),
	}
}

// Mint credits an account at genesis. After Seal the supply is fixed.
func (l *Ledger) Mint(to acmodule.Address, amount *big.Int) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.sealed {
		return errors.StateError.New("SupplySealed")
	}
	if amount == nil || amount.Sign() < 0 {
		return errors.IllegalArgumentError.New("InvalidMintAmount")
	}
	l.credit(to, amount)
	l.totalSupply.Add(l.totalSupply, amount)
	return nil
}

// Seal closes genesis. Further Mint calls fail.
func (l *Ledger) Seal() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.sealed = true
}

func (l *Ledger) TotalSupply() *big.Int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return new(big.Int).Set(l.totalSupply)
}

func (l *Ledger) BalanceOf(owner acmodule.Address) *big.Int {
	l.lock.Lock()
	defer l.lock.Unlock()

	if b, ok := l.balances[owner]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (l *Ledger) credit(to acmodule.Address, amount *big.Int) {
	if b, ok := l.balances[to]; ok {
		b.Add(b, amount)
	} else {
		l.balances[to] = new(big.Int).Set(amount)
	}
}

func (l *Ledger) debit(from acmodule.Address, amount *big.Int) error {
	b, ok := l.balances[from]
	if !ok || b.Cmp(amount) < 0 {
		return errors.InsufficientFundsError.Errorf(
			"InsufficientBalance(owner=%s)", from)
	}
	b.Sub(b, amount)
	return nil
}

func (l *Ledger) Transfer(from, to acmodule.Address, amount *big.Int) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if amount == nil || amount.Sign() < 0 {
		return errors.IllegalArgumentError.New("InvalidTransferAmount")
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	l.credit(to, amount)
	return nil
}

func (l *Ledger) Approve(owner, spender acmodule.Address, amount *big.Int) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if amount == nil || amount.Sign() < 0 {
		return errors.IllegalArgumentError.New("InvalidApproveAmount")
	}
	m, ok := l.allowances[owner]
	if !ok {
		m = make(map[acmodule.Address]*big.Int)
		l.allowances[owner] = m
	}
	m[spender] = new(big.Int).Set(amount)
	return nil
}

func (l *Ledger) Allowance(owner, spender acmodule.Address) *big.Int {
	l.lock.Lock()
	defer l.lock.Unlock()

	if m, ok := l.allowances[owner]; ok {
		if a, ok := m[spender]; ok {
			return new(big.Int).Set(a)
		}
	}
	return new(big.Int)
}

func (l *Ledger) TransferFrom(spender, from, to acmodule.Address, amount *big.Int) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if amount == nil || amount.Sign() < 0 {
		return errors.IllegalArgumentError.New("InvalidTransferAmount")
	}
	m, ok := l.allowances[from]
	if !ok {
		return errors.InsufficientFundsError.Errorf(
			"InsufficientAllowance(owner=%s,spender=%s)", from, spender)
	}
	a, ok := m[spender]
	if !ok || a.Cmp(amount) < 0 {
		return errors.InsufficientFundsError.Errorf(
			"InsufficientAllowance(owner=%s,spender=%s)", from, spender)
	}
	if err := l.debit(from, amount); err != nil {
		return err
	}
	a.Sub(a, amount)
	l.credit(to, amount)
	return nil
}
