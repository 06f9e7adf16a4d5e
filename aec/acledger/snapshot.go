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

package acledger

import (
	"math/big"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/acmodule"
	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
)

type Snapshot struct {
	TotalSupply string                       `msgpack:"totalSupply" json:"totalSupply"`
	Sealed      bool                         `msgpack:"sealed" json:"sealed"`
	Balances    map[string]string            `msgpack:"balances" json:"balances"`
	Allowances  map[string]map[string]string `msgpack:"allowances" json:"allowances"`
}

func (l *Ledger) Snapshot() *Snapshot {
	l.lock.Lock()
	defer l.lock.Unlock()

	balances := make(map[string]string, len(l.balances))
	for owner, b := range l.balances {
		balances[owner.String()] = b.String()
	}
	allowances := make(map[string]map[string]string, len(l.allowances))
	for owner, m := range l.allowances {
		em := make(map[string]string, len(m))
		for spender, a := range m {
			em[spender.String()] = a.String()
		}
		allowances[owner.String()] = em
	}
	return &Snapshot{
		TotalSupply: l.totalSupply.String(),
		Sealed:      l.sealed,
		Balances:    balances,
		Allowances:  allowances,
	}
}

func (l *Ledger) RestoreSnapshot(s *Snapshot) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if len(l.balances) != 0 || l.totalSupply.Sign() != 0 {
		return errors.StateError.New("AlreadyInUse")
	}
	total, ok := new(big.Int).SetString(s.TotalSupply, 10)
	if !ok {
		return errors.CriticalFormatError.Errorf(
			"InvalidTotalSupply(value=%s)", s.TotalSupply)
	}
	balances := make(map[acmodule.Address]*big.Int, len(s.Balances))
	for addr, v := range s.Balances {
		owner, err := acmodule.ParseAddress(addr)
		if err != nil {
			return err
		}
		b, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return errors.CriticalFormatError.Errorf(
				"InvalidBalance(owner=%s,value=%s)", addr, v)
		}
		balances[owner] = b
	}
	allowances := make(map[acmodule.Address]map[acmodule.Address]*big.Int, len(s.Allowances))
	for addr, em := range s.Allowances {
		owner, err := acmodule.ParseAddress(addr)
		if err != nil {
			return err
		}
		m := make(map[acmodule.Address]*big.Int, len(em))
		for saddr, v := range em {
			spender, err := acmodule.ParseAddress(saddr)
			if err != nil {
				return err
			}
			a, ok := new(big.Int).SetString(v, 10)
			if !ok {
				return errors.CriticalFormatError.Errorf(
					"InvalidAllowance(owner=%s,spender=%s,value=%s)", addr, saddr, v)
			}
			m[spender] = a
		}
		allowances[owner] = m
	}

	l.totalSupply = total
	l.sealed = s.Sealed
	l.balances = balances
	l.allowances = allowances
	return nil
}
