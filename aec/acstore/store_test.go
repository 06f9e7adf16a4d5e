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

package acstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aethercycle/aethercycle-protocol-sub000/aec/endowment"
	"github.com/aethercycle/aethercycle-protocol-sub000/aec/staking"
)

func TestStore_PutGet(t *testing.T) {
	s, err := Open(t.TempDir(), "state")
	assert.NoError(t, err)
	defer s.Close()

	ok, err := s.Has(BucketState, KeyEndowment)
	assert.NoError(t, err)
	assert.False(t, ok)

	in := &endowment.Snapshot{
		Balance:         "311111111000000000000000000",
		Sealed:          true,
		ReleaseInterval: 2592000,
		Compounding:     true,
	}
	assert.NoError(t, s.Put(BucketState, KeyEndowment, in))

	var out endowment.Snapshot
	ok, err = s.Get(BucketState, KeyEndowment, &out)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, in.Balance, out.Balance)
	assert.True(t, out.Sealed)
	assert.Equal(t, in.ReleaseInterval, out.ReleaseInterval)

	ok, err = s.Has(BucketState, KeyEndowment)
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_GetAbsent(t *testing.T) {
	s, err := Open(t.TempDir(), "state")
	assert.NoError(t, err)
	defer s.Close()

	var out endowment.Snapshot
	ok, err := s.Get(BucketState, "no-such-key", &out)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_PoolSnapshot(t *testing.T) {
	s, err := Open(t.TempDir(), "state")
	assert.NoError(t, err)
	defer s.Close()

	in := &staking.PoolSnapshot{
		Name:                 "lp",
		TotalSupply:          "1000000000000000000",
		TotalWeighted:        "1300000000000000000",
		RewardPerUnitStored:  "42",
		RemainingBase:        "0",
		BonusRate:            "0",
		TotalBaseDistributed: "0",
		TotalBonusAdded:      "0",
		Stakes: map[string]staking.StakeEncoded{
			"0x0a00000000000000000000000000000000000000": {
				Amount:            "1000000000000000000",
				Weighted:          "1300000000000000000",
				Tier:              2,
				LockEnd:           1234567890,
				RewardPerUnitPaid: "42",
				Accrued:           "0",
			},
		},
	}
	assert.NoError(t, s.Put(BucketState, PoolKey(in.Name), in))

	var out staking.PoolSnapshot
	ok, err := s.Get(BucketState, PoolKey("lp"), &out)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, in.TotalWeighted, out.TotalWeighted)
	assert.Len(t, out.Stakes, 1)
	st := out.Stakes["0x0a00000000000000000000000000000000000000"]
	assert.Equal(t, "1300000000000000000", st.Weighted)
	assert.Equal(t, 2, st.Tier)
}

func TestStore_Delete(t *testing.T) {
	s, err := Open(t.TempDir(), "state")
	assert.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.Put(BucketMeta, "version", 1))
	assert.NoError(t, s.Delete(BucketMeta, "version"))
	ok, err := s.Has(BucketMeta, "version")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_Closed(t *testing.T) {
	s, err := Open(t.TempDir(), "state")
	assert.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())

	err = s.Put(BucketState, "k", 1)
	assert.Error(t, err)
	_, err = s.Get(BucketState, "k", new(int))
	assert.Error(t, err)
}

func TestStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "state")
	assert.NoError(t, err)
	assert.NoError(t, s.Put(BucketState, "k", "v"))
	assert.NoError(t, s.Close())

	s, err = Open(dir, "state")
	assert.NoError(t, err)
	defer s.Close()
	var v string
	ok, err := s.Get(BucketState, "k", &v)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}
