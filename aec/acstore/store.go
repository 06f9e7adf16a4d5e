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

// Package acstore persists protocol snapshots in a local key-value store.
package acstore

import (
	"path/filepath"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/vmihailenco/msgpack/v4"

	"github.com/aethercycle/aethercycle-protocol-sub000/common/errors"
)

type BucketID string

const (
	BucketState BucketID = "S"
	BucketMeta  BucketID = "M"
)

// Well-known state keys.
const (
	KeyEndowment = "endowment"
	KeyEngine    = "engine"
)

// PoolKey returns the state key under which a pool snapshot is stored.
func PoolKey(name string) string {
	return "pool." + name
}

func internalKey(id BucketID, key string) []byte {
	buf := make([]byte, 0, len(id)+1+len(key))
	buf = append(buf, id...)
	buf = append(buf, '/')
	buf = append(buf, key...)
	return buf
}

type Store struct {
	lock sync.Mutex
	db   *leveldb.DB
}

// Open opens (or creates) the store under dir.
func Open(dir, name string) (*Store, error) {
	db, err := leveldb.OpenFile(filepath.Join(dir, name), nil)
	if err != nil {
		return nil, errors.Wrapf(err, "FailToOpenStore(dir=%s,name=%s)", dir, name)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	return nil
}

func (s *Store) handle() (*leveldb.DB, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.db == nil {
		return nil, errors.StateError.New("StoreClosed")
	}
	return s.db, nil
}

// Put encodes v with msgpack and stores it under the key.
func (s *Store) Put(id BucketID, key string, v interface{}) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	bs, err := msgpack.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "FailToEncode(key=%s)", key)
	}
	return db.Put(internalKey(id, key), bs, nil)
}

// Get decodes the stored value into v. It returns false without error
// when the key is absent.
func (s *Store) Get(id BucketID, key string, v interface{}) (bool, error) {
	db, err := s.handle()
	if err != nil {
		return false, err
	}
	bs, err := db.Get(internalKey(id, key), nil)
	if err == leveldb.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := msgpack.Unmarshal(bs, v); err != nil {
		return false, errors.Wrapf(err, "FailToDecode(key=%s)", key)
	}
	return true, nil
}

func (s *Store) Has(id BucketID, key string) (bool, error) {
	db, err := s.handle()
	if err != nil {
		return false, err
	}
	return db.Has(internalKey(id, key), nil)
}

func (s *Store) Delete(id BucketID, key string) error {
	db, err := s.handle()
	if err != nil {
		return err
	}
	return db.Delete(internalKey(id, key), nil)
}
