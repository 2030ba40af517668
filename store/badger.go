package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/rushteam/persona/core"
)

// BadgerStore 单机持久化的画像 KV；path 为空时纯内存
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %q: %w", path, err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Name() string { return "badger" }

func (b *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, core.ErrStoreNotFound
	}
	return out, err
}

func (b *BadgerStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := badger.NewEntry([]byte(key), value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return b.db.Update(func(txn *badger.Txn) error { return txn.SetEntry(e) })
}

func (b *BadgerStore) Delete(_ context.Context, key string) error {
	return b.db.Update(func(txn *badger.Txn) error { return txn.Delete([]byte(key)) })
}

func (b *BadgerStore) Ping(context.Context) error {
	if b.db.IsClosed() {
		return errors.New("badger: db closed")
	}
	return nil
}

func (b *BadgerStore) Close() error { return b.db.Close() }

var _ core.KVStore = (*BadgerStore)(nil)
