package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	pluginStatesBucket = []byte("plugin_states")
	adminListBucket    = []byte("admin_list")
	adminListKey       = []byte("current")
)

// BoltStore persists plugin enabled/disabled states and the admin
// list in a single embedded bbolt file — the default store.Store
// backend, chosen because it needs no separate process and no cgo.
type BoltStore struct {
	db *bbolt.DB
}

// OpenBolt opens (creating if absent) a bbolt database at path.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(pluginStatesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(adminListBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init bolt buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) LoadPluginStates(ctx context.Context) (map[string]bool, error) {
	states := map[string]bool{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(pluginStatesBucket)
		return b.ForEach(func(k, v []byte) error {
			states[string(k)] = string(v) == "1"
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("store: load plugin states: %w", err)
	}
	return states, nil
}

func (s *BoltStore) SavePluginStates(ctx context.Context, states map[string]bool) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(pluginStatesBucket); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		b, err := tx.CreateBucket(pluginStatesBucket)
		if err != nil {
			return err
		}
		for name, enabled := range states {
			val := []byte("0")
			if enabled {
				val = []byte("1")
			}
			if err := b.Put([]byte(name), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: save plugin states: %w", err)
	}
	return nil
}

func (s *BoltStore) LoadAdminList(ctx context.Context) (AdminList, bool, error) {
	var list AdminList
	found := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(adminListBucket)
		data := b.Get(adminListKey)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &list)
	})
	if err != nil {
		return AdminList{}, false, fmt.Errorf("store: load admin list: %w", err)
	}
	return list, found, nil
}

func (s *BoltStore) SaveAdminList(ctx context.Context, list AdminList) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("store: marshal admin list: %w", err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(adminListBucket).Put(adminListKey, data)
	})
	if err != nil {
		return fmt.Errorf("store: save admin list: %w", err)
	}
	return nil
}

func (s *BoltStore) Ping(ctx context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error { return nil })
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
