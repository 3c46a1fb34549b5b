package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/sigtree/codec"
	"github.com/hupe1980/sigtree/store"
	"github.com/hupe1980/sigtree/store/badgerstore"
)

// openStore energizes the store at path: a badger directory written by
// "sigtree import" or a JSON dataset file. itemCache bounds the decoded
// items kept in memory for badger stores.
func openStore(path string, c codec.Codec, itemCache int) (store.Store, func() error, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("energize store %s: %w", path, err)
	}

	if fi.IsDir() {
		db, err := badgerstore.OpenDB(badgerstore.DefaultConfig(path))
		if err != nil {
			return nil, nil, fmt.Errorf("energize store %s: %w", path, err)
		}
		st, err := badgerstore.Open(db, badgerstore.WithItemCache(itemCache))
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("energize store %s: %w", path, err)
		}
		return st, db.Close, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("energize store %s: %w", path, err)
	}
	defer f.Close()

	st, err := store.LoadJSON(f, c)
	if err != nil {
		return nil, nil, fmt.Errorf("energize store %s: %w", path, err)
	}
	return st, func() error { return nil }, nil
}
