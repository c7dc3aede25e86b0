// Package app wires together configuration, the local store, and other
// dependencies into a single Deps struct that commands receive at runtime.
package app

import (
	"github.com/derickschaefer/energyratio/internal/config"
	"github.com/derickschaefer/energyratio/internal/store"
)

// Deps holds all runtime dependencies injected into command Run functions.
// Store is nil until RequireStore is called so that commands which never
// touch the database do not take the bbolt file lock.
type Deps struct {
	Config *config.Config
	Store  *store.Store
}

// New builds a Deps from resolved config.
func New(cfg *config.Config) *Deps {
	return &Deps{Config: cfg}
}

// RequireStore opens the database at Config.DBPath if it is not open yet.
func (d *Deps) RequireStore() error {
	if d.Store != nil {
		return nil
	}
	s, err := store.Open(d.Config.DBPath)
	if err != nil {
		return err
	}
	d.Store = s
	return nil
}

// Close releases the store if it was opened.
func (d *Deps) Close() error {
	if d.Store == nil {
		return nil
	}
	err := d.Store.Close()
	d.Store = nil
	return err
}
