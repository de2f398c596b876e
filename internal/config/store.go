package config

import "sync/atomic"

// Store holds the active configuration snapshot. A loaded *Config is never
// mutated; reloads swap in a new snapshot.
type Store struct {
	current atomic.Pointer[Config]
}

func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

func (s *Store) Load() *Config {
	return s.current.Load()
}

func (s *Store) Swap(cfg *Config) *Config {
	return s.current.Swap(cfg)
}
