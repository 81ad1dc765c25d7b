// Package capability tracks which identities may act as registrar or admin.
package capability

import (
	"fmt"
	"sync"

	"github.com/acorn-io/acorn-names/pkg/model"
	"github.com/ethereum/go-ethereum/common"
)

type Capability string

const (
	// Registrar may register names on behalf of any owner.
	Registrar Capability = "registrar"
	// Admin may change pricing, pause, withdraw and manage grants.
	Admin Capability = "admin"
)

func (c Capability) IsValid() error {
	switch c {
	case Registrar, Admin:
		return nil
	}
	return fmt.Errorf("invalid capability %q", string(c))
}

type Set struct {
	mu     sync.RWMutex
	grants map[common.Address]map[Capability]bool
}

// NewSet returns a set in which admin holds the admin capability.
func NewSet(admin common.Address) *Set {
	s := &Set{grants: map[common.Address]map[Capability]bool{}}
	s.add(admin, Admin)
	return s
}

func (s *Set) Has(who common.Address, c Capability) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.grants[who][c]
}

// Require returns ErrNotAuthorized unless who holds c.
func (s *Set) Require(who common.Address, c Capability) error {
	if !s.Has(who, c) {
		return fmt.Errorf("%w: %s lacks %s capability", model.ErrNotAuthorized, who.Hex(), c)
	}
	return nil
}

// Grant gives c to who. The caller must hold Admin.
func (s *Set) Grant(caller, who common.Address, c Capability) error {
	if err := c.IsValid(); err != nil {
		return err
	}
	if err := s.Require(caller, Admin); err != nil {
		return err
	}
	s.add(who, c)
	return nil
}

// Revoke removes c from who. The caller must hold Admin and may not revoke
// its own admin capability.
func (s *Set) Revoke(caller, who common.Address, c Capability) error {
	if err := c.IsValid(); err != nil {
		return err
	}
	if err := s.Require(caller, Admin); err != nil {
		return err
	}
	if c == Admin && caller == who {
		return fmt.Errorf("%w: cannot revoke own admin capability", model.ErrNotAuthorized)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.grants[who], c)
	if len(s.grants[who]) == 0 {
		delete(s.grants, who)
	}
	return nil
}

// Grants returns a copy of every grant, keyed by holder.
func (s *Set) Grants() map[common.Address][]Capability {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[common.Address][]Capability, len(s.grants))
	for who, caps := range s.grants {
		for _, c := range []Capability{Admin, Registrar} {
			if caps[c] {
				out[who] = append(out[who], c)
			}
		}
	}
	return out
}

// Load replaces every grant with the given ones.
func (s *Set) Load(grants map[common.Address][]Capability) {
	s.mu.Lock()
	s.grants = map[common.Address]map[Capability]bool{}
	s.mu.Unlock()
	for who, caps := range grants {
		for _, c := range caps {
			s.add(who, c)
		}
	}
}

func (s *Set) add(who common.Address, c Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.grants[who] == nil {
		s.grants[who] = map[Capability]bool{}
	}
	s.grants[who][c] = true
}
