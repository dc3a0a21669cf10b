/**
 * Copyright (c) 2019, The Artemis Authors.
 *
 * Permission to use, copy, modify, and/or distribute this software for any
 * purpose with or without fee is hereby granted, provided that the above
 * copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
 * WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
 * MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
 * ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
 * WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
 * ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
 * OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package store

import (
	"strconv"
	"sync"
)

// Animal is a record held by the Store.
type Animal struct {
	// Identifier assigned by the Store on insertion; never reused
	ID string

	// Name of the animal; Names are not unique.
	Name string

	// Race (breed) of the animal
	Race string

	// Type is the species of the animal such as "Cat" or "Dog".
	Type string
}

// clone returns a copy of animal so callers never alias records owned by the Store.
func (animal *Animal) clone() *Animal {
	c := *animal
	return &c
}

// Option configures a Store created by New.
type Option func(s *Store)

// WithSeed inserts the given animals into the store on creation. IDs in the given values are
// ignored; each record receives a fresh one in the given order.
func WithSeed(animals ...Animal) Option {
	return func(s *Store) {
		for _, animal := range animals {
			s.insertLocked(animal.Name, animal.Race, animal.Type)
		}
	}
}

// Store owns an ordered sequence of Animals. It is safe for concurrent use: lookups share a read
// lock and mutations are serialized behind the write lock.
type Store struct {
	mutex sync.RWMutex

	// Records in insertion order
	animals []*Animal

	// The value of the last assigned ID; The next record gets lastID+1.
	lastID uint64
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of records in the store.
func (s *Store) Len() int {
	s.mutex.RLock()
	n := len(s.animals)
	s.mutex.RUnlock()
	return n
}

// List returns all records in insertion order.
func (s *Store) List() []*Animal {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.snapshotLocked()
}

// FindByID returns the record with the given id. The second value reports whether one was found.
func (s *Store) FindByID(id string) (*Animal, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, animal := range s.animals {
		if animal.ID == id {
			return animal.clone(), true
		}
	}
	return nil, false
}

// FindByIDs looks up records for a batch of ids under a single read lock. The i-th element in the
// result is the record for ids[i] or nil if there's no such record.
func (s *Store) FindByIDs(ids []string) []*Animal {
	result := make([]*Animal, len(ids))
	if len(ids) == 0 {
		return result
	}

	// Map id to the positions in result that request it; A batch may ask for the same id twice.
	pending := make(map[string][]int, len(ids))
	for i, id := range ids {
		pending[id] = append(pending[id], i)
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, animal := range s.animals {
		positions, ok := pending[animal.ID]
		if !ok {
			continue
		}
		for _, i := range positions {
			result[i] = animal.clone()
		}
		// First match wins.
		delete(pending, animal.ID)
		if len(pending) == 0 {
			break
		}
	}

	return result
}

// FindByName returns the first record with the given name.
func (s *Store) FindByName(name string) (*Animal, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if i := s.indexOfNameLocked(name); i >= 0 {
		return s.animals[i].clone(), true
	}
	return nil, false
}

// Insert appends a new record and returns it.
func (s *Store) Insert(name, race, kind string) *Animal {
	s.mutex.Lock()
	animal := s.insertLocked(name, race, kind)
	s.mutex.Unlock()
	return animal.clone()
}

// RemoveByName removes every record with the given name and returns the remaining ones. It is a
// no-op when nothing matches.
func (s *Store) RemoveByName(name string) []*Animal {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	// Filter in place.
	kept := s.animals[:0]
	for _, animal := range s.animals {
		if animal.Name != name {
			kept = append(kept, animal)
		}
	}
	// Drop references held by the tail of the backing array.
	for i := len(kept); i < len(s.animals); i++ {
		s.animals[i] = nil
	}
	s.animals = kept

	return s.snapshotLocked()
}

// ReplaceByName sets the race of the first record with the given name. The record keeps its id,
// type and position in the sequence. It returns a *NotFoundError if no record has that name.
func (s *Store) ReplaceByName(name, race string) (*Animal, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	i := s.indexOfNameLocked(name)
	if i < 0 {
		return nil, &NotFoundError{Name: name}
	}

	animal := s.animals[i]
	animal.Race = race
	return animal.clone(), nil
}

func (s *Store) insertLocked(name, race, kind string) *Animal {
	s.lastID++
	animal := &Animal{
		ID:   strconv.FormatUint(s.lastID, 10),
		Name: name,
		Race: race,
		Type: kind,
	}
	s.animals = append(s.animals, animal)
	return animal
}

func (s *Store) indexOfNameLocked(name string) int {
	for i, animal := range s.animals {
		if animal.Name == name {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []*Animal {
	result := make([]*Animal, len(s.animals))
	for i, animal := range s.animals {
		result[i] = animal.clone()
	}
	return result
}
