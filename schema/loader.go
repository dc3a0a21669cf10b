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

package schema

import (
	"context"

	"github.com/botobag/artemis-zoo/store"
	"github.com/botobag/artemis/concurrent"
	"github.com/botobag/artemis/concurrent/future"
	"github.com/botobag/artemis/dataloader"
	"github.com/botobag/artemis/graphql"
)

// BatchObserver is notified with the ids of every batch that a LoaderManager reads from the store.
type BatchObserver func(ids []string)

// LoaderOption configures a LoaderManager.
type LoaderOption func(manager *LoaderManager)

// WithBatchObserver registers an observer for batches dispatched by the manager.
func WithBatchObserver(observer BatchObserver) LoaderOption {
	return func(manager *LoaderManager) {
		manager.observer = observer
	}
}

// LoaderManager implements graphql.DataLoaderManager. It owns the data loaders for a single
// execution. An id is read from the store at most once during the lifetime of the manager; Later
// lookups of the same id, including ids that were not found, are served from the loader's cache.
// Create a new one for each request so mutations made by other requests are visible.
//
// The executor resolves sibling fields one after another and dispatches pending loaders as soon as
// a field waits for its value. Distinct ids requested by separate getAnimal fields are therefore
// read in separate batches.
type LoaderManager struct {
	graphql.DataLoaderManagerBase

	store    *store.Store
	observer BatchObserver

	animalLoader *dataloader.DataLoader
}

var _ graphql.DataLoaderManager = (*LoaderManager)(nil)

// NewLoaderManager creates a LoaderManager that reads from s. Batches are dispatched to runner or
// loaded inline in the executing goroutine when runner is nil.
func NewLoaderManager(s *store.Store, runner concurrent.Executor, opts ...LoaderOption) (*LoaderManager, error) {
	manager := &LoaderManager{
		store: s,
	}
	for _, opt := range opts {
		opt(manager)
	}

	loader, err := dataloader.New(dataloader.Config{
		BatchLoader: dataloader.BatchLoadFunc(manager.loadAnimals),
		Runner:      runner,
	})
	if err != nil {
		return nil, err
	}
	manager.animalLoader = loader

	return manager, nil
}

// LoadAnimal schedules a load of the animal with the given id. The returned future resolves to a
// *store.Animal or nil if there's no such animal.
func (manager *LoaderManager) LoadAnimal(id string) (future.Future, error) {
	return manager.LoadWith(manager.animalLoader, id)
}

func (manager *LoaderManager) loadAnimals(ctx context.Context, tasks *dataloader.TaskList) {
	var (
		ids     []string
		pending []*dataloader.Task
	)

	iter := tasks.Iterator()
	for {
		task, done := iter.Next()
		if done {
			break
		}
		ids = append(ids, task.Key().(string))
		pending = append(pending, task)
	}

	if manager.observer != nil {
		manager.observer(ids)
	}

	for i, animal := range manager.store.FindByIDs(ids) {
		if animal == nil {
			// Untyped nil; A nil *store.Animal would be completed as an object instead of null.
			pending[i].Complete(nil)
		} else {
			pending[i].Complete(animal)
		}
	}
}
