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
	"github.com/botobag/artemis/graphql"
)

// CodeNotFound is set to the "code" entry in extensions of the error returned from modifyAnimal
// when no animal has the given name.
const CodeNotFound = "NOT_FOUND"

// New builds the GraphQL schema that serves animals in s:
//
//	type Query {
//	  getAnimals: [Animal]
//	  getAnimal(id: ID!): Animal
//	}
//
//	type Mutation {
//	  createAnimal(name: String!, race: String!, type: String!): Animal
//	  modifyAnimal(name: String!, race: String!): Animal
//	  deleteAnimal(name: String!): [Animal]
//	}
//
//	type Animal {
//	  id: ID!
//	  name: String!
//	  race: String!
//	  type: String!
//	}
func New(s *store.Store) (graphql.Schema, error) {
	r := &resolvers{
		store: s,
	}

	animalType, err := graphql.NewObject(&graphql.ObjectConfig{
		Name:        "Animal",
		Description: "An animal kept by the zoo",
		Fields: graphql.Fields{
			"id": {
				Description: "Identifier assigned on creation",
				Type:        graphql.NonNullOfType(graphql.ID()),
				Resolver: graphql.FieldResolverFunc(func(ctx context.Context, source interface{}, info graphql.ResolveInfo) (interface{}, error) {
					return source.(*store.Animal).ID, nil
				}),
			},
			"name": {
				Type: graphql.NonNullOfType(graphql.String()),
				Resolver: graphql.FieldResolverFunc(func(ctx context.Context, source interface{}, info graphql.ResolveInfo) (interface{}, error) {
					return source.(*store.Animal).Name, nil
				}),
			},
			"race": {
				Type: graphql.NonNullOfType(graphql.String()),
				Resolver: graphql.FieldResolverFunc(func(ctx context.Context, source interface{}, info graphql.ResolveInfo) (interface{}, error) {
					return source.(*store.Animal).Race, nil
				}),
			},
			"type": {
				Description: "Species of the animal",
				Type:        graphql.NonNullOfType(graphql.String()),
				Resolver: graphql.FieldResolverFunc(func(ctx context.Context, source interface{}, info graphql.ResolveInfo) (interface{}, error) {
					return source.(*store.Animal).Type, nil
				}),
			},
		},
	})
	if err != nil {
		return nil, err
	}

	queryType, err := graphql.NewObject(&graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"getAnimals": {
				Description: "All animals in creation order",
				Type:        graphql.ListOfType(animalType),
				Resolver:    graphql.FieldResolverFunc(r.getAnimals),
			},
			"getAnimal": {
				Description: "The animal with the given id or null if there's none",
				Type:        graphql.T(animalType),
				Args: graphql.ArgumentConfigMap{
					"id": {
						Type: graphql.NonNullOfType(graphql.ID()),
					},
				},
				Resolver: graphql.FieldResolverFunc(r.getAnimal),
			},
		},
	})
	if err != nil {
		return nil, err
	}

	mutationType, err := graphql.NewObject(&graphql.ObjectConfig{
		Name: "Mutation",
		Fields: graphql.Fields{
			"createAnimal": {
				Type: graphql.T(animalType),
				Args: graphql.ArgumentConfigMap{
					"name": {
						Type: graphql.NonNullOfType(graphql.String()),
					},
					"race": {
						Type: graphql.NonNullOfType(graphql.String()),
					},
					"type": {
						Type: graphql.NonNullOfType(graphql.String()),
					},
				},
				Resolver: graphql.FieldResolverFunc(r.createAnimal),
			},
			"modifyAnimal": {
				Description: "Changes the race of the first animal with the given name",
				Type:        graphql.T(animalType),
				Args: graphql.ArgumentConfigMap{
					"name": {
						Type: graphql.NonNullOfType(graphql.String()),
					},
					"race": {
						Type: graphql.NonNullOfType(graphql.String()),
					},
				},
				Resolver: graphql.FieldResolverFunc(r.modifyAnimal),
			},
			"deleteAnimal": {
				Description: "Removes every animal with the given name and returns the remaining ones",
				Type:        graphql.ListOfType(animalType),
				Args: graphql.ArgumentConfigMap{
					"name": {
						Type: graphql.NonNullOfType(graphql.String()),
					},
				},
				Resolver: graphql.FieldResolverFunc(r.deleteAnimal),
			},
		},
	})
	if err != nil {
		return nil, err
	}

	return graphql.NewSchema(&graphql.SchemaConfig{
		Query:    queryType,
		Mutation: mutationType,
	})
}

// MustNew is like New but panics if the schema cannot be built.
func MustNew(s *store.Store) graphql.Schema {
	schema, err := New(s)
	if err != nil {
		panic(err)
	}
	return schema
}

// resolvers maps root fields onto store operations.
type resolvers struct {
	store *store.Store
}

func (r *resolvers) getAnimals(ctx context.Context, source interface{}, info graphql.ResolveInfo) (interface{}, error) {
	return r.store.List(), nil
}

func (r *resolvers) getAnimal(ctx context.Context, source interface{}, info graphql.ResolveInfo) (interface{}, error) {
	id := info.Args().Get("id").(string)

	// Lookups within one execution are cached when it carries a LoaderManager.
	if manager, ok := info.DataLoaderManager().(*LoaderManager); ok && manager != nil {
		return manager.LoadAnimal(id)
	}

	animal, found := r.store.FindByID(id)
	if !found {
		return nil, nil
	}
	return animal, nil
}

func (r *resolvers) createAnimal(ctx context.Context, source interface{}, info graphql.ResolveInfo) (interface{}, error) {
	args := info.Args()
	return r.store.Insert(
		args.Get("name").(string),
		args.Get("race").(string),
		args.Get("type").(string),
	), nil
}

func (r *resolvers) modifyAnimal(ctx context.Context, source interface{}, info graphql.ResolveInfo) (interface{}, error) {
	args := info.Args()
	animal, err := r.store.ReplaceByName(args.Get("name").(string), args.Get("race").(string))
	if err != nil {
		return nil, graphql.NewError(
			err.Error(),
			graphql.Op("schema.modifyAnimal"),
			graphql.ErrKindExecution,
			graphql.ErrorExtensions{
				"code": CodeNotFound,
			},
			err,
		)
	}
	return animal, nil
}

func (r *resolvers) deleteAnimal(ctx context.Context, source interface{}, info graphql.ResolveInfo) (interface{}, error) {
	return r.store.RemoveByName(info.Args().Get("name").(string)), nil
}
