package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Encoder converts a value into the payload persisted to Firestore.
type Encoder[T any] func(value T) (any, error)

// Decoder converts a Firestore snapshot into a value of type T.
type Decoder[T any] func(doc *firestore.DocumentSnapshot) (T, error)

// IdentityEncoder persists the value as-is, relying on firestore struct tags.
func IdentityEncoder[T any]() Encoder[T] {
	return func(value T) (any, error) {
		return value, nil
	}
}

// StructDecoder populates T via snapshot.DataTo.
func StructDecoder[T any]() Decoder[T] {
	return func(doc *firestore.DocumentSnapshot) (T, error) {
		var out T
		if err := doc.DataTo(&out); err != nil {
			return out, fmt.Errorf("decode document %s: %w", doc.Ref.Path, err)
		}
		return out, nil
	}
}

// BaseRepository provides typed helpers over a single Firestore collection.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
	encode     Encoder[T]
	decode     Decoder[T]
}

// NewBaseRepository wires a typed repository for the given collection path.
func NewBaseRepository[T any](provider *Provider, collection string, encode Encoder[T], decode Decoder[T]) (*BaseRepository[T], error) {
	if provider == nil {
		return nil, errors.New("firestore: provider is required")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		return nil, errors.New("firestore: collection is required")
	}
	if encode == nil {
		encode = IdentityEncoder[T]()
	}
	if decode == nil {
		decode = StructDecoder[T]()
	}
	return &BaseRepository[T]{
		provider:   provider,
		collection: collection,
		encode:     encode,
		decode:     decode,
	}, nil
}

// Collection returns the collection reference backing this repository.
func (r *BaseRepository[T]) Collection(ctx context.Context) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, WrapError("collection "+r.collection, err)
	}
	return client.Collection(r.collection), nil
}

// DocumentRef resolves a document reference by id.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, WrapError("document "+r.collection, errors.New("document id is required"))
	}
	col, err := r.Collection(ctx)
	if err != nil {
		return nil, err
	}
	return col.Doc(id), nil
}

// Get fetches and decodes the document with the given id.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return zero, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return zero, WrapError("get "+r.collection, err)
	}
	value, err := r.decode(snap)
	if err != nil {
		return zero, WrapError("decode "+r.collection, err)
	}
	return value, nil
}

// Set writes the document with the given id, replacing existing contents.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T) error {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	payload, err := r.encode(value)
	if err != nil {
		return WrapError("encode "+r.collection, err)
	}
	if _, err := ref.Set(ctx, payload); err != nil {
		return WrapError("set "+r.collection, err)
	}
	return nil
}

// Create writes the document with the given id, failing if it already exists.
func (r *BaseRepository[T]) Create(ctx context.Context, id string, value T) error {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	payload, err := r.encode(value)
	if err != nil {
		return WrapError("encode "+r.collection, err)
	}
	if _, err := ref.Create(ctx, payload); err != nil {
		return WrapError("create "+r.collection, err)
	}
	return nil
}

// Update applies field updates to the document with the given id.
func (r *BaseRepository[T]) Update(ctx context.Context, id string, updates []firestore.Update) error {
	if len(updates) == 0 {
		return nil
	}
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Update(ctx, updates); err != nil {
		return WrapError("update "+r.collection, err)
	}
	return nil
}

// Delete removes the document with the given id.
func (r *BaseRepository[T]) Delete(ctx context.Context, id string) error {
	ref, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil {
		return WrapError("delete "+r.collection, err)
	}
	return nil
}

// Query drains the iterator produced from the supplied query builder.
func (r *BaseRepository[T]) Query(ctx context.Context, build func(*firestore.CollectionRef) firestore.Query) ([]T, error) {
	col, err := r.Collection(ctx)
	if err != nil {
		return nil, err
	}
	query := build(col)
	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []T
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError("query "+r.collection, err)
		}
		value, err := r.decode(snap)
		if err != nil {
			return nil, WrapError("decode "+r.collection, err)
		}
		out = append(out, value)
	}
	return out, nil
}

// QuerySnapshots drains the iterator returning raw snapshots for callers
// that need document metadata alongside the decoded value.
func (r *BaseRepository[T]) QuerySnapshots(ctx context.Context, build func(*firestore.CollectionRef) firestore.Query) ([]*firestore.DocumentSnapshot, error) {
	col, err := r.Collection(ctx)
	if err != nil {
		return nil, err
	}
	iter := build(col).Documents(ctx)
	defer iter.Stop()

	var out []*firestore.DocumentSnapshot
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError("query "+r.collection, err)
		}
		out = append(out, snap)
	}
	return out, nil
}

// Decode exposes the repository decoder for transaction reads.
func (r *BaseRepository[T]) Decode(snap *firestore.DocumentSnapshot) (T, error) {
	value, err := r.decode(snap)
	if err != nil {
		var zero T
		return zero, WrapError("decode "+r.collection, err)
	}
	return value, nil
}

// Encode exposes the repository encoder for transaction writes.
func (r *BaseRepository[T]) Encode(value T) (any, error) {
	payload, err := r.encode(value)
	if err != nil {
		return nil, WrapError("encode "+r.collection, err)
	}
	return payload, nil
}

// Provider returns the underlying provider for transaction orchestration.
func (r *BaseRepository[T]) Provider() *Provider {
	return r.provider
}
