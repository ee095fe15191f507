package temporal

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/trackchanges/internal/domain"
	"github.com/rpattn/trackchanges/internal/repository"
)

// versionLoader batches and dedupes as-of version lookups while a set of
// versions is being wrapped. A loader lives for one wrap invocation; its
// cache is never shared across requests.
type versionLoader struct {
	loader *dataloader.Loader
}

type asOfLoaderKey struct {
	key repository.AsOfKey
}

func (k asOfLoaderKey) String() string {
	return k.key.EntityID.String() + "|" + strconv.FormatInt(k.key.At.UnixNano(), 10)
}

func (k asOfLoaderKey) Raw() interface{} { return k.key }

func newVersionLoader(store repository.Store) *versionLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		asOfKeys := make([]repository.AsOfKey, len(keys))
		for i, key := range keys {
			asOfKeys[i] = key.Raw().(repository.AsOfKey)
		}

		versions, err := store.Versions().AsOfBatch(ctx, asOfKeys)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		results := make([]*dataloader.Result, len(keys))
		for i := range keys {
			if versions[i] == nil {
				// Keep the interface nil so misses stay distinguishable.
				results[i] = &dataloader.Result{}
				continue
			}
			results[i] = &dataloader.Result{Data: versions[i]}
		}
		return results
	}

	return &versionLoader{
		loader: dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(time.Millisecond)),
	}
}

// Prime enqueues a lookup without forcing it, so later AsOf calls in the
// same wrap pass can share one batch.
func (l *versionLoader) Prime(ctx context.Context, entityID uuid.UUID, at time.Time) {
	l.loader.Load(ctx, asOfLoaderKey{key: repository.AsOfKey{EntityID: entityID, At: at}})
}

// AsOf resolves the version with the greatest history date <= at, or nil
// when the reference predates any tracked history.
func (l *versionLoader) AsOf(ctx context.Context, entityID uuid.UUID, at time.Time) (*domain.Version, error) {
	thunk := l.loader.Load(ctx, asOfLoaderKey{key: repository.AsOfKey{EntityID: entityID, At: at}})
	data, err := thunk()
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return data.(*domain.Version), nil
}
