package catalog

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"arcsync/internal/errdefs"
	"arcsync/internal/remote"
)

// scriptedSource returns one scripted response per Query call.
type scriptedSource struct {
	calls     int
	responses []func(ctx context.Context) ([]remote.Item, error)
}

func (s *scriptedSource) Query(ctx context.Context, collection string, rows int) ([]remote.Item, error) {
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i](ctx)
}

func (s *scriptedSource) ArtifactName(item remote.Item) string {
	return item.Identifier
}

func (s *scriptedSource) Open(ctx context.Context, collection string, item remote.Item) (io.ReadCloser, error) {
	return nil, errors.New("not implemented")
}

func ok(items ...remote.Item) func(context.Context) ([]remote.Item, error) {
	return func(context.Context) ([]remote.Item, error) { return items, nil }
}

func fail(kind errdefs.Kind) func(context.Context) ([]remote.Item, error) {
	return func(context.Context) ([]remote.Item, error) {
		return nil, errdefs.Newf(kind, "catalog.query", "scripted %s failure", kind)
	}
}

func newTestFetcher(src remote.Source, attempts int) *Fetcher {
	return NewFetcher(src, Options{Attempts: attempts, Backoff: time.Millisecond}, zap.NewNop())
}

func TestFetchFirstAttemptSucceeds(t *testing.T) {
	src := &scriptedSource{responses: []func(context.Context) ([]remote.Item, error){
		ok(remote.Item{Identifier: "alpha", Marker: "m1"}),
	}}

	items, err := newTestFetcher(src, 3).Fetch(context.Background(), "texts", 10)
	require.NoError(t, err)
	assert.Equal(t, []remote.Item{{Identifier: "alpha", Marker: "m1"}}, items)
	assert.Equal(t, 1, src.calls)
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	src := &scriptedSource{responses: []func(context.Context) ([]remote.Item, error){
		fail(errdefs.KindTransient),
		fail(errdefs.KindTransient),
		ok(remote.Item{Identifier: "alpha"}),
	}}

	items, err := newTestFetcher(src, 3).Fetch(context.Background(), "texts", 10)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 3, src.calls)
}

func TestFetchExhaustsAttempts(t *testing.T) {
	src := &scriptedSource{responses: []func(context.Context) ([]remote.Item, error){
		fail(errdefs.KindTransient),
	}}

	_, err := newTestFetcher(src, 3).Fetch(context.Background(), "texts", 10)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindTransient, errdefs.KindOf(err))
	assert.Equal(t, 3, src.calls)
}

func TestFetchDoesNotRetryNonTransientKinds(t *testing.T) {
	for _, kind := range []errdefs.Kind{errdefs.KindNotFound, errdefs.KindRateLimited, errdefs.KindMalformed} {
		src := &scriptedSource{responses: []func(context.Context) ([]remote.Item, error){
			fail(kind),
			ok(remote.Item{Identifier: "never-reached"}),
		}}

		_, err := newTestFetcher(src, 3).Fetch(context.Background(), "texts", 10)
		require.Error(t, err, "kind %s", kind)
		assert.Equal(t, kind, errdefs.KindOf(err), "kind %s", kind)
		assert.Equal(t, 1, src.calls, "kind %s", kind)
	}
}

func TestFetchEmptyCatalogIsSuccess(t *testing.T) {
	src := &scriptedSource{responses: []func(context.Context) ([]remote.Item, error){ok()}}

	items, err := newTestFetcher(src, 3).Fetch(context.Background(), "texts", 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFetchPerAttemptTimeout(t *testing.T) {
	src := &scriptedSource{responses: []func(context.Context) ([]remote.Item, error){
		func(ctx context.Context) ([]remote.Item, error) {
			<-ctx.Done()
			return nil, errdefs.New(errdefs.KindTransient, "catalog.query", ctx.Err())
		},
	}}

	fetcher := NewFetcher(src, Options{
		Attempts: 2,
		Backoff:  time.Millisecond,
		Timeout:  5 * time.Millisecond,
	}, zap.NewNop())

	_, err := fetcher.Fetch(context.Background(), "texts", 10)
	require.Error(t, err)
	assert.Equal(t, errdefs.KindTransient, errdefs.KindOf(err))
	assert.Equal(t, 2, src.calls)
}

func TestFetchStopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &scriptedSource{responses: []func(context.Context) ([]remote.Item, error){
		func(context.Context) ([]remote.Item, error) {
			cancel()
			return nil, errdefs.Newf(errdefs.KindTransient, "catalog.query", "reset")
		},
	}}

	_, err := newTestFetcher(src, 3).Fetch(ctx, "texts", 10)
	require.Error(t, err)
	assert.Equal(t, 1, src.calls)
}
