package mcp

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemorySessionStore_IssueContextDelete(t *testing.T) {
	store := &InMemorySessionStore{}

	id, err := store.Issue(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	ctx, err := store.Context(context.Background(), id)
	require.NoError(t, err)
	assert.NotNil(t, ctx)

	require.NoError(t, store.Delete(context.Background(), id))

	_, err = store.Context(context.Background(), id)
	assert.Error(t, err)
}

func TestInMemorySessionStore_DeleteUnknownIsNoop(t *testing.T) {
	store := &InMemorySessionStore{}
	assert.NoError(t, store.Delete(context.Background(), "missing"))
}

func TestSessionManager_StartContextDiscard(t *testing.T) {
	mgr := &sessionManager{store: &InMemorySessionStore{}}

	id, err := mgr.Start(context.Background())
	require.NoError(t, err)

	ctx, err := mgr.Context(context.Background(), id)
	require.NoError(t, err)
	assert.NotNil(t, ctx)

	require.NoError(t, mgr.Discard(context.Background(), id))

	_, err = mgr.Context(context.Background(), id)
	assert.Error(t, err)
}

func TestSessionManager_ContextUnknownSessionErrors(t *testing.T) {
	mgr := &sessionManager{store: &InMemorySessionStore{}}
	_, err := mgr.Context(context.Background(), "missing")
	assert.Error(t, err)
}

func TestSessionManager_DiscardClearsResourceSubscriptions(t *testing.T) {
	resourceStore := &InMemoryResourceModificationSubscriptionStore{nowFunc: time.Now}
	listStore := &InMemoryResourceListChangeSubscriptionStore{nowFunc: time.Now}
	mgr := &sessionManager{
		store:                     &InMemorySessionStore{},
		resourceSubscriptions:     resourceStore,
		resourceListSubscriptions: listStore,
	}

	id, err := mgr.Start(context.Background())
	require.NoError(t, err)

	uri, err := url.Parse("note:///welcome")
	require.NoError(t, err)
	_, err = resourceStore.Issue(context.Background(), id, uri)
	require.NoError(t, err)
	_, err = listStore.Issue(context.Background(), id)
	require.NoError(t, err)

	require.NoError(t, mgr.Discard(context.Background(), id))

	_, err = resourceStore.Get(context.Background(), id, uri)
	assert.ErrorIs(t, err, ErrResourceModificationSubscriptionNotFound)
	_, err = listStore.Get(context.Background(), id)
	assert.ErrorIs(t, err, ErrResourceListChangeSubscriptionNotFound)
}
