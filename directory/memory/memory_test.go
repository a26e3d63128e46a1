package memory

import (
	"context"
	"sync"
	"testing"

	goAccess "github.com/MrEthical07/goAccess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	d := New()

	a, err := d.Create(ctx, goAccess.Account{Username: "Alice", Email: "alice@example.com", PasswordHash: "h"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), a.ID)
	assert.False(t, a.CreatedAt.IsZero())

	byName, err := d.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, a, byName)

	byEmail, err := d.FindByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, a.ID, byEmail.ID)

	_, err = d.FindByID(ctx, 99)
	assert.ErrorIs(t, err, goAccess.ErrAccountNotFound)
}

func TestCreateDuplicates(t *testing.T) {
	ctx := context.Background()
	d := New()
	_, err := d.Create(ctx, goAccess.Account{Username: "alice", Email: "a@example.com"})
	require.NoError(t, err)

	_, err = d.Create(ctx, goAccess.Account{Username: "ALICE", Email: "b@example.com"})
	assert.ErrorIs(t, err, goAccess.ErrUsernameTaken)

	_, err = d.Create(ctx, goAccess.Account{Username: "bob", Email: "A@example.com"})
	assert.ErrorIs(t, err, goAccess.ErrEmailTaken)
	assert.Equal(t, 1, d.Len())
}

func TestSaveReindexes(t *testing.T) {
	ctx := context.Background()
	d := New()
	a, err := d.Create(ctx, goAccess.Account{Username: "alice", Email: "a@example.com"})
	require.NoError(t, err)
	_, err = d.Create(ctx, goAccess.Account{Username: "bob", Email: "b@example.com"})
	require.NoError(t, err)

	a.Username = "alicia"
	require.NoError(t, d.Save(ctx, a))

	_, err = d.FindByUsername(ctx, "alice")
	assert.ErrorIs(t, err, goAccess.ErrAccountNotFound)
	got, err := d.FindByUsername(ctx, "alicia")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	a.Email = "b@example.com"
	assert.ErrorIs(t, d.Save(ctx, a), goAccess.ErrEmailTaken)
	assert.ErrorIs(t, d.Save(ctx, goAccess.Account{ID: 42}), goAccess.ErrAccountNotFound)
}

func TestSaveNeverWritesConfirmed(t *testing.T) {
	ctx := context.Background()
	d := New()
	a, err := d.Create(ctx, goAccess.Account{Username: "alice", Email: "a@example.com", PasswordHash: "h1"})
	require.NoError(t, err)

	stale := a
	changed, err := d.ConfirmAccount(ctx, a.ID)
	require.NoError(t, err)
	require.True(t, changed)

	stale.PasswordHash = "h2"
	require.NoError(t, d.Save(ctx, stale))

	got, err := d.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Confirmed, "a stale Save must not undo a confirmation")
	assert.Equal(t, "h2", got.PasswordHash)

	b, err := d.Create(ctx, goAccess.Account{Username: "bob", Email: "b@example.com"})
	require.NoError(t, err)
	b.Confirmed = true
	require.NoError(t, d.Save(ctx, b))
	got, err = d.FindByID(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, got.Confirmed, "Save must not confirm an account")
}

func TestConfirmAccountIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	d := New()
	a, err := d.Create(ctx, goAccess.Account{Username: "alice", Email: "a@example.com"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			changed, err := d.ConfirmAccount(ctx, a.ID)
			assert.NoError(t, err)
			results <- changed
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for changed := range results {
		if changed {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	_, err = d.ConfirmAccount(ctx, 99)
	assert.ErrorIs(t, err, goAccess.ErrAccountNotFound)
}
