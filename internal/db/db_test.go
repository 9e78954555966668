package db

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/lambdcalculus/dmbn/internal/perms"
)

func openTestDB(t *testing.T) *Database {
	t.Helper()
	d, err := Init(context.Background(), filepath.Join(t.TempDir(), "users.sqlite"), Options{
		OwnerPassword: "ownerpass",
		DefaultAccess: perms.Rights{"base_access": true},
		HashCost:      bcrypt.MinCost,
		HashWorkers:   2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestOwnerCreatedOnInit(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	exists, err := d.UserExists(ctx, OwnerName)
	require.NoError(t, err)
	assert.True(t, exists)

	login, err := d.VerifyLogin(ctx, OwnerName, "ownerpass")
	require.NoError(t, err)
	assert.Equal(t, OwnerName, login)

	rights, err := d.GetAccessRights(ctx, OwnerName)
	require.NoError(t, err)
	assert.Equal(t, perms.Owner(), rights)
}

func TestInitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.sqlite")
	opts := Options{OwnerPassword: "first", HashCost: bcrypt.MinCost}

	d, err := Init(ctx, path, opts)
	require.NoError(t, err)
	require.NoError(t, d.AddUser(ctx, "alice", "password123", nil))
	require.NoError(t, d.Close())

	opts.OwnerPassword = "second"
	d, err = Init(ctx, path, opts)
	require.NoError(t, err)
	defer d.Close()

	// The owner keeps the password it was created with.
	_, err = d.VerifyLogin(ctx, OwnerName, "first")
	assert.NoError(t, err)
	users, err := d.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", OwnerName}, users)
}

func TestInitBadPath(t *testing.T) {
	_, err := Init(context.Background(), filepath.Join(t.TempDir(), "missing", "dir", "users.sqlite"), Options{})
	assert.Error(t, err)
}

func TestAddAndVerify(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	require.NoError(t, d.AddUser(ctx, "alice", "password123", perms.Rights{"chat": true}))

	login, err := d.VerifyLogin(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, "alice", login)

	_, err = d.VerifyLogin(ctx, "alice", "wrong")
	assert.ErrorIs(t, err, ErrAuthFailed)
	_, err = d.VerifyLogin(ctx, "nobody", "password123")
	assert.ErrorIs(t, err, ErrAuthFailed)

	assert.ErrorIs(t, d.AddUser(ctx, "alice", "other", nil), ErrUserExists)
	assert.ErrorIs(t, d.AddUser(ctx, "", "pw", nil), ErrEmptyUsername)
}

func TestDefaultAccessForNewUsers(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	require.NoError(t, d.AddUser(ctx, "bob", "pw", nil))
	rights, err := d.GetAccessRights(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, perms.Rights{"base_access": true}, rights)
}

func TestGetAccessRightsNotFound(t *testing.T) {
	d := openTestDB(t)
	_, err := d.GetAccessRights(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, d.CheckAccessLogin(context.Background(), "nobody"))
}

func TestOwnerInvariants(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	assert.ErrorIs(t, d.DeleteUser(ctx, OwnerName), ErrProtectedUser)

	for _, attempt := range []perms.Rights{nil, {}, {perms.FullAccess: false}, {"chat": true}} {
		require.NoError(t, d.ChangeAccess(ctx, OwnerName, attempt))
		rights, err := d.GetAccessRights(ctx, OwnerName)
		require.NoError(t, err)
		assert.Equal(t, perms.Rights{perms.FullAccess: true}, rights)
	}
}

func TestCacheCoherence(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	require.NoError(t, d.AddUser(ctx, "alice", "pw", perms.Rights{"a": true}))

	// populate the cache
	rights, err := d.GetAccessRights(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, perms.Rights{"a": true}, rights)
	assert.Equal(t, 1, d.cache.len())

	require.NoError(t, d.ChangeAccess(ctx, "alice", perms.Rights{"b": true}))
	rights, err = d.GetAccessRights(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, perms.Rights{"b": true}, rights)

	// empty means default
	require.NoError(t, d.ChangeAccess(ctx, "alice", nil))
	rights, err = d.GetAccessRights(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, perms.Rights{"base_access": true}, rights)

	require.NoError(t, d.ChangePassword(ctx, "alice", "new"))
	_, ok, _ := d.cache.get("alice")
	assert.False(t, ok)
	_, err = d.VerifyLogin(ctx, "alice", "new")
	assert.NoError(t, err)
}

func TestReturnedRightsAreCopies(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	require.NoError(t, d.AddUser(ctx, "alice", "pw", perms.Rights{"a": true}))

	rights, err := d.GetAccessRights(ctx, "alice")
	require.NoError(t, err)
	rights[perms.FullAccess] = true

	assert.False(t, d.CheckAccessLogin(ctx, "alice", "b"))
}

func TestMutationsOnMissingUser(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	assert.ErrorIs(t, d.DeleteUser(ctx, "ghost"), ErrNotFound)
	assert.ErrorIs(t, d.ChangePassword(ctx, "ghost", "pw"), ErrNotFound)
	assert.ErrorIs(t, d.ChangeAccess(ctx, "ghost", perms.Rights{"a": true}), ErrNotFound)
}

func TestDeleteUser(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	require.NoError(t, d.AddUser(ctx, "alice", "pw", nil))
	assert.True(t, d.CheckAccessLogin(ctx, "alice", "base_access"))

	require.NoError(t, d.DeleteUser(ctx, "alice"))
	exists, err := d.UserExists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.False(t, d.CheckAccessLogin(ctx, "alice"))
}

func TestCheckAccessLogin(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	require.NoError(t, d.AddUser(ctx, "mod", "pw", perms.Rights{perms.Broadcast: true, perms.ManageUsers: false}))

	assert.True(t, d.CheckAccessLogin(ctx, OwnerName, "anything", "at_all"))
	assert.True(t, d.CheckAccessLogin(ctx, "mod", perms.Broadcast))
	assert.False(t, d.CheckAccessLogin(ctx, "mod", perms.Broadcast, perms.ManageUsers))
}

func TestConcurrentReadsAndWrites(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	require.NoError(t, d.AddUser(ctx, "alice", "pw", perms.Rights{"v0": true}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, _ = d.GetAccessRights(ctx, "alice")
			}
		}()
	}
	require.NoError(t, d.ChangeAccess(ctx, "alice", perms.Rights{"v1": true}))
	wg.Wait()

	rights, err := d.GetAccessRights(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, perms.Rights{"v1": true}, rights)
}
