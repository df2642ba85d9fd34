// Package storetest holds behavioural tests shared by every store backend.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authservice "github.com/Matidza/Auth-Service"
)

func newAccount(email string) *authservice.Account {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &authservice.Account{
		Email:        email,
		PasswordHash: "$2a$12$hash",
		Provider:     authservice.ProviderLocal,
		Role:         authservice.RoleMentee,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// RunAccountStoreTests exercises the AccountStore contract against store.
// The store must start empty.
func RunAccountStoreTests(t *testing.T, store authservice.AccountStore) {
	ctx := context.Background()

	t.Run("create assigns id and is readable by id and email", func(t *testing.T) {
		account := newAccount("Alice@Example.com")
		require.NoError(t, store.CreateAccount(ctx, account))
		require.NotEmpty(t, account.ID)

		byID, err := store.GetAccountByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "alice@example.com", byID.Email)
		assert.Equal(t, authservice.RoleMentee, byID.Role)
		assert.False(t, byID.Verified)

		byEmail, err := store.GetAccountByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, account.ID, byEmail.ID)
	})

	t.Run("duplicate email is rejected regardless of case", func(t *testing.T) {
		require.NoError(t, store.CreateAccount(ctx, newAccount("bob@example.com")))
		err := store.CreateAccount(ctx, newAccount("BOB@example.com"))
		assert.True(t, errors.Is(err, authservice.ErrDuplicateEmail), "got %v", err)
	})

	t.Run("missing accounts report not found", func(t *testing.T) {
		_, err := store.GetAccountByID(ctx, "does-not-exist")
		assert.ErrorIs(t, err, authservice.ErrAccountNotFound)
		_, err = store.GetAccountByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, authservice.ErrAccountNotFound)
	})

	t.Run("save persists code slots and flags", func(t *testing.T) {
		account := newAccount("carol@example.com")
		require.NoError(t, store.CreateAccount(ctx, account))

		issued := time.Now().UTC().Truncate(time.Millisecond)
		account.VerificationCode = authservice.CodeState{Digest: "abc123", IssuedAt: issued}
		account.ForgotPasswordCode = authservice.CodeState{Digest: "def456", IssuedAt: issued}
		account.Role = authservice.RoleMentor
		require.NoError(t, store.SaveAccount(ctx, account))

		got, err := store.GetAccountByID(ctx, account.ID)
		require.NoError(t, err)
		assert.Equal(t, "abc123", got.VerificationCode.Digest)
		assert.True(t, got.VerificationCode.IssuedAt.Equal(issued))
		assert.Equal(t, "def456", got.ForgotPasswordCode.Digest)
		assert.Equal(t, authservice.RoleMentor, got.Role)

		got.VerificationCode.Clear()
		got.Verified = true
		require.NoError(t, store.SaveAccount(ctx, got))

		again, err := store.GetAccountByEmail(ctx, "carol@example.com")
		require.NoError(t, err)
		assert.True(t, again.Verified)
		assert.False(t, again.VerificationCode.Issued())
		assert.True(t, again.ForgotPasswordCode.Issued())
	})
}

// RunPostStoreTests exercises the PostStore contract against store.
// The store must start empty.
func RunPostStoreTests(t *testing.T, store authservice.PostStore) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	var ids []string
	for i := 0; i < 12; i++ {
		post := &authservice.Post{
			Title:       fmt.Sprintf("post %d", i),
			Description: "body",
			OwnerID:     "owner-1",
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
			UpdatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.CreatePost(ctx, post))
		require.NotEmpty(t, post.ID)
		ids = append(ids, post.ID)
	}

	t.Run("list is newest first and paged", func(t *testing.T) {
		first, err := store.ListPosts(ctx, 0, 10)
		require.NoError(t, err)
		require.Len(t, first, 10)
		assert.Equal(t, "post 11", first[0].Title)
		assert.Equal(t, "post 2", first[9].Title)

		second, err := store.ListPosts(ctx, 10, 10)
		require.NoError(t, err)
		require.Len(t, second, 2)
		assert.Equal(t, "post 0", second[1].Title)

		empty, err := store.ListPosts(ctx, 20, 10)
		require.NoError(t, err)
		assert.Empty(t, empty)

		clamped, err := store.ListPosts(ctx, -5, 3)
		require.NoError(t, err, "a negative offset starts at the newest post")
		require.Len(t, clamped, 3)
		assert.Equal(t, "post 11", clamped[0].Title)
	})

	t.Run("get and save", func(t *testing.T) {
		post, err := store.GetPost(ctx, ids[3])
		require.NoError(t, err)
		assert.Equal(t, "owner-1", post.OwnerID)

		post.Title = "edited"
		require.NoError(t, store.SavePost(ctx, post))

		got, err := store.GetPost(ctx, ids[3])
		require.NoError(t, err)
		assert.Equal(t, "edited", got.Title)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.DeletePost(ctx, ids[0]))
		_, err := store.GetPost(ctx, ids[0])
		assert.ErrorIs(t, err, authservice.ErrPostNotFound)
		assert.ErrorIs(t, store.DeletePost(ctx, ids[0]), authservice.ErrPostNotFound)
	})

	t.Run("missing post", func(t *testing.T) {
		_, err := store.GetPost(ctx, "missing")
		assert.ErrorIs(t, err, authservice.ErrPostNotFound)
	})
}
