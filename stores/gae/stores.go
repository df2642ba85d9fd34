//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	authservice "github.com/Matidza/Auth-Service"
)

// Kind constants for Datastore entities
const (
	KindAccount      = "Account"
	KindAccountEmail = "AccountEmail"
	KindPost         = "Post"
)

func namespacedKey(namespace, kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = namespace
	return key
}

// ============================================================================
// AccountStore
// ============================================================================

// AccountStore implements authservice.AccountStore using Google Cloud Datastore
type AccountStore struct {
	client    *datastore.Client
	namespace string
}

// NewAccountStore creates a new Datastore-backed AccountStore
func NewAccountStore(client *datastore.Client, namespace string) *AccountStore {
	return &AccountStore{client: client, namespace: namespace}
}

func (s *AccountStore) accountKey(id string) *datastore.Key {
	return namespacedKey(s.namespace, KindAccount, id)
}

func (s *AccountStore) emailKey(email string) *datastore.Key {
	return namespacedKey(s.namespace, KindAccountEmail, email)
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *authservice.Account) error {
	account.Email = authservice.NormalizeEmail(account.Email)
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	accountKey := s.accountKey(account.ID)
	emailKey := s.emailKey(account.Email)

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var reserved AccountEmailEntity
		err := tx.Get(emailKey, &reserved)
		if err == nil {
			return authservice.ErrDuplicateEmail
		}
		if !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}

		entity := AccountToEntity(account, accountKey)
		entity.Version = 1
		if _, err := tx.Put(accountKey, entity); err != nil {
			return err
		}
		_, err = tx.Put(emailKey, &AccountEmailEntity{
			Key:       emailKey,
			AccountID: account.ID,
			CreatedAt: time.Now(),
		})
		return err
	})
	if errors.Is(err, authservice.ErrDuplicateEmail) {
		return err
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *AccountStore) GetAccountByID(ctx context.Context, id string) (*authservice.Account, error) {
	if id == "" {
		return nil, authservice.ErrAccountNotFound
	}
	var entity AccountEntity
	if err := s.client.Get(ctx, s.accountKey(id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, authservice.ErrAccountNotFound
		}
		return nil, err
	}
	return entity.ToAccount(), nil
}

func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*authservice.Account, error) {
	var reserved AccountEmailEntity
	if err := s.client.Get(ctx, s.emailKey(authservice.NormalizeEmail(email)), &reserved); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, authservice.ErrAccountNotFound
		}
		return nil, err
	}
	return s.GetAccountByID(ctx, reserved.AccountID)
}

func (s *AccountStore) SaveAccount(ctx context.Context, account *authservice.Account) error {
	key := s.accountKey(account.ID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing AccountEntity
		if err := tx.Get(key, &existing); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return authservice.ErrAccountNotFound
			}
			return err
		}
		if existing.Email != account.Email {
			return fmt.Errorf("account email cannot change: %s", account.ID)
		}
		entity := AccountToEntity(account, key)
		entity.CreatedAt = existing.CreatedAt
		entity.Version = existing.Version + 1
		_, err := tx.Put(key, entity)
		return err
	})
	return err
}

// ============================================================================
// PostStore
// ============================================================================

// PostStore implements authservice.PostStore using Google Cloud Datastore
type PostStore struct {
	client    *datastore.Client
	namespace string
}

// NewPostStore creates a new Datastore-backed PostStore
func NewPostStore(client *datastore.Client, namespace string) *PostStore {
	return &PostStore{client: client, namespace: namespace}
}

func (s *PostStore) postKey(id string) *datastore.Key {
	return namespacedKey(s.namespace, KindPost, id)
}

func (s *PostStore) CreatePost(ctx context.Context, post *authservice.Post) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	key := s.postKey(post.ID)
	_, err := s.client.Put(ctx, key, PostToEntity(post, key))
	return err
}

func (s *PostStore) GetPost(ctx context.Context, id string) (*authservice.Post, error) {
	if id == "" {
		return nil, authservice.ErrPostNotFound
	}
	var entity PostEntity
	if err := s.client.Get(ctx, s.postKey(id), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, authservice.ErrPostNotFound
		}
		return nil, err
	}
	return entity.ToPost(), nil
}

func (s *PostStore) ListPosts(ctx context.Context, offset, limit int) ([]*authservice.Post, error) {
	offset = max(offset, 0)
	query := datastore.NewQuery(KindPost).
		Order("-created_at").
		Offset(offset).
		Limit(limit)
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	posts := []*authservice.Post{}
	it := s.client.Run(ctx, query)
	for {
		var entity PostEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		posts = append(posts, entity.ToPost())
	}
	return posts, nil
}

func (s *PostStore) SavePost(ctx context.Context, post *authservice.Post) error {
	key := s.postKey(post.ID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing PostEntity
		if err := tx.Get(key, &existing); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return authservice.ErrPostNotFound
			}
			return err
		}
		entity := PostToEntity(post, key)
		entity.OwnerID = existing.OwnerID
		entity.CreatedAt = existing.CreatedAt
		_, err := tx.Put(key, entity)
		return err
	})
	return err
}

func (s *PostStore) DeletePost(ctx context.Context, id string) error {
	key := s.postKey(id)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing PostEntity
		if err := tx.Get(key, &existing); err != nil {
			if errors.Is(err, datastore.ErrNoSuchEntity) {
				return authservice.ErrPostNotFound
			}
			return err
		}
		return tx.Delete(key)
	})
	return err
}
