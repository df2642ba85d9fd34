package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	authservice "github.com/Matidza/Auth-Service"
)

const accountsCollectionName = "accounts"

type codeDocument struct {
	Digest   string     `bson:"digest,omitempty"`
	IssuedAt *time.Time `bson:"issued_at,omitempty"`
}

type accountDocument struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	Email              string             `bson:"email"`
	PasswordHash       string             `bson:"password_hash"`
	Provider           string             `bson:"provider"`
	ExternalID         string             `bson:"external_id,omitempty"`
	DisplayName        string             `bson:"display_name,omitempty"`
	Role               string             `bson:"role"`
	Verified           bool               `bson:"verified"`
	VerificationCode   codeDocument       `bson:"verification_code"`
	ForgotPasswordCode codeDocument       `bson:"forgot_password_code"`
	CreatedAt          time.Time          `bson:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at"`
}

func toCodeDocument(c authservice.CodeState) codeDocument {
	if !c.Issued() {
		return codeDocument{}
	}
	t := c.IssuedAt.UTC()
	return codeDocument{Digest: c.Digest, IssuedAt: &t}
}

func (c codeDocument) toState() authservice.CodeState {
	if c.Digest == "" || c.IssuedAt == nil {
		return authservice.CodeState{}
	}
	return authservice.CodeState{Digest: c.Digest, IssuedAt: *c.IssuedAt}
}

func toAccountDocument(a *authservice.Account) (*accountDocument, error) {
	doc := &accountDocument{
		Email:              a.Email,
		PasswordHash:       a.PasswordHash,
		Provider:           string(a.Provider),
		ExternalID:         a.ExternalID,
		DisplayName:        a.DisplayName,
		Role:               string(a.Role),
		Verified:           a.Verified,
		VerificationCode:   toCodeDocument(a.VerificationCode),
		ForgotPasswordCode: toCodeDocument(a.ForgotPasswordCode),
		CreatedAt:          a.CreatedAt.UTC(),
		UpdatedAt:          a.UpdatedAt.UTC(),
	}
	if a.ID != "" {
		id, err := primitive.ObjectIDFromHex(a.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid account ID format: %w", err)
		}
		doc.ID = id
	}
	return doc, nil
}

func (d *accountDocument) toAccount() *authservice.Account {
	return &authservice.Account{
		ID:                 d.ID.Hex(),
		Email:              d.Email,
		PasswordHash:       d.PasswordHash,
		Provider:           authservice.Provider(d.Provider),
		ExternalID:         d.ExternalID,
		DisplayName:        d.DisplayName,
		Role:               authservice.Role(d.Role),
		Verified:           d.Verified,
		VerificationCode:   d.VerificationCode.toState(),
		ForgotPasswordCode: d.ForgotPasswordCode.toState(),
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

// AccountStore implements authservice.AccountStore on a MongoDB collection
// with a unique index on email.
type AccountStore struct {
	coll   *mongo.Collection
	logger *zap.Logger
}

// NewAccountStore ensures the email index exists and returns the store.
func NewAccountStore(ctx context.Context, db *mongo.Database, logger *zap.Logger) (*AccountStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	coll := db.Collection(accountsCollectionName)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create email index: %w", err)
	}
	return &AccountStore{coll: coll, logger: logger.Named("AccountStore")}, nil
}

func (s *AccountStore) CreateAccount(ctx context.Context, account *authservice.Account) error {
	account.Email = authservice.NormalizeEmail(account.Email)
	doc, err := toAccountDocument(account)
	if err != nil {
		return err
	}
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return authservice.ErrDuplicateEmail
		}
		s.logger.Error("failed to insert account", zap.Error(err))
		return fmt.Errorf("failed to create account in mongo: %w", err)
	}
	account.ID = doc.ID.Hex()
	return nil
}

func (s *AccountStore) GetAccountByID(ctx context.Context, id string) (*authservice.Account, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, authservice.ErrAccountNotFound
	}
	return s.findOne(ctx, bson.M{"_id": objID})
}

func (s *AccountStore) GetAccountByEmail(ctx context.Context, email string) (*authservice.Account, error) {
	return s.findOne(ctx, bson.M{"email": authservice.NormalizeEmail(email)})
}

func (s *AccountStore) findOne(ctx context.Context, filter bson.M) (*authservice.Account, error) {
	var doc accountDocument
	if err := s.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, authservice.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return doc.toAccount(), nil
}

func (s *AccountStore) SaveAccount(ctx context.Context, account *authservice.Account) error {
	doc, err := toAccountDocument(account)
	if err != nil {
		return err
	}
	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return authservice.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to save account: %w", err)
	}
	if res.MatchedCount == 0 {
		return authservice.ErrAccountNotFound
	}
	return nil
}
