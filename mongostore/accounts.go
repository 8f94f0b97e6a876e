package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lumenlms/authcore"
)

const accountsCollection = "accounts"

// AccountStore implements [authcore.AccountStore] on a MongoDB collection.
// Emails are unique via an index; all mutations are field-level $set updates.
type AccountStore struct {
	col *mongo.Collection
}

// NewAccountStore returns a store on db's accounts collection.
func NewAccountStore(db *mongo.Database) *AccountStore {
	return &AccountStore{col: db.Collection(accountsCollection)}
}

// EnsureIndexes creates the unique email index. Call once at startup;
// the operation is idempotent.
func (s *AccountStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_email"),
	})
	if err != nil {
		return fmt.Errorf("mongostore: create email index: %w", err)
	}
	return nil
}

// FindByEmail returns the account with the given email, or
// [authcore.ErrAccountNotFound].
func (s *AccountStore) FindByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

// FindByID returns the account with the given id, or
// [authcore.ErrAccountNotFound].
func (s *AccountStore) FindByID(ctx context.Context, id string) (*authcore.Account, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *AccountStore) findOne(ctx context.Context, filter bson.M) (*authcore.Account, error) {
	var account authcore.Account
	err := s.col.FindOne(ctx, filter).Decode(&account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, authcore.ErrAccountNotFound
		}
		return nil, fmt.Errorf("mongostore: find account: %w", err)
	}
	return &account, nil
}

// Create inserts a new account. Returns [authcore.ErrEmailExists] when the
// unique email index rejects the write.
func (s *AccountStore) Create(ctx context.Context, account *authcore.Account) error {
	_, err := s.col.InsertOne(ctx, account)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return authcore.ErrEmailExists
		}
		return fmt.Errorf("mongostore: insert account: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the credential digest and records when the
// password changed.
func (s *AccountStore) UpdatePasswordHash(ctx context.Context, id, hash string, changedAt time.Time) error {
	return s.setFields(ctx, id, bson.M{
		"password_hash":       hash,
		"password_changed_at": changedAt,
	})
}

// SetEmailVerified flips the email confirmation flag.
func (s *AccountStore) SetEmailVerified(ctx context.Context, id string, verified bool) error {
	return s.setFields(ctx, id, bson.M{"email_verified": verified})
}

// SetTwoFactor flips the two-factor enrollment flag.
func (s *AccountStore) SetTwoFactor(ctx context.Context, id string, enabled bool) error {
	return s.setFields(ctx, id, bson.M{"two_factor_enabled": enabled})
}

func (s *AccountStore) setFields(ctx context.Context, id string, fields bson.M) error {
	res, err := s.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("mongostore: update account: %w", err)
	}
	if res.MatchedCount == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}
