package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-desk/backend/internal/docstore"
	"order-desk/backend/internal/identity/domain"
)

// DocstoreRepository stores credentials in the credentials collection keyed by normalized email.
type DocstoreRepository struct {
	store docstore.Store
}

// NewDocstoreRepository returns a credential repository over store.
func NewDocstoreRepository(store docstore.Store) *DocstoreRepository {
	return &DocstoreRepository{store: store}
}

// Create inserts the credential; the email key makes registration race-free.
func (r *DocstoreRepository) Create(ctx context.Context, c *domain.Credential) error {
	fields, err := docstore.FieldsOf(c)
	if err != nil {
		return err
	}
	if err := r.store.Create(ctx, docstore.CollectionCredentials, c.Email, fields); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return ErrCredentialExists
		}
		return err
	}
	return nil
}

// GetByEmail returns the credential, or nil if not found.
// It returns an error only for store failures, not for missing documents.
func (r *DocstoreRepository) GetByEmail(ctx context.Context, email string) (*domain.Credential, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionCredentials, email)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var c domain.Credential
	if err := doc.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return &c, nil
}

// GetByResetTokenHash queries by reset_token_hash.
func (r *DocstoreRepository) GetByResetTokenHash(ctx context.Context, hash string) (*domain.Credential, error) {
	return r.findOne(ctx, "reset_token_hash", hash)
}

// GetByVerifyTokenHash queries by verify_token_hash.
func (r *DocstoreRepository) GetByVerifyTokenHash(ctx context.Context, hash string) (*domain.Credential, error) {
	return r.findOne(ctx, "verify_token_hash", hash)
}

func (r *DocstoreRepository) findOne(ctx context.Context, field, value string) (*domain.Credential, error) {
	if value == "" {
		return nil, nil
	}
	docs, err := r.store.Query(ctx, docstore.CollectionCredentials, docstore.Eq(field, value))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	var c domain.Credential
	if err := docs[0].Decode(&c); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return &c, nil
}

// SetResetToken stores the reset token hash and expiry. A newer token replaces an older one.
func (r *DocstoreRepository) SetResetToken(ctx context.Context, email, hash string, expiresAt time.Time) error {
	return r.mapMissing(r.store.PutIf(ctx, docstore.CollectionCredentials, email,
		docstore.Fields{"email": email},
		docstore.Fields{"reset_token_hash": hash, "reset_expires_at": expiresAt.UTC()}))
}

// SetVerifyToken stores the verification token hash.
func (r *DocstoreRepository) SetVerifyToken(ctx context.Context, email, hash string) error {
	return r.mapMissing(r.store.PutIf(ctx, docstore.CollectionCredentials, email,
		docstore.Fields{"email": email},
		docstore.Fields{"verify_token_hash": hash}))
}

// UpdatePassword consumes the reset token: the write is conditional on the token hash, so a token works once.
func (r *DocstoreRepository) UpdatePassword(ctx context.Context, email, resetHash, passwordHash string, at time.Time) error {
	return r.mapTokenWrite(r.store.PutIf(ctx, docstore.CollectionCredentials, email,
		docstore.Fields{"reset_token_hash": resetHash},
		docstore.Fields{"password_hash": passwordHash, "password_changed_at": at.UTC(), "reset_token_hash": "", "reset_expires_at": nil}))
}

// MarkEmailVerified consumes the verification token.
func (r *DocstoreRepository) MarkEmailVerified(ctx context.Context, email, verifyHash string) error {
	return r.mapTokenWrite(r.store.PutIf(ctx, docstore.CollectionCredentials, email,
		docstore.Fields{"verify_token_hash": verifyHash},
		docstore.Fields{"email_verified": true, "verify_token_hash": ""}))
}

func (r *DocstoreRepository) mapMissing(err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrCredentialNotFound
	}
	return err
}

func (r *DocstoreRepository) mapTokenWrite(err error) error {
	if errors.Is(err, docstore.ErrConditionFailed) {
		return ErrTokenConsumed
	}
	return r.mapMissing(err)
}
