package register

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// Store is the persistence surface for document records. The unique index
// on content_digest makes Insert atomic with respect to concurrent inserts
// carrying the same digest.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a database handle. The handle must be opened with
// TranslateError enabled so unique-constraint violations surface as
// gorm.ErrDuplicatedKey.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Insert persists a fully populated candidate record. It returns
// gorm.ErrDuplicatedKey when another record already carries the candidate's
// content digest; in that case nothing is created.
func (s *Store) Insert(ctx context.Context, doc *Document) error {
	return s.db.WithContext(ctx).Create(doc).Error
}

// Get retrieves a document by id.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	var doc Document
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&doc).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByCategory returns every document in the category in submission order.
func (s *Store) ListByCategory(ctx context.Context, category Category) ([]Document, error) {
	var docs []Document
	err := s.db.WithContext(ctx).
		Where("category = ?", category).
		Order("submitted_at, id").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// ListPendingByCategory returns the category's documents still awaiting
// quorum, in submission order.
func (s *Store) ListPendingByCategory(ctx context.Context, category Category) ([]Document, error) {
	var docs []Document
	err := s.db.WithContext(ctx).
		Where("category = ? AND status = ?", category, StatusPending).
		Order("submitted_at, id").
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// DigestExists reports whether any record carries the digest. Read-only.
func (s *Store) DigestExists(ctx context.Context, contentDigest string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("content_digest = ?", contentDigest).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpdateApproval replaces the two mutable columns of a record in one
// statement. It is reserved for the approval engine.
func (s *Store) UpdateApproval(ctx context.Context, id string, approversJSON string, status Status) error {
	result := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"approvers": approversJSON,
			"status":    status,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("register: update approval of %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// Transaction runs f against a store bound to a database transaction.
func (s *Store) Transaction(ctx context.Context, f func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return f(&Store{db: tx})
	})
}

// IsNotFound reports whether err denotes an absent record.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
