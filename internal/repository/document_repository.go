package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paypro-bridge/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInvalidDocumentPath is returned for empty or single segment paths.
var ErrInvalidDocumentPath = errors.New("invalid document path")

// DocumentStore is a key-value document store with merge-upsert writes.
// Get methods return (nil, nil) when the document does not exist.
type DocumentStore interface {
	Get(ctx context.Context, collection, key string) (models.JSON, error)
	Set(ctx context.Context, collection, key string, partial models.JSON, merge bool) error
	GetPath(ctx context.Context, path string) (models.JSON, error)
	SetPath(ctx context.Context, path string, partial models.JSON, merge bool) error
	FindByField(ctx context.Context, collection, field, value string) (models.JSON, error)
}

// GormDocumentStore stores documents as json rows keyed by path.
type GormDocumentStore struct {
	db *gorm.DB
}

// NewDocumentStore creates a document store.
func NewDocumentStore(db *gorm.DB) *GormDocumentStore {
	return &GormDocumentStore{db: db}
}

// WithTx binds the store to a transaction.
func (r *GormDocumentStore) WithTx(tx *gorm.DB) *GormDocumentStore {
	if tx == nil {
		return r
	}
	return &GormDocumentStore{db: tx}
}

// Get reads collection/key.
func (r *GormDocumentStore) Get(ctx context.Context, collection, key string) (models.JSON, error) {
	return r.GetPath(ctx, JoinPath(collection, key))
}

// Set merge-upserts collection/key.
func (r *GormDocumentStore) Set(ctx context.Context, collection, key string, partial models.JSON, merge bool) error {
	return r.SetPath(ctx, JoinPath(collection, key), partial, merge)
}

// GetPath reads a document by full path.
func (r *GormDocumentStore) GetPath(ctx context.Context, path string) (models.JSON, error) {
	normalized, _, _, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	var doc models.Document
	if err := r.db.WithContext(ctx).Where("path = ?", normalized).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return doc.Data, nil
}

// SetPath writes a document. With merge the patch is deep merged into the stored body,
// otherwise the body is replaced. Missing documents are created.
func (r *GormDocumentStore) SetPath(ctx context.Context, path string, partial models.JSON, merge bool) error {
	normalized, collection, key, err := splitPath(path)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc models.Document
		err := lockedByPath(tx, normalized).First(&doc).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if errors.Is(err, gorm.ErrRecordNotFound) {
			doc = models.Document{
				Path:       normalized,
				Collection: collection,
				DocKey:     key,
				Data:       models.JSON{}.MergeInto(partial),
			}
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&doc)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				return nil
			}
			// lost a create race, fall through to update
			if err := lockedByPath(tx, normalized).First(&doc).Error; err != nil {
				return err
			}
		}
		if merge {
			doc.Data = doc.Data.MergeInto(partial)
		} else {
			doc.Data = models.JSON{}.MergeInto(partial)
		}
		return tx.Model(&models.Document{}).
			Where("path = ?", normalized).
			Updates(map[string]interface{}{"data": doc.Data, "updated_at": time.Now()}).Error
	})
}

func lockedByPath(tx *gorm.DB, path string) *gorm.DB {
	query := tx.Where("path = ?", path)
	if supportsRowLock(tx) {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return query
}

// FindByField returns the first document of a collection whose top level field equals value.
func (r *GormDocumentStore) FindByField(ctx context.Context, collection, field, value string) (models.JSON, error) {
	collection = strings.Trim(strings.TrimSpace(collection), "/")
	if collection == "" || !isSafeFieldName(field) || strings.TrimSpace(value) == "" {
		return nil, nil
	}
	var doc models.Document
	err := r.db.WithContext(ctx).
		Where("collection = ?", collection).
		Where(jsonTextExpr(r.db, "data", field)+" = ?", value).
		Order("created_at asc").
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return doc.Data, nil
}

// JoinPath builds collection/key.
func JoinPath(collection, key string) string {
	return strings.Trim(strings.TrimSpace(collection), "/") + "/" + strings.Trim(strings.TrimSpace(key), "/")
}

func splitPath(path string) (normalized, collection, key string, err error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(path), "/"), "/")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return "", "", "", fmt.Errorf("%w: %q", ErrInvalidDocumentPath, path)
		}
		clean = append(clean, part)
	}
	if len(clean) < 2 {
		return "", "", "", fmt.Errorf("%w: %q", ErrInvalidDocumentPath, path)
	}
	return strings.Join(clean, "/"), strings.Join(clean[:len(clean)-1], "/"), clean[len(clean)-1], nil
}
