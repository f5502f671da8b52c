package alerts

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"
)

// Store wraps alert-rule persistence.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Save creates or updates a rule. When the rule is active, every other rule
// is deactivated in the same transaction, so at most one rule is active at
// any time regardless of call ordering.
func (s *Store) Save(ctx context.Context, m *Metadata) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if m.Active {
			if err := tx.Model(&Metadata{}).Where("id <> ?", m.ID).
				Update("active", false).Error; err != nil {
				return fmt.Errorf("deactivate other rules: %w", err)
			}
		}
		if err := tx.Save(m).Error; err != nil {
			return fmt.Errorf("save rule: %w", err)
		}
		log.Printf("[alerts] saved rule id=%s field=%s active=%v", m.ID, m.Field, m.Active)
		return nil
	})
}

// ActiveMetadata returns the single active rule, or nil when none is active.
func (s *Store) ActiveMetadata(ctx context.Context) (*Metadata, error) {
	var m Metadata
	err := s.db.WithContext(ctx).Where("active").Order("updated_at DESC").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// List returns every rule.
func (s *Store) List(ctx context.Context) ([]Metadata, error) {
	var out []Metadata
	err := s.db.WithContext(ctx).Order("created_at, id").Find(&out).Error
	return out, err
}

// ByID fetches one rule.
func (s *Store) ByID(ctx context.Context, id string) (*Metadata, error) {
	var m Metadata
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// Delete removes one rule.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Delete(&Metadata{}, "id = ?", id).Error
}

// RestrictedFields lists the field names gated behind authentication, across
// every rule, active or not. The query engine strips these unconditionally
// for unauthenticated callers.
func (s *Store) RestrictedFields(ctx context.Context) ([]string, error) {
	var fields []string
	err := s.db.WithContext(ctx).Model(&Metadata{}).
		Where("auth_required").Distinct().Pluck("field", &fields).Error
	return fields, err
}
