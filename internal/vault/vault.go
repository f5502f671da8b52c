// Package vault stores user locations encrypted at rest. It is the only
// component allowed to hold plaintext coordinates, and only inside a
// request's processing scope — nothing leaves this package unencrypted
// except the owning user's own reads.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/TerraCast/TC-Backend/internal/db"
)

var ErrLocationNotFound = errors.New("location not found")

// Location is the persisted, encrypted form of one user location. Only the
// owner id and timestamps are cleartext; label and coordinates live in the
// ciphertext.
type Location struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	UserID     string `gorm:"index"`
	Nonce      []byte
	Ciphertext []byte
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Location) TableName() string {
	return "vault.locations"
}

// PlainLocation is the request-scoped decrypted form.
type PlainLocation struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Lon   float64 `json:"lon"`
	Lat   float64 `json:"lat"`
}

// Init ensures the vault schema and table exist.
func Init(d *gorm.DB) error {
	if err := db.EnsureSchema(d, "vault"); err != nil {
		return err
	}
	return d.AutoMigrate(&Location{})
}

// Vault is the encrypted location store.
type Vault struct {
	db      *gorm.DB
	keyring Keyring
}

func New(db *gorm.DB, keyring Keyring) *Vault {
	return &Vault{db: db, keyring: keyring}
}

// Store encrypts and persists a location for a user. A location with an
// existing id is re-encrypted in place (with a fresh nonce); ownership is
// checked before any update.
func (v *Vault) Store(ctx context.Context, userID string, loc PlainLocation) (*PlainLocation, error) {
	if loc.ID == "" {
		loc.ID = uuid.NewString()
	}
	plaintext, err := json.Marshal(loc)
	if err != nil {
		return nil, fmt.Errorf("encode location: %w", err)
	}
	ciphertext, nonce, err := v.keyring.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypt location: %w", err)
	}

	row := Location{ID: loc.ID, UserID: userID, Nonce: nonce, Ciphertext: ciphertext}
	err = v.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing Location
		findErr := tx.First(&existing, "id = ?", loc.ID).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			return tx.Create(&row).Error
		case findErr != nil:
			return findErr
		case existing.UserID != userID:
			return ErrLocationNotFound
		default:
			return tx.Model(&existing).Updates(map[string]interface{}{
				"nonce": nonce, "ciphertext": ciphertext,
			}).Error
		}
	})
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// List decrypts every location owned by a user.
func (v *Vault) List(ctx context.Context, userID string) ([]PlainLocation, error) {
	var rows []Location
	err := v.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_at, id").Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]PlainLocation, 0, len(rows))
	for _, row := range rows {
		plaintext, err := v.keyring.Decrypt(row.Ciphertext, row.Nonce)
		if err != nil {
			return nil, fmt.Errorf("location %s: %w", row.ID, err)
		}
		var loc PlainLocation
		if err := json.Unmarshal(plaintext, &loc); err != nil {
			return nil, fmt.Errorf("decode location %s: %w", row.ID, err)
		}
		out = append(out, loc)
	}
	return out, nil
}

// Remove deletes one location, scoped to its owner.
func (v *Vault) Remove(ctx context.Context, userID, locationID string) error {
	res := v.db.WithContext(ctx).Delete(&Location{}, "id = ? AND user_id = ?", locationID, userID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLocationNotFound
	}
	return nil
}
