// Package db persists credentials in SQLite.
package db

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/Yoo1tic/gcli-nexus/internal/db/models"
)

// InitDB opens the SQLite database and runs migrations.
func InitDB(dbPath string) (*gorm.DB, error) {
	gdb, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	if err := gdb.AutoMigrate(&models.Credential{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return gdb, nil
}

// CredentialStore wraps credential table access.
type CredentialStore struct {
	db *gorm.DB
}

// NewCredentialStore creates a store over an initialized database.
func NewCredentialStore(gdb *gorm.DB) *CredentialStore {
	return &CredentialStore{db: gdb}
}

// Upsert inserts a credential or, on a (provider, project_id) conflict,
// updates every mutable column. Returns the row id.
func (s *CredentialStore) Upsert(cred *models.Credential) (int64, error) {
	if cred.Provider == "" {
		cred.Provider = models.ProviderGoogle
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "provider"}, {Name: "project_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email", "refresh_token", "access_token", "expiry", "status", "updated_at",
		}),
	}).Create(cred).Error
	if err != nil {
		return 0, fmt.Errorf("upsert credential %s/%s: %w", cred.Provider, cred.ProjectID, err)
	}

	if cred.ID == 0 {
		// Conflict path: gorm does not backfill the id, fetch it.
		var existing models.Credential
		if err := s.db.Where("provider = ? AND project_id = ?", cred.Provider, cred.ProjectID).
			First(&existing).Error; err != nil {
			return 0, fmt.Errorf("lookup upserted credential %s/%s: %w", cred.Provider, cred.ProjectID, err)
		}
		cred.ID = existing.ID
	}
	return cred.ID, nil
}

// ListActiveByProvider returns a provider's status=true rows ordered by id.
// Pools load only rows of their own provider: a Google token cannot serve
// the Codex backend, nor the reverse.
func (s *CredentialStore) ListActiveByProvider(provider string) ([]models.Credential, error) {
	var creds []models.Credential
	if err := s.db.Where("provider = ? AND status = ?", provider, true).
		Order("id").Find(&creds).Error; err != nil {
		return nil, fmt.Errorf("list active %s credentials: %w", provider, err)
	}
	return creds, nil
}

// GetByID fetches one credential.
func (s *CredentialStore) GetByID(id int64) (*models.Credential, error) {
	var cred models.Credential
	if err := s.db.First(&cred, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("credential %d: %w", id, err)
	}
	return &cred, nil
}

// UpdateTokens persists a refreshed access token (and a rotated refresh
// token when the endpoint returned one).
func (s *CredentialStore) UpdateTokens(id int64, accessToken, refreshToken string, expiry time.Time) error {
	updates := map[string]any{
		"access_token": accessToken,
		"expiry":       expiry,
	}
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	if err := s.db.Model(&models.Credential{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("update tokens for credential %d: %w", id, err)
	}
	return nil
}

// SetStatus flips the administrative status flag.
func (s *CredentialStore) SetStatus(id int64, status bool) error {
	if err := s.db.Model(&models.Credential{}).Where("id = ?", id).Update("status", status).Error; err != nil {
		return fmt.Errorf("set status for credential %d: %w", id, err)
	}
	if !status {
		log.Warnf("credential %d disabled", id)
	}
	return nil
}

// Delete removes a credential row.
func (s *CredentialStore) Delete(id int64) error {
	if err := s.db.Delete(&models.Credential{}, id).Error; err != nil {
		return fmt.Errorf("delete credential %d: %w", id, err)
	}
	return nil
}
