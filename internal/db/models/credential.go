package models

import "time"

// Providers a credential can belong to. Google credentials serve the Cloud
// Code upstreams (antigravity, geminicli); codex credentials are
// ChatGPT-issued and serve only the Codex backend.
const (
	ProviderGoogle = "google"
	ProviderCodex  = "codex"
)

// Credential stores one OAuth identity for an upstream vendor. Provider
// discriminates the issuing identity provider; a Google access token is
// useless against chatgpt.com and vice versa, so pools only ever load rows
// of their own provider. ProjectID is the vendor-side unique key (Cloud
// project for Google, ChatGPT account id for codex); (provider, project_id)
// is the upsert key. ID is the stable identity used by the pool actor.
type Credential struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Email        string
	Provider     string `gorm:"uniqueIndex:idx_provider_project;default:'google'"`
	ProjectID    string `gorm:"uniqueIndex:idx_provider_project"`
	RefreshToken string
	AccessToken  string
	Expiry       time.Time
	Status       bool `gorm:"default:true"` // false = administratively disabled
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
