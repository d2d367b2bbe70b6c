package database

import (
	"context"
	"time"

	"github.com/propcrm/realty-agent/internal/models"
)

// PropertyRepositoryInterface defines the property operations used by services
type PropertyRepositoryInterface interface {
	GetByID(ctx context.Context, tenantID, id int64) (*models.Property, error)
	Search(ctx context.Context, f ListingFilter) ([]*models.Property, error)
	RankBySimilarity(ctx context.Context, f ListingFilter, vec models.Vector) ([]Ranked[*models.Property], error)
	ListMissingEmbedding(ctx context.Context, limit int) ([]RecordRef, error)
	UpdateEmbedding(ctx context.Context, p *models.Property, content string, vec models.Vector) error
}

// DevelopmentRepositoryInterface defines the development operations used by services
type DevelopmentRepositoryInterface interface {
	GetByID(ctx context.Context, tenantID, id int64) (*models.Development, error)
	RankBySimilarity(ctx context.Context, tenantID int64, vec models.Vector, limit int) ([]Ranked[*models.Development], error)
	ListMissingEmbedding(ctx context.Context, limit int) ([]RecordRef, error)
	UpdateEmbedding(ctx context.Context, d *models.Development, content string, vec models.Vector) error
}

// ContactRepositoryInterface defines the contact operations used by services
type ContactRepositoryInterface interface {
	GetByID(ctx context.Context, tenantID, id int64) (*models.Contact, error)
	FindByPhoneSuffix(ctx context.Context, tenantID int64, phone string) (*models.Contact, error)
	Create(ctx context.Context, c *models.Contact) error
	UpdateProfile(ctx context.Context, c *models.Contact) error
	TouchLastContact(ctx context.Context, tenantID, id int64, at time.Time) error
	UpdateAlias(ctx context.Context, tenantID, id int64, alias string) error
	UpdateEmbedding(ctx context.Context, c *models.Contact, vec models.Vector) error
	ListMissingEmbedding(ctx context.Context, limit int) ([]RecordRef, error)
	RankByPreferences(ctx context.Context, tenantID int64, vec models.Vector, limit int) ([]Ranked[*models.Contact], error)
}

// CalendarEventRepositoryInterface defines the calendar operations used by services
type CalendarEventRepositoryInterface interface {
	ListOverlapping(ctx context.Context, w EventWindow) ([]*models.CalendarEvent, error)
	CreateWithCapacity(ctx context.Context, e *models.CalendarEvent, capacity int) error
	SetExternalID(ctx context.Context, tenantID, id int64, externalID string) error
}

// DealRepositoryInterface defines the deal operations used by services
type DealRepositoryInterface interface {
	InitialStage(ctx context.Context, tenantID int64) (*models.PipelineStage, error)
	Create(ctx context.Context, d *models.Deal) error
}

// ActivityLogRepositoryInterface defines the audit trail operations
type ActivityLogRepositoryInterface interface {
	Log(ctx context.Context, entry *models.ActivityLog) error
	ExistsSince(ctx context.Context, entry *models.ActivityLog, since time.Time) (bool, error)
}

// CredentialRepositoryInterface defines the calendar credential operations
type CredentialRepositoryInterface interface {
	GetForAgent(ctx context.Context, tenantID, agentID int64) (*models.CalendarCredential, error)
	GetForAgency(ctx context.Context, tenantID int64) (*models.CalendarCredential, error)
	UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiry time.Time) error
	Clear(ctx context.Context, id int64) error
}

// UserRepositoryInterface defines the agent lookups
type UserRepositoryInterface interface {
	GetByID(ctx context.Context, tenantID, id int64) (*models.User, error)
}

// BotRepositoryInterface defines the bot operations used by services
type BotRepositoryInterface interface {
	GetByInstance(ctx context.Context, instance string) (*models.Bot, error)
	SetStatus(ctx context.Context, id int64, status models.BotStatus) error
}

// MessageRepositoryInterface defines the conversation store
type MessageRepositoryInterface interface {
	Append(ctx context.Context, msg *models.Message) error
	Recent(ctx context.Context, botInstance, conversationID string, limit int) ([]*models.Message, error)
}

// Ensure concrete types implement the interfaces
var (
	_ PropertyRepositoryInterface      = (*PropertyRepository)(nil)
	_ DevelopmentRepositoryInterface   = (*DevelopmentRepository)(nil)
	_ ContactRepositoryInterface       = (*ContactRepository)(nil)
	_ CalendarEventRepositoryInterface = (*CalendarEventRepository)(nil)
	_ DealRepositoryInterface          = (*DealRepository)(nil)
	_ ActivityLogRepositoryInterface   = (*ActivityLogRepository)(nil)
	_ CredentialRepositoryInterface    = (*CredentialRepository)(nil)
	_ UserRepositoryInterface          = (*UserRepository)(nil)
	_ BotRepositoryInterface           = (*BotRepository)(nil)
	_ MessageRepositoryInterface       = (*MessageRepository)(nil)
)
