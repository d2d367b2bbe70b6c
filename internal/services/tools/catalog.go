package tools

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/propcrm/realty-agent/internal/database"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/availability"
	"github.com/propcrm/realty-agent/internal/services/calendarsync"
	"github.com/propcrm/realty-agent/internal/services/semantic"
)

// ListingSearcher is the semantic search used by search_listings
type ListingSearcher interface {
	SearchProperties(ctx context.Context, tenantID int64, query string, f semantic.Filters, limit int) ([]semantic.PropertyHit, error)
}

// SlotFinder computes free visit slots
type SlotFinder interface {
	Available(ctx context.Context, q availability.Query) ([]availability.Slot, error)
	Location() *time.Location
}

// PropertyGetter loads one tenant property
type PropertyGetter interface {
	GetByID(ctx context.Context, tenantID, id int64) (*models.Property, error)
}

// ContactStore resolves and updates the conversation's contact
type ContactStore interface {
	GetByID(ctx context.Context, tenantID, id int64) (*models.Contact, error)
	FindByPhoneSuffix(ctx context.Context, tenantID int64, phone string) (*models.Contact, error)
	UpdateProfile(ctx context.Context, c *models.Contact) error
}

// EventStore books visits
type EventStore interface {
	CreateWithCapacity(ctx context.Context, e *models.CalendarEvent, capacity int) error
	SetExternalID(ctx context.Context, tenantID, id int64, externalID string) error
}

// DealStore opens deals for booked visits
type DealStore interface {
	InitialStage(ctx context.Context, tenantID int64) (*models.PipelineStage, error)
	Create(ctx context.Context, d *models.Deal) error
}

// ActivityLogger writes the audit trail
type ActivityLogger interface {
	Log(ctx context.Context, entry *models.ActivityLog) error
}

// EmbedQueue schedules an asynchronous re-embed of a contact's preferences
type EmbedQueue interface {
	EnqueueContactEmbedding(ctx context.Context, tenantID, contactID int64) error
}

// Deps are the collaborators the catalog runs against
type Deps struct {
	Search       ListingSearcher
	Availability SlotFinder
	Properties   PropertyGetter
	Contacts     ContactStore
	Events       EventStore
	Deals        DealStore
	Activity     ActivityLogger
	Calendar     calendarsync.Synchronizer
	Embeds       EmbedQueue
}

// Options tunes the registry
type Options struct {
	Timeout time.Duration
	Now     func() time.Time
}

type toolset struct {
	Deps
	now    func() time.Time
	logger *zap.Logger
}

// NewRegistry builds the full catalog
func NewRegistry(deps Deps, opts Options, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ts := &toolset{Deps: deps, now: opts.Now, logger: logger}

	r := &Registry{
		tools:   make(map[Name]Tool),
		timeout: opts.Timeout,
		logger:  logger,
	}
	for _, t := range []Tool{
		ts.searchListings(),
		ts.getAvailability(),
		ts.getRequisites(),
		ts.updateLeadProfile(),
		ts.scheduleVisit(),
	} {
		r.tools[Name(t.Definition().Name)] = t
	}
	return r
}

func (ts *toolset) location() *time.Location {
	if ts.Availability != nil {
		if loc := ts.Availability.Location(); loc != nil {
			return loc
		}
	}
	return time.UTC
}

// contact resolves the conversation's contact the same way the webhook does:
// by the ID it already resolved, else by the trailing digits of the phone.
func (ts *toolset) contact(ctx context.Context, sess Session) (*models.Contact, error) {
	if sess.ContactID != 0 {
		c, err := ts.Contacts.GetByID(ctx, sess.TenantID, sess.ContactID)
		if !errors.Is(err, database.ErrNotFound) {
			return c, err
		}
	}
	if sess.Phone == "" {
		return nil, database.ErrNotFound
	}
	return ts.Contacts.FindByPhoneSuffix(ctx, sess.TenantID, sess.Phone)
}
