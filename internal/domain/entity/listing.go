package entity

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

type ListingStatus string

const (
	StatusActive      ListingStatus = "active"
	StatusExpired     ListingStatus = "expired"
	StatusSold        ListingStatus = "sold"
	StatusSoldExpired ListingStatus = "sold_expired"
	StatusDeleted     ListingStatus = "deleted"
)

// Trigger identifies the event driving a listing status transition.
type Trigger string

const (
	TriggerMarkSold      Trigger = "mark_sold"
	TriggerOfferAccepted Trigger = "offer_accepted"
	TriggerExpire        Trigger = "expire"
	TriggerRenew         Trigger = "renew"
	TriggerPurge         Trigger = "purge"
	TriggerDelete        Trigger = "delete"
)

type MeetupPreference string

const (
	MeetupPublic  MeetupPreference = "public"
	MeetupCollect MeetupPreference = "collect"
	MeetupDeliver MeetupPreference = "deliver"
)

const (
	// ActiveLifetime is how long a listing stays active before it expires.
	ActiveLifetime = 30 * 24 * time.Hour
	// PurgeLifetime is how long a listing exists at all before the sweep
	// removes it.
	PurgeLifetime = 60 * 24 * time.Hour

	MaxImages      = 10
	MaxImageURLLen = 2048
	MaxTitleLen    = 120
)

type Listing struct {
	ID          string           `bson:"_id,omitempty" json:"id"`
	AuthorID    string           `bson:"author_id" json:"authorId"`
	Title       string           `bson:"title" json:"title"`
	Brand       string           `bson:"brand,omitempty" json:"brand,omitempty"`
	Model       string           `bson:"model,omitempty" json:"model,omitempty"`
	Category    string           `bson:"category" json:"category"`
	SubCategory string           `bson:"sub_category,omitempty" json:"subCategory,omitempty"`
	Condition   string           `bson:"condition,omitempty" json:"condition,omitempty"`
	Description string           `bson:"description" json:"description"`
	Price       int64            `bson:"price" json:"price"`
	Images      []string         `bson:"images,omitempty" json:"images,omitempty"`
	Location    string           `bson:"location" json:"location"`
	Meetup      MeetupPreference `bson:"meetup" json:"meetup"`

	Status         ListingStatus `bson:"status" json:"status"`
	CreatedAt      time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `bson:"updated_at" json:"updatedAt"`
	ExpirationDate time.Time     `bson:"expiration_date" json:"expirationDate"`
	PurgeDate      time.Time     `bson:"purge_date" json:"purgeDate"`
	Version        int           `bson:"version" json:"-"`
}

// listingTransitions is the closed transition table. A (status, trigger) pair
// absent from the table is an invalid transition, never a silent no-op.
// Deleted is terminal.
var listingTransitions = map[ListingStatus]map[Trigger]ListingStatus{
	StatusActive: {
		TriggerMarkSold:      StatusSold,
		TriggerOfferAccepted: StatusSold,
		TriggerExpire:        StatusExpired,
		TriggerDelete:        StatusDeleted,
		TriggerPurge:         StatusDeleted,
	},
	StatusExpired: {
		TriggerRenew:  StatusActive,
		TriggerDelete: StatusDeleted,
		TriggerPurge:  StatusDeleted,
	},
	StatusSold: {
		TriggerRenew:  StatusActive,
		TriggerExpire: StatusSoldExpired,
		TriggerDelete: StatusDeleted,
		TriggerPurge:  StatusDeleted,
	},
	StatusSoldExpired: {
		TriggerRenew:  StatusActive,
		TriggerDelete: StatusDeleted,
		TriggerPurge:  StatusDeleted,
	},
	StatusDeleted: {},
}

// NextStatus resolves the transition table for (current, trigger).
func (s ListingStatus) NextStatus(trigger Trigger) (ListingStatus, error) {
	edges, ok := listingTransitions[s]
	if !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, s)
	}
	next, ok := edges[trigger]
	if !ok {
		return "", fmt.Errorf("%w: cannot %s a listing in status %q", ErrInvalidTransition, trigger, s)
	}
	return next, nil
}

// NewListing builds an active listing with lifecycle dates computed from now.
func NewListing(authorID string, input CreateListingInput, now time.Time) (*Listing, error) {
	if authorID == "" {
		return nil, fmt.Errorf("%w: author is required", ErrValidationFailed)
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	now = now.UTC()
	return &Listing{
		AuthorID:       authorID,
		Title:          input.Title,
		Brand:          input.Brand,
		Model:          input.Model,
		Category:       input.Category,
		SubCategory:    input.SubCategory,
		Condition:      input.Condition,
		Description:    input.Description,
		Price:          input.Price,
		Images:         input.Images,
		Location:       input.Location,
		Meetup:         input.Meetup,
		Status:         StatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpirationDate: now.Add(ActiveLifetime),
		PurgeDate:      now.Add(PurgeLifetime),
		Version:        1,
	}, nil
}

// ApplyTransition advances the listing along the transition table. A renewal
// resets both lifecycle dates relative to now, not to the original creation
// instant. The Version field is left as loaded; the repository bumps it on
// the conditional write.
func (l *Listing) ApplyTransition(trigger Trigger, now time.Time) error {
	next, err := l.Status.NextStatus(trigger)
	if err != nil {
		return err
	}

	now = now.UTC()
	l.Status = next
	l.UpdatedAt = now
	if trigger == TriggerRenew {
		l.ExpirationDate = now.Add(ActiveLifetime)
		l.PurgeDate = now.Add(PurgeLifetime)
	}
	return nil
}

// IsOwner reports whether actorID owns the listing.
func (l *Listing) IsOwner(actorID string) bool {
	return actorID != "" && actorID == l.AuthorID
}

// AdURL is the canonical marketplace path of the listing.
func (l *Listing) AdURL() string {
	segments := []string{l.Title, l.Brand, l.Model, l.SubCategory, l.Location, l.ID}
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return "/" + strings.Join(escaped, "/")
}

type CreateListingInput struct {
	Title       string           `json:"title"`
	Brand       string           `json:"brand"`
	Model       string           `json:"model"`
	Category    string           `json:"category"`
	SubCategory string           `json:"subCategory"`
	Condition   string           `json:"condition"`
	Description string           `json:"description"`
	Price       int64            `json:"price"`
	Images      []string         `json:"images"`
	Location    string           `json:"location"`
	Meetup      MeetupPreference `json:"meetup"`
}

// Validate checks the creation payload. Brand, model and condition are
// optional; everything else is required. Image bytes are validated upstream,
// only count and URL length are checked here.
func (in CreateListingInput) Validate() error {
	var problems []string
	if strings.TrimSpace(in.Title) == "" {
		problems = append(problems, "title is required")
	}
	if len(in.Title) > MaxTitleLen {
		problems = append(problems, "title is too long")
	}
	if in.Price < 0 {
		problems = append(problems, "price cannot be negative")
	}
	if strings.TrimSpace(in.Category) == "" {
		problems = append(problems, "category is required")
	}
	if strings.TrimSpace(in.Description) == "" {
		problems = append(problems, "description is required")
	}
	if strings.TrimSpace(in.Location) == "" {
		problems = append(problems, "location is required")
	}
	switch in.Meetup {
	case MeetupPublic, MeetupCollect, MeetupDeliver:
	default:
		problems = append(problems, "meetup must be one of public, collect, deliver")
	}
	if len(in.Images) > MaxImages {
		problems = append(problems, fmt.Sprintf("at most %d images are allowed", MaxImages))
	}
	for _, img := range in.Images {
		if img == "" || len(img) > MaxImageURLLen {
			problems = append(problems, "image URL is empty or too long")
			break
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidationFailed, strings.Join(problems, "; "))
	}
	return nil
}

// ParseListingStatus validates a status string from the outside.
func ParseListingStatus(s string) (ListingStatus, error) {
	switch ListingStatus(s) {
	case StatusActive, StatusExpired, StatusSold, StatusSoldExpired, StatusDeleted:
		return ListingStatus(s), nil
	}
	return "", errors.New("unknown listing status: " + s)
}
