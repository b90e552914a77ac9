package artisan

import (
	"errors"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// Status is the artisan account status
type Status string

const (
	// StatusPending artisan signed up and waits for admin approval
	StatusPending Status = "pending"
	// StatusActive artisan can take bookings
	StatusActive Status = "active"
	// StatusBlocked artisan was blocked by an admin
	StatusBlocked Status = "blocked"
)

// IDStatus is the identity verification (KYC) sub status
type IDStatus string

const (
	IDStatusUnverified IDStatus = "unverified"
	IDStatusVerifying  IDStatus = "verifying"
	IDStatusVerified   IDStatus = "verified"
	IDStatusFailed     IDStatus = "failed"
)

// DefaultPhoneRegion is used to parse numbers without a country prefix.
const DefaultPhoneRegion = "NG"

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusBlocked:
		return true
	}
	return false
}

func (s IDStatus) Valid() bool {
	switch s {
	case IDStatusUnverified, IDStatusVerifying, IDStatusVerified, IDStatusFailed:
		return true
	}
	return false
}

// ParseStatus is case insensitive, list views display "Active" etc.
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// Label returns the title cased status used by list views.
func (s Status) Label() string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// KYC holds identity verification details
type KYC struct {
	IDType     string   `bun:"id_type" json:"idType,omitempty"`
	IDImageURL string   `bun:"id_image_url" json:"idImageUrl,omitempty"`
	IDStatus   IDStatus `bun:"id_status,notnull" json:"idStatus"`
}

// Stats summarizes artisan activity on the marketplace
type Stats struct {
	HasActivity       bool `bun:"has_activity,notnull" json:"hasActivity"`
	CompletedBookings int  `bun:"completed_bookings" json:"completedBookings,omitempty"`
	OngoingBookings   int  `bun:"ongoing_bookings" json:"ongoingBookings,omitempty"`
	Rejected          int  `bun:"rejected" json:"rejected,omitempty"`
	Complaints        int  `bun:"complaints" json:"complaints,omitempty"`
	Reviews           int  `bun:"reviews" json:"reviews,omitempty"`
	FlaggedReviews    int  `bun:"flagged_reviews" json:"flaggedReviews,omitempty"`
	Disputes          int  `bun:"disputes" json:"disputes,omitempty"`
}

// Artisan is the service provider model
type Artisan struct {
	bun.BaseModel `bun:"table:artisans,alias:art"`
	ID            string     `bun:"id,pk" json:"id"`
	Name          string     `bun:"name,notnull" json:"name"`
	Email         string     `bun:"email,notnull,unique" json:"email"`
	Phone         string     `bun:"phone_number" json:"phone,omitempty"`
	Category      string     `bun:"category" json:"category,omitempty"`
	Location      string     `bun:"location" json:"location,omitempty"`
	Status        Status     `bun:"status,notnull" json:"status"`
	KYC           KYC        `bun:"embed:kyc_" json:"kyc"`
	Stats         Stats      `bun:"embed:stats_" json:"stats"`
	LastSeenAt    *time.Time `bun:"last_seen_at,nullzero" json:"lastSeen,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"createdAt,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updatedAt,omitempty"`
}

// EnsureDefaults sets the initial lifecycle values on a fresh record.
func (a *Artisan) EnsureDefaults() {
	if a == nil {
		return
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	if a.KYC.IDStatus == "" {
		a.KYC.IDStatus = IDStatusUnverified
	}
}

// Clone returns a copy that shares no pointers with the receiver.
func (a *Artisan) Clone() *Artisan {
	if a == nil {
		return nil
	}
	c := *a
	c.LastSeenAt = cloneTime(a.LastSeenAt)
	c.CreatedAt = cloneTime(a.CreatedAt)
	c.UpdatedAt = cloneTime(a.UpdatedAt)
	return &c
}

func (a *Artisan) IsPending() bool  { return a != nil && a.Status == StatusPending }
func (a *Artisan) IsActive() bool   { return a != nil && a.Status == StatusActive }
func (a *Artisan) IsBlocked() bool  { return a != nil && a.Status == StatusBlocked }
func (a *Artisan) IDVerified() bool { return a != nil && a.KYC.IDStatus == IDStatusVerified }

// CanApprove reports whether Approve would pass its guards.
func (a *Artisan) CanApprove() bool {
	return a.IsPending() && a.IDVerified()
}

// Matches reports whether the artisan matches a free text query, the same
// fields the admin list view searches.
func (a *Artisan) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	for _, field := range []string{a.Name, a.Email, a.Category, a.Location} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return strings.Contains(a.Phone, q)
}

// Validate checks the profile fields of the record.
func (a Artisan) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.ID, validation.Required, validation.Length(1, 64)),
		validation.Field(&a.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&a.Email, validation.Required, is.Email),
		validation.Field(&a.Phone, validation.By(validPhone)),
		validation.Field(&a.Status, validation.By(func(v any) error {
			if s, _ := v.(Status); s != "" && !s.Valid() {
				return errors.New("unknown status")
			}
			return nil
		})),
	)
}

func validPhone(v any) error {
	phone, _ := v.(string)
	if phone == "" {
		return nil
	}
	num, err := phonenumbers.Parse(phone, DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return errors.New("must be a valid phone number")
	}
	return nil
}

// NormalizePhone formats a phone number as E164, returning the input when it
// cannot be parsed.
func NormalizePhone(phone string) string {
	num, err := phonenumbers.Parse(phone, DefaultPhoneRegion)
	if err != nil {
		return phone
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
