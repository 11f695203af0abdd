package model

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/hay-kot/criterio"
)

type LeadStatus string

const (
	LeadStatusNew         LeadStatus = "new"
	LeadStatusContacted   LeadStatus = "contacted"
	LeadStatusQualified   LeadStatus = "qualified"
	LeadStatusUnqualified LeadStatus = "unqualified"
	LeadStatusConverted   LeadStatus = "converted"
)

var LeadStatuses = []LeadStatus{
	LeadStatusNew,
	LeadStatusContacted,
	LeadStatusQualified,
	LeadStatusUnqualified,
	LeadStatusConverted,
}

func (s LeadStatus) Valid() bool {
	return slices.Contains(LeadStatuses, s)
}

const (
	ScoreBucketHot  = "hot"
	ScoreBucketWarm = "warm"
	ScoreBucketCold = "cold"
)

type Lead struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone,omitempty"`
	Company   string     `json:"company,omitempty"`
	Source    string     `json:"source,omitempty"`
	Status    LeadStatus `json:"status"`
	Score     int        `json:"score"`
	Tags      []string   `json:"tags"`
	OwnerID   string     `json:"owner_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (l Lead) RecordID() string { return l.ID }

func (l Lead) DisplayName() string {
	name := strings.TrimSpace(l.FirstName + " " + l.LastName)
	switch {
	case name != "":
		return name
	case l.Company != "":
		return l.Company
	default:
		return l.Email
	}
}

func (l Lead) Clone() Lead {
	if l.Tags != nil {
		l.Tags = slices.Clone(l.Tags)
	}
	return l
}

// ScoreBucket groups the score for list badges: hot from 70, warm from 40.
func (l Lead) ScoreBucket() string {
	switch {
	case l.Score >= 70:
		return ScoreBucketHot
	case l.Score >= 40:
		return ScoreBucketWarm
	default:
		return ScoreBucketCold
	}
}

// Matches reports whether q appears in the name, email or company.
func (l Lead) Matches(q string) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return true
	}
	for _, field := range []string{l.FirstName + " " + l.LastName, l.Email, l.Company} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

func (l Lead) MarshalJSON() ([]byte, error) {
	type alias Lead
	return json.Marshal(struct {
		alias
		ScoreBucket string `json:"score_bucket"`
	}{alias: alias(l), ScoreBucket: l.ScoreBucket()})
}

type LeadQuery struct {
	Status  LeadStatus
	Q       string
	Refresh bool
}

type CreateLeadRequest struct {
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	Company   string     `json:"company"`
	Source    string     `json:"source"`
	Status    LeadStatus `json:"status"`
	Score     int        `json:"score"`
	Tags      []string   `json:"tags"`
	OwnerID   string     `json:"owner_id"`
}

func (r CreateLeadRequest) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if strings.TrimSpace(r.FirstName) == "" && strings.TrimSpace(r.LastName) == "" && strings.TrimSpace(r.Company) == "" {
		errs = errs.Append("first_name", fmt.Errorf("a name or company is required"))
	}
	if err := validEmail(r.Email); err != nil {
		errs = errs.Append("email", err)
	}
	if r.Status != "" && !r.Status.Valid() {
		errs = errs.Append("status", fmt.Errorf("unknown status %q", r.Status))
	}
	if err := validScore(r.Score); err != nil {
		errs = errs.Append("score", err)
	}
	if len(r.Tags) > MaxTags {
		errs = errs.Append("tags", fmt.Errorf("at most %d tags allowed", MaxTags))
	}

	return errs.ToError()
}

// UpdateLeadRequest is a partial update; nil fields are left untouched.
type UpdateLeadRequest struct {
	FirstName *string     `json:"first_name"`
	LastName  *string     `json:"last_name"`
	Email     *string     `json:"email"`
	Phone     *string     `json:"phone"`
	Company   *string     `json:"company"`
	Source    *string     `json:"source"`
	Status    *LeadStatus `json:"status"`
	Score     *int        `json:"score"`
	Tags      *[]string   `json:"tags"`
	OwnerID   *string     `json:"owner_id"`
}

func (r UpdateLeadRequest) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if r.Email != nil {
		if err := validEmail(*r.Email); err != nil {
			errs = errs.Append("email", err)
		}
	}
	if r.Status != nil && !r.Status.Valid() {
		errs = errs.Append("status", fmt.Errorf("unknown status %q", *r.Status))
	}
	if r.Score != nil {
		if err := validScore(*r.Score); err != nil {
			errs = errs.Append("score", err)
		}
	}
	if r.Tags != nil && len(*r.Tags) > MaxTags {
		errs = errs.Append("tags", fmt.Errorf("at most %d tags allowed", MaxTags))
	}

	return errs.ToError()
}

// Apply copies the set fields onto lead.
func (r UpdateLeadRequest) Apply(lead *Lead) {
	if r.FirstName != nil {
		lead.FirstName = *r.FirstName
	}
	if r.LastName != nil {
		lead.LastName = *r.LastName
	}
	if r.Email != nil {
		lead.Email = *r.Email
	}
	if r.Phone != nil {
		lead.Phone = *r.Phone
	}
	if r.Company != nil {
		lead.Company = *r.Company
	}
	if r.Source != nil {
		lead.Source = *r.Source
	}
	if r.Status != nil {
		lead.Status = *r.Status
	}
	if r.Score != nil {
		lead.Score = *r.Score
	}
	if r.Tags != nil {
		lead.Tags = slices.Clone(*r.Tags)
	}
	if r.OwnerID != nil {
		lead.OwnerID = *r.OwnerID
	}
}

const MaxTags = 20

func validEmail(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("is required")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return fmt.Errorf("%q is not a valid address", raw)
	}
	return nil
}

func validScore(score int) error {
	if score < 0 || score > 100 {
		return fmt.Errorf("must be between 0 and 100")
	}
	return nil
}
