package model

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hay-kot/criterio"
)

type Stage string

const (
	StageProspecting   Stage = "prospecting"
	StageQualification Stage = "qualification"
	StageProposal      Stage = "proposal"
	StageNegotiation   Stage = "negotiation"
	StageClosedWon     Stage = "closed_won"
	StageClosedLost    Stage = "closed_lost"
)

// Stages is the board order, left to right.
var Stages = []Stage{
	StageProspecting,
	StageQualification,
	StageProposal,
	StageNegotiation,
	StageClosedWon,
	StageClosedLost,
}

func (s Stage) Valid() bool {
	return slices.Contains(Stages, s)
}

// DefaultProbability is the win probability assumed for a stage when the
// caller does not provide one.
func (s Stage) DefaultProbability() int {
	switch s {
	case StageProspecting:
		return 10
	case StageQualification:
		return 25
	case StageProposal:
		return 50
	case StageNegotiation:
		return 75
	case StageClosedWon:
		return 100
	default:
		return 0
	}
}

type Opportunity struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	LeadID            *string    `json:"lead_id,omitempty"`
	Name              string     `json:"name"`
	Stage             Stage      `json:"stage"`
	Position          int        `json:"position"`
	AmountCents       int64      `json:"amount_cents"`
	Currency          string     `json:"currency"`
	Probability       int        `json:"probability"`
	ExpectedCloseDate *time.Time `json:"expected_close_date,omitempty"`
	OwnerID           string     `json:"owner_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

func (o Opportunity) RecordID() string { return o.ID }

// DisplayName includes the amount so a toast tells similar deals apart.
func (o Opportunity) DisplayName() string {
	if o.AmountCents == 0 {
		return o.Name
	}
	return o.Name + ", " + FormatAmount(o.AmountCents, o.Currency)
}

func (o Opportunity) Clone() Opportunity {
	if o.LeadID != nil {
		leadID := *o.LeadID
		o.LeadID = &leadID
	}
	if o.ExpectedCloseDate != nil {
		closeDate := *o.ExpectedCloseDate
		o.ExpectedCloseDate = &closeDate
	}
	return o
}

// WeightedCents is the amount scaled by the win probability.
func (o Opportunity) WeightedCents() int64 {
	return o.AmountCents * int64(o.Probability) / 100
}

// FormatAmount renders cents as "USD 12,500.00".
func FormatAmount(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s %s%s.%02d", currency, sign, humanize.Comma(cents/100), cents%100)
}

type OpportunityQuery struct {
	Stage   Stage
	OwnerID string
	Q       string
	Refresh bool
}

type PipelineStage struct {
	Stage         Stage  `json:"stage"`
	Count         int    `json:"count"`
	TotalCents    int64  `json:"total_cents"`
	WeightedCents int64  `json:"weighted_cents"`
	Total         string `json:"total"`
	Weighted      string `json:"weighted"`
}

type Pipeline struct {
	Currency      string          `json:"currency"`
	Stages        []PipelineStage `json:"stages"`
	OpenCount     int             `json:"open_count"`
	TotalCents    int64           `json:"total_cents"`
	WeightedCents int64           `json:"weighted_cents"`
	Total         string          `json:"total"`
	Weighted      string          `json:"weighted"`
}

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

type CreateOpportunityRequest struct {
	LeadID            *string    `json:"lead_id"`
	Name              string     `json:"name"`
	Stage             Stage      `json:"stage"`
	AmountCents       int64      `json:"amount_cents"`
	Currency          string     `json:"currency"`
	Probability       *int       `json:"probability"`
	ExpectedCloseDate *time.Time `json:"expected_close_date"`
	OwnerID           string     `json:"owner_id"`
}

func (r CreateOpportunityRequest) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if strings.TrimSpace(r.Name) == "" {
		errs = errs.Append("name", fmt.Errorf("is required"))
	}
	if r.Stage != "" && !r.Stage.Valid() {
		errs = errs.Append("stage", fmt.Errorf("unknown stage %q", r.Stage))
	}
	if r.AmountCents < 0 {
		errs = errs.Append("amount_cents", fmt.Errorf("must not be negative"))
	}
	if r.Currency != "" && !currencyPattern.MatchString(r.Currency) {
		errs = errs.Append("currency", fmt.Errorf("must be a three letter ISO code"))
	}
	if r.Probability != nil {
		if err := validProbability(*r.Probability); err != nil {
			errs = errs.Append("probability", err)
		}
	}

	return errs.ToError()
}

type UpdateOpportunityRequest struct {
	LeadID            *string    `json:"lead_id"`
	Name              *string    `json:"name"`
	AmountCents       *int64     `json:"amount_cents"`
	Currency          *string    `json:"currency"`
	Probability       *int       `json:"probability"`
	ExpectedCloseDate *time.Time `json:"expected_close_date"`
	OwnerID           *string    `json:"owner_id"`
}

func (r UpdateOpportunityRequest) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		errs = errs.Append("name", fmt.Errorf("must not be empty"))
	}
	if r.AmountCents != nil && *r.AmountCents < 0 {
		errs = errs.Append("amount_cents", fmt.Errorf("must not be negative"))
	}
	if r.Currency != nil && !currencyPattern.MatchString(*r.Currency) {
		errs = errs.Append("currency", fmt.Errorf("must be a three letter ISO code"))
	}
	if r.Probability != nil {
		if err := validProbability(*r.Probability); err != nil {
			errs = errs.Append("probability", err)
		}
	}

	return errs.ToError()
}

func (r UpdateOpportunityRequest) Apply(o *Opportunity) {
	if r.LeadID != nil {
		leadID := *r.LeadID
		o.LeadID = &leadID
		if leadID == "" {
			o.LeadID = nil
		}
	}
	if r.Name != nil {
		o.Name = *r.Name
	}
	if r.AmountCents != nil {
		o.AmountCents = *r.AmountCents
	}
	if r.Currency != nil {
		o.Currency = *r.Currency
	}
	if r.Probability != nil {
		o.Probability = *r.Probability
	}
	if r.ExpectedCloseDate != nil {
		closeDate := *r.ExpectedCloseDate
		o.ExpectedCloseDate = &closeDate
	}
	if r.OwnerID != nil {
		o.OwnerID = *r.OwnerID
	}
}

// MoveOpportunityRequest places a card on the board. A negative position
// appends to the end of the stage.
type MoveOpportunityRequest struct {
	Stage    Stage `json:"stage"`
	Position int   `json:"position"`
}

func (r MoveOpportunityRequest) Validate() error {
	var errs criterio.FieldErrorsBuilder
	if !r.Stage.Valid() {
		errs = errs.Append("stage", fmt.Errorf("unknown stage %q", r.Stage))
	}
	return errs.ToError()
}

func validProbability(p int) error {
	if p < 0 || p > 100 {
		return fmt.Errorf("must be between 0 and 100")
	}
	return nil
}
