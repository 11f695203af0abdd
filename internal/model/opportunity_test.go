package model

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpportunity_CloneIsDeep(t *testing.T) {
	t.Parallel()

	leadID := "lead-1"
	closeDate := time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	original := Opportunity{ID: "o1", Name: "Renewal", LeadID: &leadID, ExpectedCloseDate: &closeDate}

	clone := original.Clone()
	if diff := cmp.Diff(original, clone); diff != "" {
		t.Fatalf("clone differs (-want +got):\n%s", diff)
	}

	*clone.LeadID = "lead-2"
	*clone.ExpectedCloseDate = closeDate.AddDate(1, 0, 0)
	assert.Equal(t, "lead-1", *original.LeadID)
	assert.Equal(t, closeDate, *original.ExpectedCloseDate)
}

func TestOpportunity_DisplayName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Renewal", Opportunity{Name: "Renewal"}.DisplayName())
	assert.Equal(t, "Renewal, USD 12,500.00", Opportunity{Name: "Renewal", AmountCents: 1_250_000, Currency: "USD"}.DisplayName())
}

func TestOpportunity_Weighted(t *testing.T) {
	t.Parallel()

	o := Opportunity{AmountCents: 1_000_000, Probability: 25}
	assert.EqualValues(t, 250_000, o.WeightedCents())
}

func TestFormatAmount(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "USD 12,500.00", FormatAmount(1_250_000, "USD"))
	assert.Equal(t, "EUR 0.05", FormatAmount(5, "EUR"))
	assert.Equal(t, "USD -1,234.56", FormatAmount(-123_456, "USD"))
}

func TestStage(t *testing.T) {
	t.Parallel()

	assert.True(t, StageNegotiation.Valid())
	assert.False(t, Stage("won").Valid())
	assert.Equal(t, 100, StageClosedWon.DefaultProbability())
	assert.Equal(t, 0, StageClosedLost.DefaultProbability())
}

func TestCreateOpportunityRequest_Validate(t *testing.T) {
	t.Parallel()

	probability := 120
	err := CreateOpportunityRequest{Currency: "usd", AmountCents: -1, Stage: "won", Probability: &probability}.Validate()

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"name", "stage", "amount_cents", "currency", "probability"}, fields)

	assert.NoError(t, CreateOpportunityRequest{Name: "Deal", Currency: "USD"}.Validate())
}

func TestUpdateOpportunityRequest_Apply(t *testing.T) {
	t.Parallel()

	leadID := "lead-1"
	o := Opportunity{Name: "Deal", LeadID: &leadID, AmountCents: 100}

	empty := ""
	amount := int64(500)
	UpdateOpportunityRequest{LeadID: &empty, AmountCents: &amount}.Apply(&o)

	assert.Nil(t, o.LeadID)
	assert.EqualValues(t, 500, o.AmountCents)
	assert.Equal(t, "Deal", o.Name)
}

func TestMoveOpportunityRequest_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, MoveOpportunityRequest{Stage: StageProposal}.Validate())
	assert.Error(t, MoveOpportunityRequest{Stage: "archive"}.Validate())
}
