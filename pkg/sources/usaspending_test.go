package sources

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSpendingByAwardRequestShape(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/search/spending_by_award/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(AwardSearchResponse{
			Results: []Award{{
				InternalID:       "ASST_NON_XYZ",
				RecipientName:    "City of Sacramento",
				Amount:           125000.50,
				PlaceOfPerfState: "CA",
				AwardType:        "project grant",
			}},
			PageMetadata: PageMetadata{Page: 1, HasNext: false},
		})
	}))
	defer server.Close()

	client := NewUSASpendingClient(server.URL, zap.NewNop())
	resp, err := client.SpendingByAward(context.Background(), AwardSearchFilters{
		AwardTypeCodes: GrantAwardTypeCodes,
		ProgramNumbers: []string{"93.870"},
	}, 1, 100)
	require.NoError(t, err)

	filters := captured["filters"].(map[string]any)

	// program_numbers stays a list even for a single ALN; the endpoint
	// silently drops the filter otherwise
	assert.Equal(t, []any{"93.870"}, filters["program_numbers"])
	assert.Equal(t, []any{"02", "03", "04", "05"}, filters["award_type_codes"])
	assert.Equal(t, false, captured["subawards"])

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "City of Sacramento", resp.Results[0].RecipientName)
	assert.Equal(t, 125000.50, resp.Results[0].Amount)
	assert.False(t, resp.PageMetadata.HasNext)
}

func TestSubawardSearchSetsSubawardsFlag(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/search/spending_by_award/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(SubawardSearchResponse{
			Results: []Subaward{{
				SubawardID: "SUB-0001",
				SubAwardee: "Neighborhood Services Inc",
				Amount:     42000,
			}},
		})
	}))
	defer server.Close()

	client := NewUSASpendingClient(server.URL, zap.NewNop())
	resp, err := client.SubawardSearch(context.Background(), AwardSearchFilters{
		AwardUniqueIDs: []string{"ASST_NON_XYZ"},
	}, 1, 100)
	require.NoError(t, err)

	// same endpoint as the prime award view, distinguished only by the flag
	assert.Equal(t, true, captured["subawards"])
	filters := captured["filters"].(map[string]any)
	assert.Equal(t, []any{"ASST_NON_XYZ"}, filters["award_unique_ids"])

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "SUB-0001", resp.Results[0].SubawardID)
}

func TestSpendingByAwardNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"throttled"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewUSASpendingClient(server.URL, zap.NewNop())
	_, err := client.SpendingByAward(context.Background(), AwardSearchFilters{}, 1, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestAwardFieldDecoding(t *testing.T) {
	payload := `{
		"results": [{
			"generated_internal_id": "ASST_NON_1234",
			"Award ID": "HHS-2024-001",
			"Recipient Name": "County Health Alliance",
			"Award Amount": 987654.32,
			"Description": "maternal health services",
			"Start Date": "2024-01-15",
			"End Date": "2025-01-14",
			"Awarding Agency": "Department of Health and Human Services",
			"Awarding Sub Agency": "HRSA",
			"Place of Performance State Code": "OH",
			"CFDA Number": "93.110",
			"Award Type": "project grant"
		}],
		"page_metadata": {"page": 1, "hasNext": true}
	}`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(payload))
	}))
	defer server.Close()

	client := NewUSASpendingClient(server.URL, zap.NewNop())
	resp, err := client.SpendingByAward(context.Background(), AwardSearchFilters{}, 1, 1)
	require.NoError(t, err)

	require.Len(t, resp.Results, 1)
	award := resp.Results[0]
	assert.Equal(t, "ASST_NON_1234", award.InternalID)
	assert.Equal(t, "HHS-2024-001", award.AwardID)
	assert.Equal(t, "County Health Alliance", award.RecipientName)
	assert.Equal(t, 987654.32, award.Amount)
	assert.Equal(t, "93.110", award.CFDANumber)
	assert.Equal(t, "OH", award.PlaceOfPerfState)
	assert.True(t, resp.PageMetadata.HasNext)
}
