package ingestion

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSourceKind(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  SourceKind
		ok    bool
	}{
		{"usaspending_prime", SourceUSASpendingPrime, true},
		{"USASPENDING_SUB", SourceUSASpendingSub, true},
		{"GrantsGov", SourceGrantsGov, true},
		{"nasbo", SourceNASBO, true},
		{"", "", false},
		{"usaspending", "", false},
		{"sam.gov", "", false},
	} {
		got, err := ParseSourceKind(tc.input)
		if !tc.ok {
			require.Error(t, err, tc.input)
			continue
		}
		require.NoError(t, err, tc.input)
		require.Equal(t, tc.want, got)
	}
}

func TestSourceTag(t *testing.T) {
	require.Equal(t, SourceTagUSASpending, SourceUSASpendingPrime.SourceTag())
	require.Equal(t, SourceTagUSASpending, SourceUSASpendingSub.SourceTag())
	require.Equal(t, SourceTagGrantsGov, SourceGrantsGov.SourceTag())
	require.Equal(t, SourceTagNASBO, SourceNASBO.SourceTag())
}
