package reporting

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetrospectiveReporter_Generate(t *testing.T) {
	reporter := NewRetrospectiveReporter()

	time1 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	time2 := time.Date(2026, 1, 1, 10, 5, 0, 0, time.UTC)
	time3 := time.Date(2026, 1, 1, 10, 10, 0, 0, time.UTC)
	time4 := time.Date(2026, 1, 1, 9, 55, 0, 0, time.UTC)

	usd := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }

	tests := []struct {
		name     string
		entries  []Entry
		expected *Report
	}{
		{
			name:    "Empty",
			entries: nil,
			expected: &Report{
				AmountByCurrency: map[string]decimal.Decimal{},
				FailuresByKind:   map[string]int{},
				BackendUsage:     map[string]int{},
			},
		},
		{
			name: "SingleSuccess",
			entries: []Entry{
				{Timestamp: time1, OrderID: "REF-STRIPE-1", Backend: "stripe", Phase: "purchase", Status: StatusSuccess, Amount: usd("10.00"), Currency: "USD"},
			},
			expected: &Report{
				TotalAttempts:    1,
				Successful:       1,
				AmountByCurrency: map[string]decimal.Decimal{"USD": usd("10.00")},
				FailuresByKind:   map[string]int{},
				BackendUsage:     map[string]int{"stripe": 1},
				DateFrom:         time1,
				DateTo:           time1,
			},
		},
		{
			name: "Mixed",
			entries: []Entry{
				{Timestamp: time1, Backend: "stripe", Status: StatusSuccess, Amount: usd("10.00"), Currency: "USD"},
				{Timestamp: time4, Backend: "paypal_express", Status: StatusRedirect, Amount: usd("5.00"), Currency: "EUR"},
				{Timestamp: time2, Backend: "stripe", Status: StatusFailure, Kind: "gateway_rejected", Amount: usd("3.00"), Currency: "USD"},
				{Timestamp: time2, Backend: "paypal_express", Status: StatusSuccess, Amount: usd("5.00"), Currency: "EUR"},
				{Timestamp: time3, Backend: "stripe", Status: StatusSuccess, Amount: usd("0.50"), Currency: "USD"},
				{Timestamp: time3, Status: StatusFailure, Kind: "validation"},
			},
			expected: &Report{
				TotalAttempts: 6,
				Successful:    3,
				Failed:        2,
				Redirects:     1,
				AmountByCurrency: map[string]decimal.Decimal{
					"USD": usd("10.50"),
					"EUR": usd("5.00"),
				},
				FailuresByKind: map[string]int{"gateway_rejected": 1, "validation": 1},
				BackendUsage:   map[string]int{"stripe": 3, "paypal_express": 2},
				DateFrom:       time4,
				DateTo:         time3,
				Duration:       time3.Sub(time4),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := reporter.Generate(tt.entries)
			require.NotNil(t, report)

			assert.Equal(t, tt.expected.TotalAttempts, report.TotalAttempts)
			assert.Equal(t, tt.expected.Successful, report.Successful)
			assert.Equal(t, tt.expected.Failed, report.Failed)
			assert.Equal(t, tt.expected.Redirects, report.Redirects)
			assert.Equal(t, tt.expected.FailuresByKind, report.FailuresByKind)
			assert.Equal(t, tt.expected.BackendUsage, report.BackendUsage)
			assert.True(t, tt.expected.DateFrom.Equal(report.DateFrom))
			assert.True(t, tt.expected.DateTo.Equal(report.DateTo))
			assert.Equal(t, tt.expected.Duration, report.Duration)

			require.Len(t, report.AmountByCurrency, len(tt.expected.AmountByCurrency))
			for cur, want := range tt.expected.AmountByCurrency {
				assert.True(t, want.Equal(report.AmountByCurrency[cur]), "currency %s: want %s got %s", cur, want, report.AmountByCurrency[cur])
			}
		})
	}
}

func TestJournal_RecordAndWrap(t *testing.T) {
	j := NewJournal(3)
	assert.Empty(t, j.Entries())

	for i := 1; i <= 2; i++ {
		j.Record(Entry{OrderID: string(rune('0' + i))})
	}
	got := j.Entries()
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].OrderID)
	assert.False(t, got[0].Timestamp.IsZero(), "timestamp is stamped on record")

	for i := 3; i <= 5; i++ {
		j.Record(Entry{OrderID: string(rune('0' + i))})
	}
	got = j.Entries()
	require.Len(t, got, 3)
	assert.Equal(t, "3", got[0].OrderID)
	assert.Equal(t, "5", got[2].OrderID)
}

func TestJournal_NilIsSafe(t *testing.T) {
	var j *Journal
	j.Record(Entry{})
	assert.Nil(t, j.Entries())
}
