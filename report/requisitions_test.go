package report

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	rows []SummaryRow
	err  error
}

func (s *stubRepo) RequisitionSummary(ctx context.Context, from, to time.Time) ([]SummaryRow, error) {
	return s.rows, s.err
}

func TestBuildSummaryAggregatesTotals(t *testing.T) {
	repo := &stubRepo{rows: []SummaryRow{
		{Status: "APPROVED", Mode: "Shopping", Count: 3, Total: 42000},
		{Status: "APPROVED", Mode: "Small Value Procurement", Count: 1, Total: 250000},
		{Status: "PENDING", Mode: "Shopping", Count: 2, Total: 18000},
	}}
	svc := NewService(repo, nil)

	summary, err := svc.BuildSummary(context.Background(), time.Now().AddDate(0, 0, -7), time.Now())
	require.NoError(t, err)
	require.Equal(t, 6, summary.Count)
	require.InDelta(t, 310000, summary.GrandTotal, 0.001)
	require.Len(t, summary.Rows, 3)
}

func TestSummaryHTMLRendersRows(t *testing.T) {
	summary := Summary{
		From:       time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		To:         time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		Rows:       []SummaryRow{{Status: "APPROVED", Mode: "Shopping", Count: 2, Total: 1250500.5}},
		Count:      2,
		GrandTotal: 1250500.5,
	}

	html := SummaryHTML(summary)
	require.Contains(t, html, "2026-07-01")
	require.Contains(t, html, "2026-07-31")
	require.Contains(t, html, "Shopping")
	require.Contains(t, html, "PHP 1,250,500.50")
	require.False(t, strings.Contains(html, "render error"))
}

func TestFormatPesoGroupsThousands(t *testing.T) {
	require.Equal(t, "PHP 1,000,000.00", FormatPeso(1000000))
	require.Equal(t, "PHP 950.00", FormatPeso(950))
}
