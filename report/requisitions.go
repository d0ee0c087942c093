package report

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// SummaryRow aggregates requisitions sharing a status and mode.
type SummaryRow struct {
	Status string  `json:"status"`
	Mode   string  `json:"procurement_mode"`
	Count  int     `json:"count"`
	Total  float64 `json:"total"`
}

// Summary is the requisition report for a date range.
type Summary struct {
	From       time.Time    `json:"from"`
	To         time.Time    `json:"to"`
	Rows       []SummaryRow `json:"rows"`
	Count      int          `json:"count"`
	GrandTotal float64      `json:"grand_total"`
}

// RepositoryPort supplies the aggregated rows.
type RepositoryPort interface {
	RequisitionSummary(ctx context.Context, from, to time.Time) ([]SummaryRow, error)
}

// PGRepository reads the aggregation from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// RequisitionSummary groups requisitions in [from, to] by status and mode.
func (r *PGRepository) RequisitionSummary(ctx context.Context, from, to time.Time) ([]SummaryRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, procurement_mode, COUNT(*), COALESCE(SUM(overall_total), 0)
FROM requisitions
WHERE date >= $1 AND date <= $2
GROUP BY status, procurement_mode
ORDER BY status, procurement_mode`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SummaryRow
	for rows.Next() {
		var row SummaryRow
		if err := rows.Scan(&row.Status, &row.Mode, &row.Count, &row.Total); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Service builds and renders the requisition summary report.
type Service struct {
	repo RepositoryPort
	pdf  *PDFClient
}

// NewService constructs the report service.
func NewService(repo RepositoryPort, pdf *PDFClient) *Service {
	return &Service{repo: repo, pdf: pdf}
}

// BuildSummary assembles the report for the range.
func (s *Service) BuildSummary(ctx context.Context, from, to time.Time) (Summary, error) {
	rows, err := s.repo.RequisitionSummary(ctx, from, to)
	if err != nil {
		return Summary{}, fmt.Errorf("report: requisition summary: %w", err)
	}
	summary := Summary{From: from, To: to, Rows: rows}
	for _, row := range rows {
		summary.Count += row.Count
		summary.GrandTotal += row.Total
	}
	return summary, nil
}

// RenderPDF renders the summary through the converter service.
func (s *Service) RenderPDF(ctx context.Context, summary Summary) ([]byte, error) {
	if s.pdf == nil {
		return nil, fmt.Errorf("report: pdf service not configured")
	}
	return s.pdf.RenderHTML(ctx, SummaryHTML(summary))
}

var pesoPrinter = message.NewPrinter(language.English)

// FormatPeso renders an amount with thousands grouping, e.g.
// "PHP 1,250,000.00".
func FormatPeso(v float64) string {
	return pesoPrinter.Sprintf("PHP %.2f", v)
}

var summaryTemplate = template.Must(template.New("summary").Funcs(template.FuncMap{
	"peso": FormatPeso,
}).Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Requisition Summary</title>
<style>
body { font-family: sans-serif; font-size: 12px; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #444; padding: 4px 8px; text-align: left; }
td.amount { text-align: right; }
</style>
</head>
<body>
<h1>Requisition Summary</h1>
<p>{{.From.Format "2006-01-02"}} to {{.To.Format "2006-01-02"}}</p>
<table>
<tr><th>Status</th><th>Procurement Mode</th><th>Count</th><th>Total</th></tr>
{{range .Rows}}<tr><td>{{.Status}}</td><td>{{.Mode}}</td><td>{{.Count}}</td><td class="amount">{{peso .Total}}</td></tr>
{{end}}<tr><th colspan="2">All requisitions</th><th>{{.Count}}</th><th>{{peso .GrandTotal}}</th></tr>
</table>
</body>
</html>`))

// SummaryHTML renders the report table as a standalone HTML document.
func SummaryHTML(summary Summary) string {
	var b strings.Builder
	if err := summaryTemplate.Execute(&b, summary); err != nil {
		return fmt.Sprintf("<html><body>render error: %v</body></html>", err)
	}
	return b.String()
}
