package repositories

import (
	"context"
	"errors"

	"github.com/crowdfund-ton/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ReportRepo stores reconciliation mismatches seen by the worker sweep.
type ReportRepo struct {
	pool *pgxpool.Pool
}

func NewReportRepo(pool *pgxpool.Pool) *ReportRepo {
	return &ReportRepo{pool: pool}
}

// Observe records a mismatch, counting consecutive observations, and
// returns the stored report.
func (r *ReportRepo) Observe(ctx context.Context, rep models.ReconciliationReport) (*models.ReconciliationReport, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO reconciliation_reports
			(campaign_id, raised, total_donated, current_balance, object_withdrawn, event_withdrawn)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (campaign_id) DO UPDATE SET
			raised = EXCLUDED.raised,
			total_donated = EXCLUDED.total_donated,
			current_balance = EXCLUDED.current_balance,
			object_withdrawn = EXCLUDED.object_withdrawn,
			event_withdrawn = EXCLUDED.event_withdrawn,
			observations = reconciliation_reports.observations + 1,
			last_seen_at = now()
		RETURNING campaign_id, raised, total_donated, current_balance, object_withdrawn, event_withdrawn,
			observations, first_seen_at, last_seen_at
	`, rep.CampaignID, int64(rep.Raised), int64(rep.TotalDonated), rep.CurrentBalance, rep.ObjectWithdrawn, rep.EventWithdrawn)
	return scanReport(row)
}

// Clear removes the report of a campaign whose balances agree again.
func (r *ReportRepo) Clear(ctx context.Context, campaignID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM reconciliation_reports WHERE campaign_id = $1`, campaignID)
	return err
}

func (r *ReportRepo) Get(ctx context.Context, campaignID string) (*models.ReconciliationReport, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT campaign_id, raised, total_donated, current_balance, object_withdrawn, event_withdrawn,
			observations, first_seen_at, last_seen_at
		FROM reconciliation_reports WHERE campaign_id = $1
	`, campaignID)
	rep, err := scanReport(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rep, err
}

// ListPersistent returns reports observed in at least two sweeps.
func (r *ReportRepo) ListPersistent(ctx context.Context, limit int) ([]models.ReconciliationReport, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT campaign_id, raised, total_donated, current_balance, object_withdrawn, event_withdrawn,
			observations, first_seen_at, last_seen_at
		FROM reconciliation_reports WHERE observations >= 2
		ORDER BY last_seen_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ReconciliationReport
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rep)
	}
	return out, rows.Err()
}

func scanReport(row pgx.Row) (*models.ReconciliationReport, error) {
	var rep models.ReconciliationReport
	var raised, donated int64
	err := row.Scan(&rep.CampaignID, &raised, &donated, &rep.CurrentBalance, &rep.ObjectWithdrawn, &rep.EventWithdrawn,
		&rep.Observations, &rep.FirstSeenAt, &rep.LastSeenAt)
	if err != nil {
		return nil, err
	}
	rep.Raised = uint64(raised)
	rep.TotalDonated = uint64(donated)
	return &rep, nil
}
