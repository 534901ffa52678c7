// internal/store/promises.go
package store

import (
	"context"
	"database/sql"
	"time"

	"promise-dispatch/internal/models"
)

// PromiseRepository exposes read-only access to commitments. The dispatcher
// never mutates promise data.
type PromiseRepository struct {
	db *sql.DB
}

func NewPromiseRepository(db *sql.DB) *PromiseRepository {
	return &PromiseRepository{db: db}
}

// GetActivePromises returns all non-Closed promises due on or before the
// given horizon (week's end for a dispatch cycle). Status filtering happens
// server-side; finer daily/weekly candidate splits happen in the dispatcher.
func (r *PromiseRepository) GetActivePromises(ctx context.Context, dueBefore time.Time) ([]models.Promise, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, promise_text, due_date, status, owner_email, owner_name,
		        leader_id, leader_email, leader_name
		 FROM promises
		 WHERE status <> $1 AND due_date <= $2`,
		models.StatusClosed, dueBefore.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var promises []models.Promise
	for rows.Next() {
		var p models.Promise
		var leaderEmail, leaderName sql.NullString
		if err := rows.Scan(
			&p.ID, &p.PromiseText, &p.DueDate, &p.Status, &p.OwnerEmail, &p.OwnerName,
			&p.LeaderID, &leaderEmail, &leaderName,
		); err != nil {
			return nil, err
		}
		p.LeaderEmail = leaderEmail.String
		p.LeaderName = leaderName.String
		promises = append(promises, p)
	}
	return promises, rows.Err()
}

// GetHistoryForOwner returns the status-only projection of an owner's
// settled promises, used for the integrity score. Callers require at least
// three samples before showing a score.
func (r *PromiseRepository) GetHistoryForOwner(ctx context.Context, email string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status FROM promises
		 WHERE owner_email = $1 AND status IN ($2, $3)`,
		email, models.StatusClosed, models.StatusMissed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var statuses []string
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, rows.Err()
}
