// internal/store/profiles.go
package store

import (
	"context"
	"database/sql"

	"promise-dispatch/internal/models"
)

// ProfileDirectory resolves user ids to emails and display names. Loaded in
// one batch per cycle so per-user processing never issues N+1 lookups.
type ProfileDirectory struct {
	db *sql.DB
}

func NewProfileDirectory(db *sql.DB) *ProfileDirectory {
	return &ProfileDirectory{db: db}
}

func (d *ProfileDirectory) GetAllProfiles(ctx context.Context) ([]models.Profile, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, email, full_name FROM profiles`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		var p models.Profile
		var fullName sql.NullString
		if err := rows.Scan(&p.ID, &p.Email, &fullName); err != nil {
			return nil, err
		}
		p.FullName = fullName.String
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}
