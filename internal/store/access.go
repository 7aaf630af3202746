package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lazypower/resonance/internal/model"
)

const accessColumns = `keyword, principal_id, principal_type, state, version, updated_at, updated_by`

func scanAccess(row interface{ Scan(...any) error }) (*model.AccessState, error) {
	var (
		a         model.AccessState
		ptype     string
		state     string
		updatedAt int64
	)
	if err := row.Scan(&a.Keyword, &a.PrincipalID, &ptype, &state, &a.Version, &updatedAt, &a.UpdatedBy); err != nil {
		return nil, err
	}
	a.PrincipalType = model.PrincipalType(ptype)
	a.State = model.Access(state)
	a.UpdatedAt = fromMS(updatedAt)
	return &a, nil
}

// LatestAccessState returns the current version for (keyword, principal), or
// nil when no state was ever recorded.
func (db *DB) LatestAccessState(ctx context.Context, keyword, principalID string) (*model.AccessState, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+accessColumns+` FROM access_states
		WHERE keyword = ? AND principal_id = ?
		ORDER BY version DESC LIMIT 1
	`, keyword, principalID)
	a, err := scanAccess(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest access state: %w", err)
	}
	return a, nil
}

// AppendAccessState stores a new version for (keyword, principal), one past
// the latest. History is never overwritten. It returns the stored row and
// whether it is the first version.
func (db *DB) AppendAccessState(ctx context.Context, a model.AccessState) (*model.AccessState, bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin access state: %w", err)
	}
	defer tx.Rollback()

	var latest int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM access_states WHERE keyword = ? AND principal_id = ?
	`, a.Keyword, a.PrincipalID).Scan(&latest); err != nil {
		return nil, false, fmt.Errorf("latest access version: %w", err)
	}

	a.Version = latest + 1
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now()
	}
	a.UpdatedAt = fromMS(a.UpdatedAt.UnixMilli())
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO access_states (`+accessColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.Keyword, a.PrincipalID, string(a.PrincipalType), string(a.State), a.Version,
		a.UpdatedAt.UnixMilli(), a.UpdatedBy); err != nil {
		return nil, false, fmt.Errorf("insert access state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit access state: %w", err)
	}
	return &a, latest == 0, nil
}

// AccessStates returns the current version of every principal's state for
// keyword, ordered by principal.
func (db *DB) AccessStates(ctx context.Context, keyword string) ([]model.AccessState, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+accessColumns+` FROM access_states a
		WHERE a.keyword = ? AND a.version = (
			SELECT MAX(b.version) FROM access_states b
			WHERE b.keyword = a.keyword AND b.principal_id = a.principal_id
		)
		ORDER BY a.principal_id
	`, keyword)
	if err != nil {
		return nil, fmt.Errorf("access states: %w", err)
	}
	defer rows.Close()

	var out []model.AccessState
	for rows.Next() {
		a, err := scanAccess(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access state: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// AccessHistory returns every version recorded for (keyword, principal),
// oldest first.
func (db *DB) AccessHistory(ctx context.Context, keyword, principalID string) ([]model.AccessState, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+accessColumns+` FROM access_states
		WHERE keyword = ? AND principal_id = ? ORDER BY version
	`, keyword, principalID)
	if err != nil {
		return nil, fmt.Errorf("access history: %w", err)
	}
	defer rows.Close()

	var out []model.AccessState
	for rows.Next() {
		a, err := scanAccess(rows)
		if err != nil {
			return nil, fmt.Errorf("scan access state: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
