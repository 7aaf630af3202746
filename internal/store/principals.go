package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lazypower/resonance/internal/model"
)

// UpsertPrincipal registers a user or group, or renames an existing one.
func (db *DB) UpsertPrincipal(ctx context.Context, p model.Principal) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO principals (id, type, display_name, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET type = excluded.type, display_name = excluded.display_name
	`, p.ID, string(p.Type), p.DisplayName, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert principal: %w", err)
	}
	return nil
}

// GetPrincipal returns a registered principal, or nil.
func (db *DB) GetPrincipal(ctx context.Context, id string) (*model.Principal, error) {
	var (
		p     model.Principal
		ptype string
	)
	err := db.QueryRowContext(ctx, `SELECT id, type, display_name FROM principals WHERE id = ?`, id).
		Scan(&p.ID, &ptype, &p.DisplayName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get principal: %w", err)
	}
	p.Type = model.PrincipalType(ptype)
	return &p, nil
}

// ListPrincipals returns every registered principal, users before groups.
func (db *DB) ListPrincipals(ctx context.Context) ([]model.Principal, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, type, display_name FROM principals ORDER BY type DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list principals: %w", err)
	}
	defer rows.Close()

	var out []model.Principal
	for rows.Next() {
		var (
			p     model.Principal
			ptype string
		)
		if err := rows.Scan(&p.ID, &ptype, &p.DisplayName); err != nil {
			return nil, fmt.Errorf("scan principal: %w", err)
		}
		p.Type = model.PrincipalType(ptype)
		out = append(out, p)
	}
	return out, rows.Err()
}

// AddGroupMember adds member to group. The group must be registered.
func (db *DB) AddGroupMember(ctx context.Context, groupID, memberID string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, member_id) VALUES (?, ?)
		ON CONFLICT (group_id, member_id) DO NOTHING
	`, groupID, memberID)
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

// GroupMemberCount returns how many members a group has.
func (db *DB) GroupMemberCount(ctx context.Context, groupID string) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM group_members WHERE group_id = ?`, groupID).Scan(&n); err != nil {
		return 0, fmt.Errorf("group member count: %w", err)
	}
	return n, nil
}
