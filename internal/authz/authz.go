// Package authz stores users, groups and per-project authorizations, and
// answers the queries the project manager consumes: does an actor hold
// system administration, and which projects is an actor authorized for,
// directly or through group membership.
package authz

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Tonytonyy/onedev/internal/db"
)

// Privilege is the level granted on one project.
type Privilege string

const (
	PrivilegeRead  Privilege = "read"
	PrivilegeWrite Privilege = "write"
	PrivilegeAdmin Privilege = "admin"
)

// User is an account. Admin marks system-wide administration capability.
type User struct {
	ID    int64
	Name  string
	Admin bool
}

// Group is a named set of users sharing authorizations.
type Group struct {
	ID   int64
	Name string
}

// Service answers authorization queries against the entity store.
type Service struct {
	db *db.DB
}

// NewService creates the authorization service.
func NewService(d *db.DB) *Service {
	return &Service{db: d}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Service) execer(tx *db.Tx) execer {
	if tx != nil {
		return tx
	}
	return s.db.SQL()
}

// CreateUser persists a new user.
func (s *Service) CreateUser(ctx context.Context, name string, admin bool) (*User, error) {
	res, err := s.db.SQL().ExecContext(ctx,
		`INSERT INTO users (name, admin) VALUES (?, ?)`, name, admin)
	if err != nil {
		return nil, fmt.Errorf("create user %s: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create user %s: %w", name, err)
	}
	return &User{ID: id, Name: name, Admin: admin}, nil
}

// CreateGroup persists a new group.
func (s *Service) CreateGroup(ctx context.Context, name string) (*Group, error) {
	res, err := s.db.SQL().ExecContext(ctx,
		`INSERT INTO groups (name) VALUES (?)`, name)
	if err != nil {
		return nil, fmt.Errorf("create group %s: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create group %s: %w", name, err)
	}
	return &Group{ID: id, Name: name}, nil
}

// AddMember puts a user into a group.
func (s *Service) AddMember(ctx context.Context, userID, groupID int64) error {
	if _, err := s.db.SQL().ExecContext(ctx,
		`INSERT INTO memberships (user_id, group_id) VALUES (?, ?)`, userID, groupID); err != nil {
		return fmt.Errorf("add user %d to group %d: %w", userID, groupID, err)
	}
	return nil
}

// GrantUser authorizes a user on a project. Pass tx to make the grant part
// of an enclosing unit of work, nil to apply it directly.
func (s *Service) GrantUser(ctx context.Context, tx *db.Tx, userID, projectID int64, priv Privilege) error {
	if _, err := s.execer(tx).ExecContext(ctx,
		`INSERT INTO user_authorizations (user_id, project_id, privilege) VALUES (?, ?, ?)`,
		userID, projectID, priv); err != nil {
		return fmt.Errorf("grant %s on project %d to user %d: %w", priv, projectID, userID, err)
	}
	return nil
}

// GrantGroup authorizes a group on a project.
func (s *Service) GrantGroup(ctx context.Context, tx *db.Tx, groupID, projectID int64, priv Privilege) error {
	if _, err := s.execer(tx).ExecContext(ctx,
		`INSERT INTO group_authorizations (group_id, project_id, privilege) VALUES (?, ?, ?)`,
		groupID, projectID, priv); err != nil {
		return fmt.Errorf("grant %s on project %d to group %d: %w", priv, projectID, groupID, err)
	}
	return nil
}

// AuthorizedProjectIDs returns the projects individually authorized to the
// user.
func (s *Service) AuthorizedProjectIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.SQL().QueryContext(ctx,
		`SELECT project_id FROM user_authorizations WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user authorizations: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// GroupAuthorizedProjectIDs returns the projects authorized to any group
// the user belongs to.
func (s *Service) GroupAuthorizedProjectIDs(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.SQL().QueryContext(ctx,
		`SELECT ga.project_id
		 FROM group_authorizations ga
		 JOIN memberships m ON m.group_id = ga.group_id
		 WHERE m.user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("query group authorizations: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]int64, error) {
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
