package project

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Tonytonyy/onedev/internal/db"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so loads can run either
// inside or outside a unit of work.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Store persists projects and their protection rules.
type Store struct {
	db *db.DB
}

// NewStore creates the project store.
func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

// Load returns the project with the given id, with protections attached, or
// (nil, nil) when no such row exists.
func (s *Store) Load(ctx context.Context, id int64) (*Project, error) {
	return s.load(ctx, s.db.SQL(), id)
}

// LoadTx is Load inside an open transaction.
func (s *Store) LoadTx(ctx context.Context, tx *db.Tx, id int64) (*Project, error) {
	return s.load(ctx, tx, id)
}

func (s *Store) load(ctx context.Context, q Querier, id int64) (*Project, error) {
	p := &Project{}
	err := q.QueryRowContext(ctx,
		`SELECT id, name, public_read, forked_from FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.PublicRead, &p.ForkedFrom)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load project %d: %w", id, err)
	}
	if err := s.loadProtections(ctx, q, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) loadProtections(ctx context.Context, q Querier, p *Project) error {
	rows, err := q.QueryContext(ctx,
		`SELECT id, branch, no_deletion, no_force_push FROM branch_protections WHERE project_id = ? ORDER BY id`, p.ID)
	if err != nil {
		return fmt.Errorf("load branch protections of project %d: %w", p.ID, err)
	}
	defer rows.Close()
	p.BranchProtections = nil
	for rows.Next() {
		var bp BranchProtection
		if err := rows.Scan(&bp.ID, &bp.Branch, &bp.NoDeletion, &bp.NoForcePush); err != nil {
			return fmt.Errorf("scan branch protection: %w", err)
		}
		p.BranchProtections = append(p.BranchProtections, bp)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	tagRows, err := q.QueryContext(ctx,
		`SELECT id, tag, no_deletion, no_update FROM tag_protections WHERE project_id = ? ORDER BY id`, p.ID)
	if err != nil {
		return fmt.Errorf("load tag protections of project %d: %w", p.ID, err)
	}
	defer tagRows.Close()
	p.TagProtections = nil
	for tagRows.Next() {
		var tp TagProtection
		if err := tagRows.Scan(&tp.ID, &tp.Tag, &tp.NoDeletion, &tp.NoUpdate); err != nil {
			return fmt.Errorf("scan tag protection: %w", err)
		}
		p.TagProtections = append(p.TagProtections, tp)
	}
	return tagRows.Err()
}

// FindAll returns every persisted project with protections attached.
func (s *Store) FindAll(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.SQL().QueryContext(ctx,
		`SELECT id, name, public_read, forked_from FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()
	var projects []*Project
	for rows.Next() {
		p := &Project{}
		if err := rows.Scan(&p.ID, &p.Name, &p.PublicRead, &p.ForkedFrom); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range projects {
		if err := s.loadProtections(ctx, s.db.SQL(), p); err != nil {
			return nil, err
		}
	}
	return projects, nil
}

// Persist inserts the project when new, assigning its id, and updates the
// row otherwise.
func (s *Store) Persist(ctx context.Context, tx *db.Tx, p *Project) error {
	if p.IsNew() {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO projects (name, public_read, forked_from) VALUES (?, ?, ?)`,
			p.Name, p.PublicRead, p.ForkedFrom)
		if err != nil {
			return fmt.Errorf("insert project %s: %w", p.Name, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert project %s: %w", p.Name, err)
		}
		p.ID = id
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE projects SET name = ?, public_read = ?, forked_from = ? WHERE id = ?`,
		p.Name, p.PublicRead, p.ForkedFrom, p.ID); err != nil {
		return fmt.Errorf("update project %d: %w", p.ID, err)
	}
	return nil
}

// Remove deletes the project row. Protection rules and authorizations
// cascade.
func (s *Store) Remove(ctx context.Context, tx *db.Tx, p *Project) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, p.ID); err != nil {
		return fmt.Errorf("delete project %d: %w", p.ID, err)
	}
	return nil
}

// ClearForkRefs nulls the fork back-reference of every project forked from
// the given project.
func (s *Store) ClearForkRefs(ctx context.Context, tx *db.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE projects SET forked_from = NULL WHERE forked_from = ?`, id); err != nil {
		return fmt.Errorf("clear fork refs to project %d: %w", id, err)
	}
	return nil
}

// AddBranchProtection attaches a rule to a project. Pass tx to join an open
// unit of work, nil to apply directly.
func (s *Store) AddBranchProtection(ctx context.Context, tx *db.Tx, projectID int64, bp BranchProtection) (int64, error) {
	res, err := s.querier(tx).ExecContext(ctx,
		`INSERT INTO branch_protections (project_id, branch, no_deletion, no_force_push) VALUES (?, ?, ?, ?)`,
		projectID, bp.Branch, bp.NoDeletion, bp.NoForcePush)
	if err != nil {
		return 0, fmt.Errorf("add branch protection for %s: %w", bp.Branch, err)
	}
	return res.LastInsertId()
}

// AddTagProtection attaches a rule to a project.
func (s *Store) AddTagProtection(ctx context.Context, tx *db.Tx, projectID int64, tp TagProtection) (int64, error) {
	res, err := s.querier(tx).ExecContext(ctx,
		`INSERT INTO tag_protections (project_id, tag, no_deletion, no_update) VALUES (?, ?, ?, ?)`,
		projectID, tp.Tag, tp.NoDeletion, tp.NoUpdate)
	if err != nil {
		return 0, fmt.Errorf("add tag protection for %s: %w", tp.Tag, err)
	}
	return res.LastInsertId()
}

// DeleteBranchProtection removes one rule row inside the transaction.
func (s *Store) DeleteBranchProtection(ctx context.Context, tx *db.Tx, ruleID int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM branch_protections WHERE id = ?`, ruleID); err != nil {
		return fmt.Errorf("delete branch protection %d: %w", ruleID, err)
	}
	return nil
}

// DeleteTagProtection removes one rule row inside the transaction.
func (s *Store) DeleteTagProtection(ctx context.Context, tx *db.Tx, ruleID int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM tag_protections WHERE id = ?`, ruleID); err != nil {
		return fmt.Errorf("delete tag protection %d: %w", ruleID, err)
	}
	return nil
}

func (s *Store) querier(tx *db.Tx) Querier {
	if tx != nil {
		return tx
	}
	return s.db.SQL()
}
