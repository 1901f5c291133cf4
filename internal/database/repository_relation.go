package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// =====================================================
// COPY RELATION OPERATIONS
// =====================================================

// CreateRelation inserts a new copy relation.
func (r *Repository) CreateRelation(ctx context.Context, relation *CopyRelation) error {
	query := `
		INSERT INTO copy_relations (id, follower_id, trader_id, copy_ratio, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		relation.ID,
		relation.FollowerID,
		relation.TraderID,
		relation.CopyRatio,
		relation.Active,
		relation.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create copy relation: %w", err)
	}

	return nil
}

const relationColumns = `id, follower_id, trader_id, copy_ratio, active, created_at`

func scanRelation(row pgx.Row) (*CopyRelation, error) {
	relation := &CopyRelation{}
	err := row.Scan(
		&relation.ID, &relation.FollowerID, &relation.TraderID,
		&relation.CopyRatio, &relation.Active, &relation.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return relation, nil
}

// GetRelation retrieves a copy relation by ID. Returns (nil, nil) when not found.
func (r *Repository) GetRelation(ctx context.Context, id string) (*CopyRelation, error) {
	query := `SELECT ` + relationColumns + ` FROM copy_relations WHERE id = $1`

	relation, err := scanRelation(r.db.Pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get copy relation: %w", err)
	}

	return relation, nil
}

// DeactivateRelation sets active=false. Deactivating an already-inactive
// relation is a no-op success with transitioned=false.
func (r *Repository) DeactivateRelation(ctx context.Context, id string) (*CopyRelation, bool, error) {
	query := `
		UPDATE copy_relations
		SET active = FALSE
		WHERE id = $1 AND active = TRUE
		RETURNING ` + relationColumns

	relation, err := scanRelation(r.db.Pool.QueryRow(ctx, query, id))
	if err == nil {
		return relation, true, nil
	}
	if err != pgx.ErrNoRows {
		return nil, false, fmt.Errorf("failed to deactivate copy relation: %w", err)
	}

	// Already inactive, or unknown id.
	relation, err = r.GetRelation(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if relation == nil {
		return nil, false, ErrRelationNotFound
	}

	return relation, false, nil
}

// ActiveRelationsFor returns the relations active for a trader at the moment
// of the call.
func (r *Repository) ActiveRelationsFor(ctx context.Context, traderID string) ([]*CopyRelation, error) {
	query := `
		SELECT ` + relationColumns + `
		FROM copy_relations
		WHERE trader_id = $1 AND active = TRUE
		ORDER BY created_at
	`
	return r.listRelations(ctx, query, traderID)
}

// ListRelationsByFollower returns a follower's active relations.
func (r *Repository) ListRelationsByFollower(ctx context.Context, followerID string) ([]*CopyRelation, error) {
	query := `
		SELECT ` + relationColumns + `
		FROM copy_relations
		WHERE follower_id = $1 AND active = TRUE
		ORDER BY created_at
	`
	return r.listRelations(ctx, query, followerID)
}

func (r *Repository) listRelations(ctx context.Context, query string, args ...interface{}) ([]*CopyRelation, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list copy relations: %w", err)
	}
	defer rows.Close()

	var relations []*CopyRelation
	for rows.Next() {
		relation, err := scanRelation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan copy relation: %w", err)
		}
		relations = append(relations, relation)
	}

	return relations, rows.Err()
}
