package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/freeeve/warband/internal/model"
)

// BattleRepo handles battle record database operations.
type BattleRepo struct {
	db *sql.DB
}

// NewBattleRepo creates a BattleRepo.
func NewBattleRepo(db *sql.DB) *BattleRepo {
	return &BattleRepo{db: db}
}

const battleColumns = `id, game_id, turn, resolver_id, intense, outcome, rounds, events, deaths, setup, created_at`

// Create inserts a battle. The caller assigns the ID; CreatedAt is filled in.
func (r *BattleRepo) Create(ctx context.Context, b *model.Battle) error {
	deaths := b.Deaths
	if len(deaths) == 0 {
		deaths = []byte("[]")
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO battles (id, game_id, turn, resolver_id, intense, outcome, rounds, events, deaths, setup)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		b.ID, b.GameID, b.Turn, b.ResolverID, b.Intense, b.Outcome, b.Rounds, b.Events, []byte(deaths), []byte(b.Setup),
	).Scan(&b.CreatedAt)
	if err != nil {
		return fmt.Errorf("create battle: %w", err)
	}
	return nil
}

// FindByID returns a battle by ID, or nil if it does not exist.
func (r *BattleRepo) FindByID(ctx context.Context, id string) (*model.Battle, error) {
	b, err := scanBattle(r.db.QueryRowContext(ctx,
		`SELECT `+battleColumns+` FROM battles WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find battle: %w", err)
	}
	return b, nil
}

// ListByGame returns a game's battles in the order they were fought.
func (r *BattleRepo) ListByGame(ctx context.Context, gameID string) ([]model.Battle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+battleColumns+` FROM battles WHERE game_id = $1 ORDER BY turn, created_at`, gameID,
	)
	if err != nil {
		return nil, fmt.Errorf("list battles: %w", err)
	}
	defer rows.Close()

	var battles []model.Battle
	for rows.Next() {
		b, err := scanBattle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan battle: %w", err)
		}
		battles = append(battles, *b)
	}
	return battles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBattle(row rowScanner) (*model.Battle, error) {
	var b model.Battle
	var deaths, setup []byte
	if err := row.Scan(&b.ID, &b.GameID, &b.Turn, &b.ResolverID, &b.Intense, &b.Outcome,
		&b.Rounds, &b.Events, &deaths, &setup, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.Deaths = deaths
	b.Setup = setup
	return &b, nil
}
