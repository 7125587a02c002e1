package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/justinabrahms/chessduel/internal/chess"
)

// migrations are applied in order and recorded in _migrations by name.
var migrations = []struct {
	name string
	sql  string
}{
	{"0001_games", `
CREATE TABLE games (
	id              TEXT PRIMARY KEY,
	white_player_id TEXT NOT NULL,
	black_player_id TEXT NOT NULL,
	status          TEXT NOT NULL,
	current_turn    TEXT NOT NULL,
	move_count      INTEGER NOT NULL DEFAULT 0,
	winner_id       TEXT,
	created_at      TEXT NOT NULL,
	completed_at    TEXT,
	CHECK (white_player_id <> black_player_id)
);
CREATE INDEX idx_games_white ON games(white_player_id, status);
CREATE INDEX idx_games_black ON games(black_player_id, status);
CREATE INDEX idx_games_status ON games(status);`},
	{"0002_moves", `
CREATE TABLE moves (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id        TEXT NOT NULL REFERENCES games(id),
	player_id      TEXT NOT NULL,
	from_square    TEXT NOT NULL,
	to_square      TEXT NOT NULL,
	piece          TEXT NOT NULL,
	captured_piece TEXT,
	promotion      TEXT,
	san            TEXT NOT NULL,
	move_number    INTEGER NOT NULL,
	created_at     TEXT NOT NULL,
	UNIQUE (game_id, move_number)
);`},
	{"0003_users", `
CREATE TABLE users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	created_at    TEXT NOT NULL
);
CREATE UNIQUE INDEX idx_users_username ON users(lower(username));`},
	{"0004_invitations", `
CREATE TABLE invitations (
	id           TEXT PRIMARY KEY,
	from_user_id TEXT NOT NULL,
	to_user_id   TEXT NOT NULL,
	status       TEXT NOT NULL,
	game_id      TEXT,
	created_at   TEXT NOT NULL,
	responded_at TEXT
);
CREATE INDEX idx_invitations_to ON invitations(to_user_id, status);`},
}

// Fixed width so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates if missing) a SQLite database file and
// applies pending migrations.
func OpenSQLite(dsn string) (Store, error) {
	dir := filepath.Dir(dsn)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", dsn+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS _migrations (name TEXT PRIMARY KEY);`); err != nil {
		return fmt.Errorf("create _migrations: %w", err)
	}

	for _, m := range migrations {
		var done int
		err := db.QueryRow(`SELECT 1 FROM _migrations WHERE name=?`, m.name).Scan(&done)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", m.name, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO _migrations(name) VALUES (?)`, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
		log.Info().Str("migration", m.name).Msg("applied")
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ----------------------------- games ----------------------------------

const gameColumns = `id, white_player_id, black_player_id, status, current_turn, move_count, winner_id, created_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGame(row rowScanner) (*chess.Game, error) {
	var (
		g           chess.Game
		winner      sql.NullString
		createdAt   string
		completedAt sql.NullString
	)
	if err := row.Scan(&g.ID, &g.WhitePlayerID, &g.BlackPlayerID, &g.Status, &g.CurrentTurn,
		&g.MoveCount, &winner, &createdAt, &completedAt); err != nil {
		return nil, err
	}
	g.WinnerID = winner.String

	var err error
	if g.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("game %s created_at: %w", g.ID, err)
	}
	if g.CompletedAt, err = parseTimePtr(completedAt); err != nil {
		return nil, fmt.Errorf("game %s completed_at: %w", g.ID, err)
	}
	return &g, nil
}

func (s *sqliteStore) CreateGame(ctx context.Context, g *chess.Game) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO games(`+gameColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.WhitePlayerID, g.BlackPlayerID, g.Status, g.CurrentTurn, g.MoveCount,
		nullString(g.WinnerID), formatTime(g.CreatedAt), formatTimePtr(g.CompletedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("game %s: %w", g.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert game %s: %w", g.ID, err)
	}
	return nil
}

func (s *sqliteStore) GetGame(ctx context.Context, id string) (*chess.Game, error) {
	g, err := scanGame(s.db.QueryRowContext(ctx, `SELECT `+gameColumns+` FROM games WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("game %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select game %s: %w", id, err)
	}
	return g, nil
}

// updateGame writes g only if the stored game is still in progress and its
// move count is expectedMoveCount. A terminal game is never rewritten.
func updateGame(ctx context.Context, tx *sql.Tx, g *chess.Game, expectedMoveCount int) error {
	res, err := tx.ExecContext(ctx, `
UPDATE games
SET status=?, current_turn=?, move_count=?, winner_id=?, completed_at=?
WHERE id=? AND move_count=? AND status=?`,
		g.Status, g.CurrentTurn, g.MoveCount, nullString(g.WinnerID), formatTimePtr(g.CompletedAt),
		g.ID, expectedMoveCount, chess.StatusInProgress)
	if err != nil {
		return fmt.Errorf("update game %s: %w", g.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update game %s: %w", g.ID, err)
	}
	if n == 1 {
		return nil
	}

	var status chess.GameStatus
	err = tx.QueryRowContext(ctx, `SELECT status FROM games WHERE id=?`, g.ID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("game %s: %w", g.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("select game %s: %w", g.ID, err)
	}
	if status != chess.StatusInProgress {
		return fmt.Errorf("game %s is %s: %w", g.ID, status, ErrConflict)
	}
	return fmt.Errorf("game %s expected move count %d: %w", g.ID, expectedMoveCount, ErrConflict)
}

func (s *sqliteStore) UpdateGame(ctx context.Context, g *chess.Game) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := updateGame(ctx, tx, g, g.MoveCount); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *sqliteStore) CommitMove(ctx context.Context, g *chess.Game, m *chess.Move) error {
	if m.GameID != g.ID || g.MoveCount != m.MoveNumber {
		return fmt.Errorf("game %s move %d with move count %d: %w", g.ID, m.MoveNumber, g.MoveCount, ErrConflict)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := updateGame(ctx, tx, g, m.MoveNumber-1); err != nil {
		return err
	}

	var captured sql.NullString
	if m.CapturedPiece != nil {
		captured = nullString(m.CapturedPiece.Letter())
	}
	res, err := tx.ExecContext(ctx, `
INSERT INTO moves(game_id, player_id, from_square, to_square, piece, captured_piece, promotion, san, move_number, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.GameID, m.PlayerID, m.From.String(), m.To.String(), m.Piece.Letter(), captured,
		nullString(m.Promotion.Letter()), m.Notation, m.MoveNumber, formatTime(m.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("game %s move %d: %w", m.GameID, m.MoveNumber, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("insert move: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert move: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit move: %w", err)
	}
	m.ID = id
	return nil
}

func (s *sqliteStore) ListMoves(ctx context.Context, gameID string, afterID int64) ([]chess.Move, error) {
	if _, err := s.GetGame(ctx, gameID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, game_id, player_id, from_square, to_square, piece, captured_piece, promotion, san, move_number, created_at
FROM moves WHERE game_id=? AND id>? ORDER BY move_number ASC`, gameID, afterID)
	if err != nil {
		return nil, fmt.Errorf("select moves: %w", err)
	}
	defer rows.Close()

	moves := []chess.Move{}
	for rows.Next() {
		var (
			m                       chess.Move
			from, to, piece, created string
			captured, promotion     sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.GameID, &m.PlayerID, &from, &to, &piece, &captured, &promotion,
			&m.Notation, &m.MoveNumber, &created); err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		if m.From, err = chess.ParseSquare(from); err != nil {
			return nil, err
		}
		if m.To, err = chess.ParseSquare(to); err != nil {
			return nil, err
		}
		if m.Piece, err = chess.ParsePieceKind(piece); err != nil {
			return nil, err
		}
		if captured.Valid {
			p, err := chess.ParsePiece(captured.String)
			if err != nil {
				return nil, err
			}
			m.CapturedPiece = &p
		}
		if promotion.Valid {
			if m.Promotion, err = chess.ParsePieceKind(promotion.String); err != nil {
				return nil, err
			}
		}
		if m.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		moves = append(moves, m)
	}
	return moves, rows.Err()
}

func (s *sqliteStore) queryGames(ctx context.Context, where string, args ...interface{}) ([]*chess.Game, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+gameColumns+` FROM games WHERE `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	defer rows.Close()

	games := []*chess.Game{}
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

func (s *sqliteStore) ListGamesByPlayer(ctx context.Context, playerID string, status chess.GameStatus) ([]*chess.Game, error) {
	if status == "" {
		return s.queryGames(ctx, `(white_player_id=? OR black_player_id=?)`, playerID, playerID)
	}
	return s.queryGames(ctx, `(white_player_id=? OR black_player_id=?) AND status=?`, playerID, playerID, status)
}

func (s *sqliteStore) ListGamesByStatus(ctx context.Context, status chess.GameStatus) ([]*chess.Game, error) {
	return s.queryGames(ctx, `status=?`, status)
}

// ----------------------------- users ----------------------------------

func (s *sqliteStore) CreateUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users(id, username, display_name, password_hash, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.DisplayName, u.PasswordHash, formatTime(u.CreatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("username %s: %w", u.Username, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *sqliteStore) getUser(ctx context.Context, where, arg string) (*User, error) {
	var (
		u       User
		created string
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, username, display_name, password_hash, created_at FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Username, &u.DisplayName, &u.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *sqliteStore) GetUser(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx, `id=?`, id)
}

func (s *sqliteStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, `lower(username)=?`, strings.ToLower(username))
}

// ----------------------------- invitations ----------------------------

const invitationColumns = `id, from_user_id, to_user_id, status, game_id, created_at, responded_at`

func scanInvitation(row rowScanner) (*Invitation, error) {
	var (
		inv       Invitation
		gameID    sql.NullString
		created   string
		responded sql.NullString
	)
	if err := row.Scan(&inv.ID, &inv.FromUserID, &inv.ToUserID, &inv.Status, &gameID, &created, &responded); err != nil {
		return nil, err
	}
	inv.GameID = gameID.String

	var err error
	if inv.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if inv.RespondedAt, err = parseTimePtr(responded); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *sqliteStore) CreateInvitation(ctx context.Context, inv *Invitation) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO invitations(`+invitationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.FromUserID, inv.ToUserID, inv.Status, nullString(inv.GameID),
		formatTime(inv.CreatedAt), formatTimePtr(inv.RespondedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("invitation %s: %w", inv.ID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

func (s *sqliteStore) GetInvitation(ctx context.Context, id string) (*Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("invitation %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select invitation: %w", err)
	}
	return inv, nil
}

func (s *sqliteStore) UpdateInvitation(ctx context.Context, inv *Invitation) error {
	res, err := s.db.ExecContext(ctx, `UPDATE invitations SET status=?, game_id=?, responded_at=? WHERE id=?`,
		inv.Status, nullString(inv.GameID), formatTimePtr(inv.RespondedAt), inv.ID)
	if err != nil {
		return fmt.Errorf("update invitation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("invitation %s: %w", inv.ID, ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) ListPendingInvitations(ctx context.Context, toUserID string) ([]*Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE to_user_id=? AND status=? ORDER BY created_at ASC`,
		toUserID, InvitationPending)
	if err != nil {
		return nil, fmt.Errorf("select invitations: %w", err)
	}
	defer rows.Close()

	pending := []*Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		pending = append(pending, inv)
	}
	return pending, rows.Err()
}
