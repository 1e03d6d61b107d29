package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"emperror.dev/errors"
	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/yamori/fedi"
	"github.com/yamori/fedi/lib/array"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite() (*SQLite, error) {
	db, err := sql.Open("sqlite3", "./database.db?_fk=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", errors.WithStack(err))
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			private_key TEXT NOT NULL,
			status INTEGER NOT NULL DEFAULT 0,
			hide_collections INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS follows (
			id TEXT PRIMARY KEY,
			from_id TEXT NOT NULL,
			to_id TEXT NOT NULL,
			status INTEGER NOT NULL,
			UNIQUE(from_id, to_id)
		);

		CREATE INDEX IF NOT EXISTS follows_to_idx ON follows(to_id, status);
		CREATE INDEX IF NOT EXISTS follows_from_idx ON follows(from_id, status);`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed creating schema resources: %w", errors.WithStack(err))
	}

	return &SQLite{db: db}, nil
}

// account

type AccountDB struct {
	*SQLite
}

func NewAccountDB(db *SQLite) fedi.AccountStore {
	return &AccountDB{SQLite: db}
}

func (d *AccountDB) Save(c context.Context, acc *fedi.Account) error {
	_, err := d.db.ExecContext(c, `
		INSERT INTO accounts (id, username, email, password, private_key, status, hide_collections)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		acc.ID, acc.Username, acc.Email, acc.Password, acc.PrivateKey,
		acc.Status.Value(), acc.HideCollections,
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", errors.WithStack(err))
	}
	return nil
}

const accountColumns = `id, username, email, password, private_key, status, hide_collections`

func (d *AccountDB) Find(c context.Context, id string) (*fedi.Account, error) {
	row := d.db.QueryRowContext(c,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

func (d *AccountDB) FindByEmail(c context.Context, email string) (*fedi.Account, error) {
	row := d.db.QueryRowContext(c,
		`SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
	return scanAccount(row)
}

func (d *AccountDB) FindByUsername(c context.Context, username string) (*fedi.Account, error) {
	row := d.db.QueryRowContext(c,
		`SELECT `+accountColumns+` FROM accounts WHERE username = ?`, username)
	return scanAccount(row)
}

func (d *AccountDB) UpdateStatus(c context.Context, id string, status fedi.AccountStatus) error {
	_, err := d.db.ExecContext(c,
		`UPDATE accounts SET status = ? WHERE id = ?`, status.Value(), id)
	if err != nil {
		return fmt.Errorf("failed to update account status: %w", errors.WithStack(err))
	}
	return nil
}

func (d *AccountDB) UpdateHideCollections(c context.Context, id string, hide bool) error {
	_, err := d.db.ExecContext(c,
		`UPDATE accounts SET hide_collections = ? WHERE id = ?`, hide, id)
	if err != nil {
		return fmt.Errorf("failed to update account visibility: %w", errors.WithStack(err))
	}
	return nil
}

func scanAccount(row *sql.Row) (*fedi.Account, error) {
	var acc fedi.Account
	var status int
	err := row.Scan(&acc.ID, &acc.Username, &acc.Email, &acc.Password,
		&acc.PrivateKey, &status, &acc.HideCollections)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fedi.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", errors.WithStack(err))
	}
	acc.Status = fedi.FindAccountStatus(status)
	return &acc, nil
}

// follow

type FollowDB struct {
	*SQLite
}

func NewFollowDB(db *SQLite) fedi.FollowStore {
	return &FollowDB{SQLite: db}
}

// followRow - follows テーブルの1行
// id はULIDで作成順に並ぶ
type followRow struct {
	ID     string
	FromID string
	ToID   string
}

func (d *FollowDB) RequestFollow(c context.Context, fromID string, toID string) error {
	return d.upsertFollow(c, fromID, toID, fedi.FollowStatusPending)
}

func (d *FollowDB) Follow(c context.Context, fromID string, toID string) error {
	return d.upsertFollow(c, fromID, toID, fedi.FollowStatusFollowing)
}

func (d *FollowDB) upsertFollow(c context.Context, fromID string, toID string, status fedi.FollowStatus) error {
	_, err := d.db.ExecContext(c, `
		INSERT INTO follows (id, from_id, to_id, status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(from_id, to_id) DO UPDATE SET status = excluded.status`,
		fedi.GenerateSortableID(), fromID, toID, status.Value(),
	)
	if err != nil {
		return fmt.Errorf("failed to create follow: %w", errors.WithStack(err))
	}
	return nil
}

func (d *FollowDB) Unfollow(c context.Context, fromID string, toID string) error {
	_, err := d.db.ExecContext(c,
		`DELETE FROM follows WHERE from_id = ? AND to_id = ?`, fromID, toID)
	if err != nil {
		return fmt.Errorf("failed to delete follow: %w", errors.WithStack(err))
	}
	return nil
}

func (d *FollowDB) FindFollowStatus(c context.Context, fromID string, toID string) (fedi.FollowStatus, error) {
	var status int
	err := d.db.QueryRowContext(c,
		`SELECT status FROM follows WHERE from_id = ? AND to_id = ?`,
		fromID, toID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fedi.FollowStatusUnfollowing, nil
		}
		return fedi.FollowStatusUnknown, fmt.Errorf("failed to get follow: %w", errors.WithStack(err))
	}
	return fedi.FindFollowStatus(status), nil
}

func (d *FollowDB) CountFollowers(c context.Context, toID string) (int, error) {
	var total int
	err := d.db.QueryRowContext(c,
		`SELECT COUNT(*) FROM follows WHERE to_id = ? AND status = ?`,
		toID, fedi.FollowStatusFollowing.Value(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count followers: %w", errors.WithStack(err))
	}
	return total, nil
}

func (d *FollowDB) ListFollowersPage(c context.Context, toID string, page int, size int) ([]string, error) {
	follows, err := d.listFollowPage(c, `
		SELECT id, from_id, to_id FROM follows
		WHERE to_id = ? AND status = ?
		ORDER BY id ASC
		LIMIT ? OFFSET ?`,
		toID, page, size,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get followers: %w", err)
	}
	return array.Map(follows, func(follow followRow) string {
		return follow.FromID
	}), nil
}

func (d *FollowDB) CountFollowing(c context.Context, fromID string) (int, error) {
	var total int
	err := d.db.QueryRowContext(c,
		`SELECT COUNT(*) FROM follows WHERE from_id = ? AND status = ?`,
		fromID, fedi.FollowStatusFollowing.Value(),
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count following: %w", errors.WithStack(err))
	}
	return total, nil
}

func (d *FollowDB) ListFollowingPage(c context.Context, fromID string, page int, size int) ([]string, error) {
	follows, err := d.listFollowPage(c, `
		SELECT id, from_id, to_id FROM follows
		WHERE from_id = ? AND status = ?
		ORDER BY id ASC
		LIMIT ? OFFSET ?`,
		fromID, page, size,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get following: %w", err)
	}
	return array.Map(follows, func(follow followRow) string {
		return follow.ToID
	}), nil
}

func (d *FollowDB) listFollowPage(c context.Context, query string, actorID string, page int, size int) ([]followRow, error) {
	rows, err := d.db.QueryContext(c, query,
		actorID, fedi.FollowStatusFollowing.Value(), size, (page-1)*size)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	var follows []followRow
	for rows.Next() {
		var follow followRow
		if err := rows.Scan(&follow.ID, &follow.FromID, &follow.ToID); err != nil {
			return nil, errors.WithStack(err)
		}
		follows = append(follows, follow)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return follows, nil
}

// session

type Sqlite3Session struct {
	sess *scs.SessionManager
	db   *sql.DB
}

func NewSession() (fedi.Session, error) {
	db, err := sql.Open("sqlite3", "session.db")
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", errors.WithStack(err))
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			token TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			expiry REAL NOT NULL
		);

		CREATE INDEX IF NOT EXISTS sessions_expiry_idx ON sessions(expiry);`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session table: %w", errors.WithStack(err))
	}

	sess := scs.New()
	sess.Store = sqlite3store.New(db)
	sess.Lifetime = 30 * 24 * time.Hour
	sess.Cookie.Name = "session_id"
	sess.Cookie.HttpOnly = true
	sess.Cookie.Persist = true
	sess.Cookie.SameSite = http.SameSiteStrictMode
	sess.Cookie.Secure = true

	return &Sqlite3Session{
		sess: sess,
		db:   db,
	}, nil
}

func (s *Sqlite3Session) Close() error {
	return s.db.Close()
}

func (s *Sqlite3Session) Set(c context.Context, key string, value any) {
	s.sess.Put(c, key, value)
}

func (s *Sqlite3Session) Get(c context.Context, key string) any {
	return s.sess.Get(c, key)
}

func (s *Sqlite3Session) Delete(c context.Context, key string) {
	s.sess.Remove(c, key)
}

func (s *Sqlite3Session) Clear(c context.Context) {
	s.sess.Clear(c)
}

func (s *Sqlite3Session) Middleware(next http.Handler) http.Handler {
	return s.sess.LoadAndSave(next)
}
