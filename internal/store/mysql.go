package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/retreat896/MobileDev-Assignment02/pkg/robots"
)

// MySQL is a Repository backed by a MySQL (or TiDB) database. Robot IDs are
// the table's auto-increment keys rendered as decimal strings.
type MySQL struct {
	db *sql.DB
}

// OpenMySQL connects using a go-sql-driver DSN, verifies the connection, and
// creates the robots table if it does not exist.
func OpenMySQL(ctx context.Context, dsn string) (*MySQL, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing mysql dsn: %w", err)
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	m := &MySQL{db: db}
	if err := m.ensureTable(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

// Close releases the connection pool.
func (m *MySQL) Close() error {
	return m.db.Close()
}

func (m *MySQL) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS robots (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        name VARCHAR(255) NOT NULL,
        description TEXT NOT NULL,
        price DOUBLE NOT NULL DEFAULT 0,
        image_url TEXT NOT NULL,
        created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("creating robots table: %w", unavailable(err))
	}
	return nil
}

const selectRobot = `SELECT id, name, description, price, image_url FROM robots`

func (m *MySQL) List(ctx context.Context) ([]robots.Robot, error) {
	rows, err := m.db.QueryContext(ctx, selectRobot+` ORDER BY id`)
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	out := []robots.Robot{}
	for rows.Next() {
		r, err := scanRobot(rows)
		if err != nil {
			return nil, unavailable(err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (m *MySQL) Get(ctx context.Context, id string) (robots.Robot, error) {
	key, ok := parseKey(id)
	if !ok {
		return robots.Robot{}, ErrNotFound
	}
	return m.get(ctx, m.db, key, "")
}

func (m *MySQL) Create(ctx context.Context, d robots.Draft) (robots.Robot, error) {
	res, err := m.db.ExecContext(ctx,
		`INSERT INTO robots (name, description, price, image_url) VALUES (?, ?, ?, ?)`,
		d.Name, d.Description, d.Price, d.ImageURL,
	)
	if err != nil {
		return robots.Robot{}, unavailable(err)
	}
	key, err := res.LastInsertId()
	if err != nil {
		return robots.Robot{}, unavailable(err)
	}
	return robots.FromDraft(robots.ID(strconv.FormatInt(key, 10)), d), nil
}

func (m *MySQL) Update(ctx context.Context, id string, p robots.Patch) (robots.Robot, error) {
	key, ok := parseKey(id)
	if !ok {
		return robots.Robot{}, ErrNotFound
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return robots.Robot{}, unavailable(err)
	}
	defer tx.Rollback()

	cur, err := m.get(ctx, tx, key, " FOR UPDATE")
	if err != nil {
		return robots.Robot{}, err
	}
	next := p.Apply(cur)
	if _, err := tx.ExecContext(ctx,
		`UPDATE robots SET name = ?, description = ?, price = ?, image_url = ? WHERE id = ?`,
		next.Name, next.Description, next.Price, next.ImageURL, key,
	); err != nil {
		return robots.Robot{}, unavailable(err)
	}
	if err := tx.Commit(); err != nil {
		return robots.Robot{}, unavailable(err)
	}
	return next, nil
}

func (m *MySQL) Delete(ctx context.Context, id string) error {
	key, ok := parseKey(id)
	if !ok {
		return ErrNotFound
	}
	res, err := m.db.ExecContext(ctx, `DELETE FROM robots WHERE id = ?`, key)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Replace requires every key to be a positive integer.
func (m *MySQL) Replace(ctx context.Context, all map[string]robots.Robot) error {
	keys := make(map[string]int64, len(all))
	for id := range all {
		key, ok := parseKey(id)
		if !ok {
			return fmt.Errorf("robot id %q is not a positive integer", id)
		}
		keys[id] = key
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM robots`); err != nil {
		return unavailable(err)
	}
	for id, r := range all {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO robots (id, name, description, price, image_url) VALUES (?, ?, ?, ?, ?)`,
			keys[id], r.Name, r.Description, r.Price, r.ImageURL,
		); err != nil {
			return unavailable(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (m *MySQL) Reset(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `TRUNCATE TABLE robots`); err != nil {
		return unavailable(err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (m *MySQL) get(ctx context.Context, q queryer, key int64, suffix string) (robots.Robot, error) {
	row := q.QueryRowContext(ctx, selectRobot+` WHERE id = ?`+suffix, key)
	r, err := scanRobot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return robots.Robot{}, ErrNotFound
	}
	if err != nil {
		return robots.Robot{}, unavailable(err)
	}
	return r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRobot(s scanner) (robots.Robot, error) {
	var (
		key int64
		r   robots.Robot
	)
	if err := s.Scan(&key, &r.Name, &r.Description, &r.Price, &r.ImageURL); err != nil {
		return robots.Robot{}, err
	}
	r.ID = robots.ID(strconv.FormatInt(key, 10))
	return r, nil
}

func parseKey(id string) (int64, bool) {
	key, err := strconv.ParseInt(id, 10, 64)
	if err != nil || key <= 0 {
		return 0, false
	}
	return key, true
}

func unavailable(err error) error {
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
