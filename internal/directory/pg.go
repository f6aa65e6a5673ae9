package directory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register "pgx" database/sql driver
)

// PG is the Postgres-backed directory source.
type PG struct {
	db *sql.DB
}

// OpenPG opens and pings the directory database.
func OpenPG(ctx context.Context, dsn string) (*PG, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("directory: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("directory: ping postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	return &PG{db: db}, nil
}

// Close releases the connection pool.
func (p *PG) Close() error { return p.db.Close() }

const userColumns = "id, email, password_hash, admin, status, region, services"

func (p *PG) UserByID(ctx context.Context, id string, opts LookupOpts) (*User, error) {
	row := p.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("directory: query user %s: %w", id, err)
	}
	if !opts.Raw {
		sanitized := u.Sanitized()
		return &sanitized, nil
	}
	return u, nil
}

func (p *PG) ActiveUsers(ctx context.Context) ([]User, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE status = $1 ORDER BY id", StatusActive)
	if err != nil {
		return nil, fmt.Errorf("directory: query active users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("directory: scan user: %w", err)
		}
		users = append(users, u.Sanitized())
	}
	return users, rows.Err()
}

func (p *PG) UpdateUser(ctx context.Context, id string, u User) error {
	services, err := json.Marshal(u.Services)
	if err != nil {
		return fmt.Errorf("directory: marshal services: %w", err)
	}
	res, err := p.db.ExecContext(ctx,
		`UPDATE users SET email = $1, admin = $2, status = $3, region = $4, services = $5
		 WHERE id = $6`,
		u.Email, u.Admin, u.Status, u.Region, services, id)
	if err != nil {
		return fmt.Errorf("directory: update user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var email, passwordHash, region sql.NullString
	var services []byte

	if err := row.Scan(&u.ID, &email, &passwordHash, &u.Admin, &u.Status, &region, &services); err != nil {
		return nil, err
	}
	u.Email = email.String
	u.PasswordHash = passwordHash.String
	u.Region = region.String
	if len(services) > 0 {
		if err := json.Unmarshal(services, &u.Services); err != nil {
			return nil, fmt.Errorf("services for %s: %w", u.ID, err)
		}
	}
	return &u, nil
}
