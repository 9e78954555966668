// Package `db` manages the user database: credentials and access rights.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/lambdcalculus/dmbn/internal/perms"
	"github.com/lambdcalculus/dmbn/pkg/codec"
)

// Name of the protected account created on first initialization.
const OwnerName = "owner"

var (
	ErrAuthFailed    = errors.New("db: authentication failed")
	ErrUserExists    = errors.New("db: user already exists")
	ErrNotFound      = errors.New("db: user not found")
	ErrProtectedUser = errors.New("db: user is protected")
	ErrEmptyUsername = errors.New("db: username is empty")
)

// Accounts that can't be deleted.
var protected = map[string]bool{
	OwnerName: true,
}

// Options for [Init].
type Options struct {
	// Password given to the owner account when it is created.
	OwnerPassword string

	// Rights used when a user is added or changed without any.
	DefaultAccess perms.Rights

	// bcrypt cost; 0 means bcrypt.DefaultCost.
	HashCost int

	// How many hashes may run at once; <= 0 means one per CPU.
	HashWorkers int
}

// Represents a connection to the database. Used for database operations.
type Database struct {
	db *sql.DB

	// Serializes mutations.
	mu sync.Mutex

	cache         *accessCache
	hasher        *hasher
	defaultAccess perms.Rights
}

// Opens a connection to the database, creating it and the users table if
// necessary, and makes sure the owner account exists.
func Init(ctx context.Context, path string, opts Options) (*Database, error) {
	sqlDB, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("db: Couldn't connect to database (%w).", err)
	}
	// One connection; the driver serializes everything behind it.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("db: Couldn't open database at %v (%w).", path, err)
	}

	_, err = sqlDB.ExecContext(ctx, `
    CREATE TABLE IF NOT EXISTS users(
        username TEXT PRIMARY KEY,
        password BLOB NOT NULL,
        access   BLOB NOT NULL
    )`)
	if err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("db: Couldn't create users table (%w).", err)
	}

	def := opts.DefaultAccess.Clone()
	d := &Database{
		db:            sqlDB,
		cache:         newAccessCache(),
		hasher:        newHasher(opts.HashCost, opts.HashWorkers),
		defaultAccess: def,
	}
	if err := d.ensureOwner(ctx, opts.OwnerPassword); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

// Creates the owner if it is missing, and restores its rights if they were
// tampered with outside of this package.
func (d *Database) ensureOwner(ctx context.Context, password string) error {
	exists, err := d.UserExists(ctx, OwnerName)
	if err != nil {
		return err
	}
	if !exists {
		if err := d.AddUser(ctx, OwnerName, password, perms.Owner()); err != nil {
			return fmt.Errorf("db: Couldn't create owner (%w).", err)
		}
		return nil
	}
	rights, err := d.GetAccessRights(ctx, OwnerName)
	if err != nil || !rights[perms.FullAccess] || len(rights) != 1 {
		return d.ChangeAccess(ctx, OwnerName, perms.Owner())
	}
	return nil
}

// Checks whether a user with the given name exists.
func (d *Database) UserExists(ctx context.Context, username string) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("db: Couldn't query database (%w).", err)
	}
	return n > 0, nil
}

// Checks a username and password. Returns the username if they match, and
// [ErrAuthFailed] otherwise, including when storage fails.
func (d *Database) VerifyLogin(ctx context.Context, username string, password string) (string, error) {
	var digest []byte
	err := d.db.QueryRowContext(ctx, "SELECT password FROM users WHERE username = ?", username).Scan(&digest)
	if err != nil {
		return "", ErrAuthFailed
	}
	if !d.hasher.verify(ctx, password, digest) {
		return "", ErrAuthFailed
	}
	return username, nil
}

// Adds a new user. If `access` is empty, the default rights are used.
// Fails with [ErrUserExists] if the name is taken.
func (d *Database) AddUser(ctx context.Context, username string, password string, access perms.Rights) error {
	if username == "" {
		return ErrEmptyUsername
	}
	if len(access) == 0 {
		access = d.defaultAccess
	}
	blob, err := codec.Encode(access)
	if err != nil {
		return fmt.Errorf("db: Couldn't encode access rights (%w).", err)
	}
	digest, err := d.hasher.hash(ctx, password)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	res, err := d.db.ExecContext(ctx, `
    INSERT OR IGNORE INTO users
        (username, password, access)
    VALUES
        (?, ?, ?)`,
		username, digest, blob)
	if err != nil {
		return fmt.Errorf("db: Couldn't add user (%w).", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserExists
	}
	d.cache.evict(username)
	return nil
}

// Returns the access rights of a user, from the cache if possible.
// The returned map is a copy. Fails with [ErrNotFound] if there's no such user.
func (d *Database) GetAccessRights(ctx context.Context, username string) (perms.Rights, error) {
	rights, ok, gen := d.cache.get(username)
	if ok {
		return rights.Clone(), nil
	}

	var blob []byte
	err := d.db.QueryRowContext(ctx, "SELECT access FROM users WHERE username = ?", username).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: Couldn't query database (%w).", err)
	}
	rights = perms.Rights{}
	if err := codec.DecodeInto(blob, &rights); err != nil {
		return nil, fmt.Errorf("db: Corrupt access rights for %v (%w).", username, err)
	}
	d.cache.fill(username, rights, gen)
	return rights.Clone(), nil
}

// Removes a user. Protected users can't be removed.
func (d *Database) DeleteUser(ctx context.Context, username string) error {
	if protected[username] {
		return ErrProtectedUser
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	res, err := d.db.ExecContext(ctx, "DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return fmt.Errorf("db: Couldn't remove user (%w).", err)
	}
	d.cache.evict(username)
	return rowsOrNotFound(res)
}

// Sets a new password for a user.
func (d *Database) ChangePassword(ctx context.Context, username string, password string) error {
	digest, err := d.hasher.hash(ctx, password)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	res, err := d.db.ExecContext(ctx, "UPDATE users SET password = ? WHERE username = ?", digest, username)
	if err != nil {
		return fmt.Errorf("db: Couldn't change password (%w).", err)
	}
	d.cache.evict(username)
	return rowsOrNotFound(res)
}

// Replaces the access rights of a user. Empty rights mean the default ones.
// The owner always ends up with full access, whatever is passed.
func (d *Database) ChangeAccess(ctx context.Context, username string, access perms.Rights) error {
	switch {
	case username == OwnerName:
		access = perms.Owner()
	case len(access) == 0:
		access = d.defaultAccess
	}
	blob, err := codec.Encode(access)
	if err != nil {
		return fmt.Errorf("db: Couldn't encode access rights (%w).", err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	res, err := d.db.ExecContext(ctx, "UPDATE users SET access = ? WHERE username = ?", blob, username)
	if err != nil {
		return fmt.Errorf("db: Couldn't change access (%w).", err)
	}
	d.cache.evict(username)
	return rowsOrNotFound(res)
}

// Checks if a user has all the `required` permissions. Unknown users and
// storage errors yield false.
func (d *Database) CheckAccessLogin(ctx context.Context, username string, required ...string) bool {
	rights, err := d.GetAccessRights(ctx, username)
	if err != nil {
		return false
	}
	return rights.Check(required...)
}

// Lists all usernames, sorted.
func (d *Database) Users(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT username FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("db: Couldn't query database (%w).", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return users, fmt.Errorf("db: Error scanning row (%w).", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Returns the access rights given to users created without explicit ones.
func (d *Database) DefaultAccess() perms.Rights {
	return d.defaultAccess.Clone()
}

// Closes the database connection.
func (d *Database) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("db: Error closing database (%w).", err)
	}
	return nil
}

func rowsOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db: Couldn't count affected rows (%w).", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
