package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"fieldnotes/api/internal/util"
)

// ErrInvalidCredentials reports a failed password check.
var ErrInvalidCredentials = errors.New("invalid email or password")

// ErrEmailTaken reports a sign-up with an already-registered email.
var ErrEmailTaken = errors.New("email already registered")

// PostgresDirectory implements user and group lookups over the users,
// groups, and group_memberships tables.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

const userColumns = `id, first_name, last_name, display_name, email, avatar_url`

// UserByID resolves a single user with group memberships loaded.
func (d *PostgresDirectory) UserByID(ctx context.Context, id string) (User, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, err
		}
		return User{}, fmt.Errorf("lookup user %s: %w", id, err)
	}
	if user.GroupIDs, err = d.groupIDs(ctx, user.ID); err != nil {
		return User{}, err
	}
	return user, nil
}

// UsersByIDs bulk-resolves author ids. Zero ids short-circuits to an empty
// result without touching the database. Unknown ids are simply absent from
// the result; callers render them as the deleted-user identity.
func (d *PostgresDirectory) UsersByIDs(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `SELECT ` + userColumns + ` FROM users WHERE id IN (` +
		strings.Join(placeholders, ",") + `) ORDER BY display_name`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lookup users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// GroupsByName resolves groups by exact name, used for the four role groups.
func (d *PostgresDirectory) GroupsByName(ctx context.Context, name string) ([]Group, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT id, name FROM groups WHERE name=$1`, name)
	if err != nil {
		return nil, fmt.Errorf("lookup groups %q: %w", name, err)
	}
	defer rows.Close()

	groups := []Group{}
	for rows.Next() {
		var g Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// SignIn verifies an email/password pair and returns the resolved user.
func (d *PostgresDirectory) SignIn(ctx context.Context, email, password string) (User, error) {
	var user User
	var hash string
	err := d.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`, password_hash FROM users WHERE email=$1
	`, email).Scan(&user.ID, &user.FirstName, &user.LastName, &user.DisplayName, &user.Email, &user.AvatarURL, &hash)
	if err != nil {
		return User{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrInvalidCredentials
	}
	if user.GroupIDs, err = d.groupIDs(ctx, user.ID); err != nil {
		return User{}, err
	}
	return user, nil
}

// CreateUser inserts a user with a bcrypt-hashed password and returns the
// generated id. An already-registered email returns ErrEmailTaken.
func (d *PostgresDirectory) CreateUser(ctx context.Context, user User, password string) (string, error) {
	var taken bool
	err := d.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)`, user.Email).Scan(&taken)
	if err != nil {
		return "", fmt.Errorf("check email: %w", err)
	}
	if taken {
		return "", ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	id := util.NewID("usr")
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO users (id, first_name, last_name, display_name, email, avatar_url, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, user.FirstName, user.LastName, user.DisplayName, user.Email, user.AvatarURL, string(hash))
	if err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (d *PostgresDirectory) groupIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT group_id FROM group_memberships WHERE user_id=$1 ORDER BY group_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("lookup memberships: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.DisplayName, &user.Email, &user.AvatarURL)
	return user, err
}
