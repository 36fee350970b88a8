// Package dao layers the domain tables on top of the metastore's dynamic
// table model. Each DAO declares its own schema on construction and owns the
// mapping between records and domain types.
package dao

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/musicvault/musicvault/internal/constants"
	"github.com/musicvault/musicvault/internal/domain"
	"github.com/musicvault/musicvault/internal/metastore"
)

var (
	// ErrEmailTaken is returned when a sign-up collides with an existing email.
	// The UNIQUE constraint on the Email column is the authoritative check;
	// the pre-check in EmailExists is advisory only.
	ErrEmailTaken = errors.New("email already registered")

	// ErrUserNotFound is returned when no user matches the given email.
	ErrUserNotFound = errors.New("user not found")
)

// Users persists the local account mirror.
type Users struct {
	db *metastore.DB
}

// NewUsers creates the Users table if needed and returns the DAO.
func NewUsers(db *metastore.DB) (*Users, error) {
	err := db.CreateTable(constants.UsersTable, []metastore.Column{
		{Name: "Id", Type: "TEXT PRIMARY KEY"},
		{Name: "Name", Type: "TEXT"},
		{Name: "Email", Type: "TEXT UNIQUE"},
		{Name: "PasswordHash", Type: "TEXT"},
		{Name: "BirthdayHash", Type: "TEXT"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure users table: %w", err)
	}
	return &Users{db: db}, nil
}

// NewUser builds a User with hashed credentials.
func NewUser(name, email, password string, birthday time.Time) domain.User {
	return domain.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: HashSecret(password),
		BirthdayHash: HashSecret(FormatBirthday(birthday)),
	}
}

// Insert stores a user. Duplicate emails are rejected by the UNIQUE
// constraint and surface as ErrEmailTaken.
func (u *Users) Insert(user domain.User) error {
	err := u.db.Insert(constants.UsersTable, metastore.Record{
		"Id":           user.ID,
		"Name":         user.Name,
		"Email":        user.Email,
		"PasswordHash": user.PasswordHash,
		"BirthdayHash": user.BirthdayHash,
	})
	if metastore.IsConstraintErr(err) {
		return fmt.Errorf("%w: %s", ErrEmailTaken, user.Email)
	}
	return err
}

// GetByEmail loads the user with the given email.
func (u *Users) GetByEmail(email string) (*domain.User, error) {
	rows, err := u.db.Query(constants.UsersTable, metastore.Eq("Email", email))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}

	rec := rows[0]
	return &domain.User{
		ID:           rec.String("Id"),
		Name:         rec.String("Name"),
		Email:        rec.String("Email"),
		PasswordHash: rec.String("PasswordHash"),
		BirthdayHash: rec.String("BirthdayHash"),
	}, nil
}

// EmailExists reports whether a user with the email exists. Not atomic with
// Insert; use only for early feedback.
func (u *Users) EmailExists(email string) (bool, error) {
	rows, err := u.db.Query(constants.UsersTable, metastore.Eq("Email", email))
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Validate checks an email/password pair against the stored hash.
func (u *Users) Validate(email, password string) (*domain.User, error) {
	user, err := u.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if !VerifySecret(user.PasswordHash, password) {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, email)
	}
	return user, nil
}

// HashSecret hashes a secret with a random salt, single SHA-256 round. The
// salt is kept hex-encoded in front of the digest, separated by '$'.
func HashSecret(secret string) string {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		panic(err) // crypto/rand failure is unrecoverable
	}
	return hex.EncodeToString(salt) + "$" + digest(salt, secret)
}

// VerifySecret checks a secret against a stored salted hash.
func VerifySecret(stored, secret string) bool {
	saltHex, want, found := strings.Cut(stored, "$")
	if !found {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	return digest(salt, secret) == want
}

func digest(salt []byte, secret string) string {
	h := sha256.New()
	h.Write(salt)
	h.Write([]byte(secret))
	return hex.EncodeToString(h.Sum(nil))
}

// FormatBirthday renders a birthday the way the hash expects it.
func FormatBirthday(t time.Time) string {
	return t.Format("01-02-2006")
}
