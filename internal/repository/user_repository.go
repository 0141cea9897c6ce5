package repository

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/channelport/channelport-api/internal/models"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type UserRepository interface {
	CreateUser(tenantID, email, password, firstName, lastName string, roles []models.UserRole) (models.User, error)
	AuthenticateUser(email, password string) (models.User, error)
	ListUsersByTenant(tenantID string) ([]models.User, error)
	GetUserByID(userID string) (models.User, error)
	UpdateUserRoles(userID string, roles []models.UserRole) (models.User, error)
	DeleteUser(userID string) error
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, tenant_id, email, first_name, last_name, password_hash, is_active, roles, created_at`

func (u *userRepository) CreateUser(tenantID, email, password, firstName, lastName string, roles []models.UserRole) (models.User, error) {
	normalized := models.EnsureDefaultRole(models.NormalizeRoles(roles))
	if !models.IsValidRoleList(normalized) {
		return models.User{}, errors.New("invalid roles")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		TenantID:     tenantID,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		FirstName:    strings.TrimSpace(firstName),
		LastName:     strings.TrimSpace(lastName),
		PasswordHash: string(hash),
		IsActive:     true,
		Roles:        normalized,
	}

	const query = `
		INSERT INTO tenant.users (tenant_id, email, first_name, last_name, password_hash, is_active, roles)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err = u.db.QueryRow(query,
		user.TenantID, user.Email, user.FirstName, user.LastName,
		user.PasswordHash, user.IsActive, pq.Array(rolesToStrings(user.Roles)),
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (u *userRepository) AuthenticateUser(email, password string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM tenant.users
		WHERE email = $1 AND deleted_at IS NULL
	`
	user, err := scanUser(u.db.QueryRow(query, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}

	if !user.IsActive {
		return models.User{}, errors.New("user is inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (u *userRepository) GetUserByID(userID string) (models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM tenant.users
		WHERE id = $1 AND deleted_at IS NULL
	`
	user, err := scanUser(u.db.QueryRow(query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return user, err
}

func (u *userRepository) UpdateUserRoles(userID string, roles []models.UserRole) (models.User, error) {
	normalized := models.EnsureDefaultRole(models.NormalizeRoles(roles))
	if !models.IsValidRoleList(normalized) {
		return models.User{}, errors.New("invalid roles")
	}

	const query = `
		UPDATE tenant.users
		SET roles = $2, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING ` + userColumns + `
	`
	user, err := scanUser(u.db.QueryRow(query, userID, pq.Array(rolesToStrings(normalized))))
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return user, err
}

func (u *userRepository) DeleteUser(userID string) error {
	const query = `
		UPDATE tenant.users
		SET is_active = FALSE, deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	res, err := u.db.Exec(query, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (u *userRepository) ListUsersByTenant(tenantID string) ([]models.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM tenant.users
		WHERE tenant_id = $1 AND deleted_at IS NULL
		ORDER BY email
	`
	rows, err := u.db.Query(query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func scanUser(scanner interface {
	Scan(dest ...interface{}) error
}) (models.User, error) {
	var user models.User
	var roles pq.StringArray
	if err := scanner.Scan(
		&user.ID, &user.TenantID, &user.Email, &user.FirstName, &user.LastName,
		&user.PasswordHash, &user.IsActive, &roles, &user.CreatedAt,
	); err != nil {
		return models.User{}, err
	}

	parsed := make([]models.UserRole, 0, len(roles))
	for _, role := range roles {
		parsed = append(parsed, models.UserRole(role))
	}
	user.Roles = models.EnsureDefaultRole(models.NormalizeRoles(parsed))
	if !models.IsValidRoleList(user.Roles) {
		return models.User{}, errors.New("user has invalid roles")
	}
	return user, nil
}

func rolesToStrings(roles []models.UserRole) []string {
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		out = append(out, string(role))
	}
	return out
}
