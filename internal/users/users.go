// Package users stores registered accounts and verifies their credentials.
package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/surveypay/internal/database"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	userIDPrefix      = "user_"
	userIDLength      = 12
	minPasswordLength = 6
	maxPasswordBytes  = 72
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnknownUser        = errors.New("unknown user")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidConfig      = errors.New("invalid users config")
)

// Role grants access to administrative routes.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// ParseRole validates a stored or supplied role.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleMember:
		return RoleMember, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
	}
}

// User is a registered account holder.
type User struct {
	UserID    string
	Email     string
	Name      string
	AvatarURL string
	Role      Role
	CreatedAt time.Time
}

// IsAdmin reports whether the user may resolve withdrawals.
func (user User) IsAdmin() bool {
	return user.Role == RoleAdmin
}

// Registration carries the fields accepted by Register.
type Registration struct {
	Email     string
	Password  string
	Name      string
	AvatarURL string
}

// Option configures a Service.
type Option func(*Service)

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(service *Service) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			service.hashCost = cost
		}
	}
}

// WithIDGenerator replaces the random user id generator.
func WithIDGenerator(generator func() string) Option {
	return func(service *Service) {
		if generator != nil {
			service.newID = generator
		}
	}
}

// Service manages users over GORM.
type Service struct {
	db       *gorm.DB
	now      func() time.Time
	newID    func() string
	hashCost int
}

// NewService wires a Service.
func NewService(db *gorm.DB, now func() time.Time, options ...Option) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: db dependency is nil", ErrInvalidConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidConfig)
	}
	service := &Service{
		db:       db,
		now:      now,
		newID:    randomUserID,
		hashCost: bcrypt.DefaultCost,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Register creates a member account with a bcrypt password hash.
func (service *Service) Register(ctx context.Context, registration Registration) (User, error) {
	email, err := NormalizeEmail(registration.Email)
	if err != nil {
		return User{}, err
	}
	if len(registration.Password) < minPasswordLength || len(registration.Password) > maxPasswordBytes {
		return User{}, fmt.Errorf("%w: must be %d to %d characters", ErrInvalidPassword, minPasswordLength, maxPasswordBytes)
	}
	name := strings.TrimSpace(registration.Name)
	if name == "" {
		return User{}, fmt.Errorf("%w: empty value", ErrInvalidName)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(registration.Password), service.hashCost)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrInvalidPassword, err)
	}
	record := Record{
		UserID:       service.newID(),
		Email:        email,
		Name:         name,
		AvatarURL:    strings.TrimSpace(registration.AvatarURL),
		PasswordHash: string(hash),
		Role:         string(RoleMember),
		CreatedAt:    service.now().UTC(),
	}
	if err := service.db.WithContext(ctx).Create(&record).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	return mapRecord(record)
}

// Authenticate checks an email and password pair.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (service *Service) Authenticate(ctx context.Context, email string, password string) (User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return User{}, ErrInvalidCredentials
	}
	record, err := service.findByEmail(ctx, normalized)
	if errors.Is(err, ErrUnknownUser) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if record.PasswordHash == "" {
		return User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return mapRecord(record)
}

// UpsertFederated returns the user owning email, refreshing the profile supplied by an identity provider.
// Unknown emails become members without a password, so only federated sign-in can authenticate them.
func (service *Service) UpsertFederated(ctx context.Context, email string, name string, picture string) (User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	name = strings.TrimSpace(name)
	picture = strings.TrimSpace(picture)

	record, err := service.findByEmail(ctx, normalized)
	if errors.Is(err, ErrUnknownUser) {
		displayName := name
		if displayName == "" {
			displayName, _, _ = strings.Cut(normalized, "@")
		}
		record = Record{
			UserID:    service.newID(),
			Email:     normalized,
			Name:      displayName,
			AvatarURL: picture,
			Role:      string(RoleMember),
			CreatedAt: service.now().UTC(),
		}
		createErr := service.db.WithContext(ctx).Create(&record).Error
		if createErr == nil {
			return mapRecord(record)
		}
		if !database.IsUniqueViolation(createErr) {
			return User{}, fmt.Errorf("create user: %w", createErr)
		}
		record, err = service.findByEmail(ctx, normalized)
	}
	if err != nil {
		return User{}, err
	}

	updates := map[string]interface{}{}
	if name != "" && name != record.Name {
		updates["name"] = name
	}
	if picture != "" && picture != record.AvatarURL {
		updates["avatar_url"] = picture
	}
	if len(updates) == 0 {
		return mapRecord(record)
	}
	if err := service.db.WithContext(ctx).Model(&Record{}).Where("user_id = ?", record.UserID).Updates(updates).Error; err != nil {
		return User{}, fmt.Errorf("update user profile: %w", err)
	}
	record, err = service.findByEmail(ctx, normalized)
	if err != nil {
		return User{}, err
	}
	return mapRecord(record)
}

// Get loads a user by id.
func (service *Service) Get(ctx context.Context, userID string) (User, error) {
	var record Record
	err := service.db.WithContext(ctx).Where("user_id = ?", strings.TrimSpace(userID)).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUnknownUser
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return mapRecord(record)
}

// GetMany loads users by id. Unknown ids are absent from the result.
func (service *Service) GetMany(ctx context.Context, userIDs []string) (map[string]User, error) {
	result := make(map[string]User, len(userIDs))
	if len(userIDs) == 0 {
		return result, nil
	}
	var records []Record
	if err := service.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	for _, record := range records {
		user, err := mapRecord(record)
		if err != nil {
			return nil, err
		}
		result[user.UserID] = user
	}
	return result, nil
}

// SetRole changes the role of the user registered under email.
func (service *Service) SetRole(ctx context.Context, email string, role Role) (User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return User{}, err
	}
	if _, err := ParseRole(string(role)); err != nil {
		return User{}, err
	}
	result := service.db.WithContext(ctx).Model(&Record{}).Where("email = ?", normalized).Update("role", string(role))
	if result.Error != nil {
		return User{}, fmt.Errorf("update role: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return User{}, ErrUnknownUser
	}
	record, err := service.findByEmail(ctx, normalized)
	if err != nil {
		return User{}, err
	}
	return mapRecord(record)
}

func (service *Service) findByEmail(ctx context.Context, email string) (Record, error) {
	var record Record
	err := service.db.WithContext(ctx).Where("email = ?", email).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrUnknownUser
	}
	if err != nil {
		return Record{}, fmt.Errorf("find user: %w", err)
	}
	return record, nil
}

// NormalizeEmail lower-cases and validates an address.
func NormalizeEmail(raw string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty value", ErrInvalidEmail)
	}
	address, err := mail.ParseAddress(trimmed)
	if err != nil || address.Address != trimmed {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	return trimmed, nil
}

func mapRecord(record Record) (User, error) {
	role, err := ParseRole(record.Role)
	if err != nil {
		return User{}, err
	}
	return User{
		UserID:    record.UserID,
		Email:     record.Email,
		Name:      record.Name,
		AvatarURL: record.AvatarURL,
		Role:      role,
		CreatedAt: record.CreatedAt,
	}, nil
}

func randomUserID() string {
	return userIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:userIDLength]
}
