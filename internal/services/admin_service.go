package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/crypto/bcrypt"

	domain "github.com/acrylicworks/api/internal/domain"
	"github.com/acrylicworks/api/internal/platform/textutil"
	"github.com/acrylicworks/api/internal/repositories"
)

const (
	adminIDPrefix     = "adm_"
	minPasswordLength = 10
	// bcrypt ignores everything past 72 bytes.
	maxPasswordLength = 72
)

var (
	// ErrAdminInvalidInput indicates the admin command failed validation.
	ErrAdminInvalidInput = errors.New("admin: invalid input")
	// ErrAdminInvalidCredentials indicates the login email or password did not match an active admin.
	ErrAdminInvalidCredentials = errors.New("admin: invalid credentials")
	// ErrAdminNotFound indicates the admin does not exist.
	ErrAdminNotFound = errors.New("admin: not found")
	// ErrAdminConflict indicates the email is already taken.
	ErrAdminConflict = errors.New("admin: conflict")
)

// AdminServiceDeps wires the back office account service.
type AdminServiceDeps struct {
	Admins      repositories.AdminRepository
	Tokens      AdminTokenIssuer
	BcryptCost  int
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type adminService struct {
	admins repositories.AdminRepository
	tokens AdminTokenIssuer
	cost   int
	now    func() time.Time
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewAdminService constructs the admin account service.
func NewAdminService(deps AdminServiceDeps) (AdminService, error) {
	if deps.Admins == nil {
		return nil, errors.New("admin service: admin repository is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("admin service: token issuer is required")
	}
	cost := deps.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("admin service: bcrypt cost %d out of range", cost)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &adminService{
		admins: deps.Admins,
		tokens: deps.Tokens,
		cost:   cost,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Login verifies the password and issues a session token. Unknown emails, inactive accounts and
// wrong passwords all produce ErrAdminInvalidCredentials.
func (s *adminService) Login(ctx context.Context, cmd AdminLoginCommand) (AdminSession, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if email == "" || cmd.Password == "" {
		return AdminSession{}, ErrAdminInvalidCredentials
	}
	admin, err := s.admins.FindByEmail(ctx, email)
	if err != nil {
		mapped := mapRepositoryError(err, ErrAdminNotFound, nil)
		if errors.Is(mapped, ErrAdminNotFound) {
			s.logger(ctx, "admin.login.rejected", map[string]any{"email": email, "reason": "unknown_email"})
			return AdminSession{}, ErrAdminInvalidCredentials
		}
		return AdminSession{}, mapped
	}
	if !admin.Active {
		s.logger(ctx, "admin.login.rejected", map[string]any{"adminId": admin.ID, "reason": "inactive"})
		return AdminSession{}, ErrAdminInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(cmd.Password)); err != nil {
		s.logger(ctx, "admin.login.rejected", map[string]any{"adminId": admin.ID, "reason": "password"})
		return AdminSession{}, ErrAdminInvalidCredentials
	}

	token, expiresAt, err := s.tokens.IssueAdminToken(admin)
	if err != nil {
		return AdminSession{}, fmt.Errorf("admin: issue token: %w", err)
	}

	now := s.now()
	admin.LastLoginAt = &now
	admin.UpdatedAt = now
	if err := s.admins.Update(ctx, admin); err != nil {
		s.logger(ctx, "admin.login.touch_failed", map[string]any{"adminId": admin.ID, "error": err.Error()})
	}
	s.logger(ctx, "admin.login.succeeded", map[string]any{"adminId": admin.ID})
	return AdminSession{Token: token, ExpiresAt: expiresAt, Admin: redactAdmin(admin)}, nil
}

func (s *adminService) ListAdmins(ctx context.Context) ([]Admin, error) {
	admins, err := s.admins.List(ctx)
	if err != nil {
		return nil, mapRepositoryError(err, nil, nil)
	}
	for i := range admins {
		admins[i] = redactAdmin(admins[i])
	}
	return admins, nil
}

func (s *adminService) GetAdmin(ctx context.Context, adminID string) (Admin, error) {
	admin, err := s.find(ctx, adminID)
	if err != nil {
		return Admin{}, err
	}
	return redactAdmin(admin), nil
}

func (s *adminService) CreateAdmin(ctx context.Context, cmd CreateAdminCommand) (Admin, error) {
	email := strings.ToLower(strings.TrimSpace(cmd.Email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return Admin{}, fmt.Errorf("%w: invalid email", ErrAdminInvalidInput)
	}
	name := textutil.SanitizePlainText(cmd.Name)
	if name == "" {
		return Admin{}, fmt.Errorf("%w: name is required", ErrAdminInvalidInput)
	}
	role := cmd.Role
	if role == "" {
		role = domain.AdminRoleStaff
	}
	if !validAdminRole(role) {
		return Admin{}, fmt.Errorf("%w: unknown role %q", ErrAdminInvalidInput, role)
	}
	hash, err := s.hashPassword(cmd.Password)
	if err != nil {
		return Admin{}, err
	}

	if _, err := s.admins.FindByEmail(ctx, email); err == nil {
		return Admin{}, fmt.Errorf("%w: %s is already registered", ErrAdminConflict, email)
	} else if mapped := mapRepositoryError(err, ErrAdminNotFound, nil); !errors.Is(mapped, ErrAdminNotFound) {
		return Admin{}, mapped
	}

	now := s.now()
	admin := Admin{
		ID:           adminIDPrefix + s.newID(),
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.admins.Insert(ctx, admin); err != nil {
		return Admin{}, mapRepositoryError(err, nil, ErrAdminConflict)
	}
	s.logger(ctx, "admin.created", map[string]any{
		"adminId": admin.ID,
		"role":    string(role),
		"actorId": strings.TrimSpace(cmd.ActorID),
	})
	return redactAdmin(admin), nil
}

func (s *adminService) UpdateAdmin(ctx context.Context, cmd UpdateAdminCommand) (Admin, error) {
	admin, err := s.find(ctx, cmd.AdminID)
	if err != nil {
		return Admin{}, err
	}
	self := strings.TrimSpace(cmd.ActorID) == admin.ID

	if cmd.Name != nil {
		name := textutil.SanitizePlainText(*cmd.Name)
		if name == "" {
			return Admin{}, fmt.Errorf("%w: name must not be empty", ErrAdminInvalidInput)
		}
		admin.Name = name
	}
	if cmd.Role != nil {
		if !validAdminRole(*cmd.Role) {
			return Admin{}, fmt.Errorf("%w: unknown role %q", ErrAdminInvalidInput, *cmd.Role)
		}
		if self && *cmd.Role != admin.Role {
			return Admin{}, fmt.Errorf("%w: admins cannot change their own role", ErrAdminInvalidInput)
		}
		admin.Role = *cmd.Role
	}
	if cmd.Active != nil {
		if self && !*cmd.Active {
			return Admin{}, fmt.Errorf("%w: admins cannot deactivate themselves", ErrAdminInvalidInput)
		}
		admin.Active = *cmd.Active
	}
	if cmd.Password != nil {
		hash, err := s.hashPassword(*cmd.Password)
		if err != nil {
			return Admin{}, err
		}
		admin.PasswordHash = hash
	}

	admin.UpdatedAt = s.now()
	if err := s.admins.Update(ctx, admin); err != nil {
		return Admin{}, mapRepositoryError(err, ErrAdminNotFound, ErrAdminConflict)
	}
	s.logger(ctx, "admin.updated", map[string]any{
		"adminId":         admin.ID,
		"actorId":         strings.TrimSpace(cmd.ActorID),
		"passwordChanged": cmd.Password != nil,
	})
	return redactAdmin(admin), nil
}

func (s *adminService) DeleteAdmin(ctx context.Context, cmd DeleteAdminCommand) error {
	adminID := strings.TrimSpace(cmd.AdminID)
	if adminID == "" {
		return fmt.Errorf("%w: admin id is required", ErrAdminInvalidInput)
	}
	if adminID == strings.TrimSpace(cmd.ActorID) {
		return fmt.Errorf("%w: admins cannot delete themselves", ErrAdminInvalidInput)
	}
	if err := s.admins.Delete(ctx, adminID); err != nil {
		return mapRepositoryError(err, ErrAdminNotFound, nil)
	}
	s.logger(ctx, "admin.deleted", map[string]any{
		"adminId": adminID,
		"actorId": strings.TrimSpace(cmd.ActorID),
	})
	return nil
}

func (s *adminService) find(ctx context.Context, adminID string) (Admin, error) {
	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		return Admin{}, fmt.Errorf("%w: admin id is required", ErrAdminInvalidInput)
	}
	admin, err := s.admins.FindByID(ctx, adminID)
	if err != nil {
		return Admin{}, mapRepositoryError(err, ErrAdminNotFound, nil)
	}
	return admin, nil
}

func (s *adminService) hashPassword(password string) (string, error) {
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return "", fmt.Errorf("%w: password must be %d to %d bytes", ErrAdminInvalidInput, minPasswordLength, maxPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", fmt.Errorf("admin: hash password: %w", err)
	}
	return string(hash), nil
}

func validAdminRole(role AdminRole) bool {
	return role == domain.AdminRoleStaff || role == domain.AdminRoleSuper
}

// redactAdmin strips the password hash before an admin leaves the service.
func redactAdmin(admin Admin) Admin {
	admin.PasswordHash = ""
	return admin
}
