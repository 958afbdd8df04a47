package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"falldetect/annotator/schema"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials   = errors.New("invalid login credentials")
	ErrAccountLocked        = errors.New("account is locked due to repeated failed logins")
	ErrAccountInactive      = errors.New("account is deactivated")
	ErrUsernameAlreadyInUse = errors.New("username is already in use")
	ErrEmailAlreadyInUse    = errors.New("email is already in use")
	ErrWeakPassword         = errors.New("password does not meet the minimum length requirement")
	ErrGeneratingJwt        = errors.New("error generating jwt")
)

// Default identity seeded when the users table is empty. The seeded row has
// must_change_password set so the first login forces a rotation.
const (
	DefaultAdminUsername = "admin"
	DefaultAdminEmail    = "admin@example.com"
	DefaultAdminPassword = "admin123"
	DefaultAdminFullName = "Administrator"
)

type LockoutPolicy struct {
	MaxAttempts       int
	LockDuration      time.Duration
	MinPasswordLength int
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{
		MaxAttempts:       5,
		LockDuration:      15 * time.Minute,
		MinPasswordLength: 8,
	}
}

type Provider struct {
	jwtManager *JwtManager
	db         *gorm.DB
	auditLog   AuditLogger
	policy     LockoutPolicy
}

type ProviderArgs struct {
	Secret []byte
	Policy LockoutPolicy
}

func NewProvider(db *gorm.DB, auditLog AuditLogger, args ProviderArgs) (*Provider, error) {
	if args.Policy.MaxAttempts == 0 {
		args.Policy = DefaultLockoutPolicy()
	}

	if err := seedDefaultAdmin(db); err != nil {
		return nil, fmt.Errorf("error seeding default admin: %w", err)
	}

	return &Provider{
		jwtManager: NewJwtManager(args.Secret),
		db:         db,
		auditLog:   auditLog,
		policy:     args.Policy,
	}, nil
}

// seedDefaultAdmin inserts the bootstrap admin if and only if the users table
// is empty. Running it on every start never duplicates the row.
func seedDefaultAdmin(db *gorm.DB) error {
	return db.Transaction(func(txn *gorm.DB) error {
		var count int64
		result := txn.Model(&schema.User{}).Count(&count)
		if result.Error != nil {
			slog.Error("sql error counting users for admin seed", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if count != 0 {
			return nil
		}

		hashedPwd, err := bcrypt.GenerateFromPassword([]byte(DefaultAdminPassword), 10)
		if err != nil {
			return fmt.Errorf("error encrypting default admin password: %w", err)
		}

		now := time.Now().UTC()
		admin := schema.User{
			Username:           DefaultAdminUsername,
			Email:              DefaultAdminEmail,
			PasswordHash:       hashedPwd,
			Role:               schema.RoleAdmin,
			FullName:           DefaultAdminFullName,
			IsActive:           true,
			CreatedAt:          now,
			LastActive:         now,
			PasswordChangedAt:  now,
			MustChangePassword: true,
		}

		result = txn.Create(&admin)
		if result.Error != nil {
			slog.Error("sql error creating default admin user", "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		slog.Info("seeded default admin user", "username", DefaultAdminUsername)
		return nil
	})
}

func (auth *Provider) checkPasswordStrength(password string) error {
	if len(password) < auth.policy.MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

func (auth *Provider) Register(username, email, password, fullName, role string) (schema.User, error) {
	if role == "" {
		role = schema.RoleAnnotator
	}
	if err := schema.CheckValidRole(role); err != nil {
		return schema.User{}, err
	}
	if err := auth.checkPasswordStrength(password); err != nil {
		return schema.User{}, err
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		return schema.User{}, fmt.Errorf("error encrypting password: %w", err)
	}

	now := time.Now().UTC()
	newUser := schema.User{
		Username:          username,
		Email:             email,
		PasswordHash:      hashedPwd,
		Role:              role,
		FullName:          fullName,
		IsActive:          true,
		CreatedAt:         now,
		LastActive:        now,
		PasswordChangedAt: now,
	}

	err = auth.db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Limit(1).Find(&existingUser, "username = ? or email = ?", username, email)
		if result.Error != nil {
			slog.Error("sql error checking for existing username/email", "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		if result.RowsAffected != 0 {
			if existingUser.Username == username {
				return ErrUsernameAlreadyInUse
			} else {
				return ErrEmailAlreadyInUse
			}
		}

		result = txn.Create(&newUser)
		if result.Error != nil {
			slog.Error("sql error creating new user entry", "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		return nil
	})

	if err != nil {
		return schema.User{}, err
	}

	return newUser, nil
}

type LoginResult struct {
	User        schema.User
	AccessToken string
}

// Login accepts the username or the email in the username field, matching the
// login form of the UI shell.
func (auth *Provider) Login(username, password string) (LoginResult, error) {
	var login LoginResult

	err := auth.db.Transaction(func(txn *gorm.DB) error {
		var user schema.User
		result := txn.First(&user, "username = ? or email = ?", username, username)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrInvalidCredentials
			}
			slog.Error("sql error looking up user for login", "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		now := time.Now().UTC()

		if user.LockedUntil != nil {
			if user.LockedUntil.After(now) {
				// A correct password does not unlock the account early.
				return ErrAccountLocked
			}
			user.LockedUntil = nil
			user.FailedLoginAttempts = 0
		}

		if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
			user.FailedLoginAttempts++
			if user.FailedLoginAttempts >= auth.policy.MaxAttempts {
				lockedUntil := now.Add(auth.policy.LockDuration)
				user.LockedUntil = &lockedUntil
				slog.Info("locking account after repeated failed logins", "user_id", user.Id, "locked_until", lockedUntil)
			}
			if result := txn.Save(&user); result.Error != nil {
				slog.Error("sql error recording failed login", "user_id", user.Id, "error", result.Error)
				return schema.ErrDbAccessFailed
			}
			return ErrInvalidCredentials
		}

		if !user.IsActive {
			return ErrAccountInactive
		}

		user.FailedLoginAttempts = 0
		user.LockedUntil = nil
		user.LastActive = now
		if result := txn.Save(&user); result.Error != nil {
			slog.Error("sql error updating user on login", "user_id", user.Id, "error", result.Error)
			return schema.ErrDbAccessFailed
		}

		login.User = user
		return nil
	})
	if err != nil {
		return LoginResult{}, err
	}

	token, err := auth.jwtManager.CreateUserJwt(login.User.Id)
	if err != nil {
		return LoginResult{}, ErrGeneratingJwt
	}
	login.AccessToken = token

	return login, nil
}

func (auth *Provider) ChangePassword(userId int64, currentPassword, newPassword string) error {
	if err := auth.checkPasswordStrength(newPassword); err != nil {
		return err
	}

	return auth.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			return err
		}

		if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(currentPassword)); err != nil {
			return ErrInvalidCredentials
		}

		hashedPwd, err := bcrypt.GenerateFromPassword([]byte(newPassword), 10)
		if err != nil {
			return fmt.Errorf("error encrypting password: %w", err)
		}

		user.PasswordHash = hashedPwd
		user.PasswordChangedAt = time.Now().UTC()
		user.MustChangePassword = false
		user.FailedLoginAttempts = 0
		user.LockedUntil = nil

		if result := txn.Save(&user); result.Error != nil {
			slog.Error("sql error updating user password", "user_id", userId, "error", result.Error)
			return schema.ErrDbAccessFailed
		}
		return nil
	})
}

type requestContextKey string

const userRequestContextKey requestContextKey = "user"

func (auth *Provider) addUserToContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			userId, err := UserIdFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			user, err := schema.GetUser(userId, auth.db)
			if err != nil {
				if errors.Is(err, schema.ErrUserNotFound) {
					http.Error(w, err.Error(), http.StatusNotFound)
					return
				}
				http.Error(w, fmt.Sprintf("unable to find user %v: %v", userId, err), http.StatusInternalServerError)
				return
			}

			if !user.IsActive {
				http.Error(w, ErrAccountInactive.Error(), http.StatusUnauthorized)
				return
			}

			reqCtx := r.Context()
			reqCtx = context.WithValue(reqCtx, userRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

func (auth *Provider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.jwtManager.Verifier(), auth.jwtManager.Authenticator(), auth.addUserToContext(), auth.auditLog.Middleware}
}

func AdminOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			user, err := UserFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}

			if user.Role != schema.RoleAdmin {
				http.Error(w, fmt.Sprintf("user %v is not an admin", user.Id), http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
