package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"falldetect/annotator/auth"
	"falldetect/annotator/schema"
	"falldetect/utils"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type UserService struct {
	db       *gorm.DB
	userAuth *auth.Provider
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Post("/signup", s.Signup)
		r.Get("/login", s.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)

		r.Post("/logout", s.Logout)
		r.Get("/info", s.Info)
		r.Post("/change-password", s.ChangePassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.userAuth.AuthMiddleware()...)
		r.Use(auth.AdminOnly())

		r.Get("/list", s.List)
		r.Post("/{user_id}/deactivate", s.Deactivate)
		r.Post("/{user_id}/reactivate", s.Reactivate)
	})

	return r
}

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role,omitempty"`
}

func (s *UserService) Signup(w http.ResponseWriter, r *http.Request) {
	var params signupRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	user, err := s.userAuth.Register(params.Username, params.Email, params.Password, params.FullName, params.Role)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrEmailAlreadyInUse), errors.Is(err, auth.ErrUsernameAlreadyInUse):
			responseCode = http.StatusConflict
		case errors.Is(err, auth.ErrWeakPassword):
			responseCode = http.StatusUnprocessableEntity
		}
		http.Error(w, fmt.Sprintf("error creating user: %v", err), responseCode)
		return
	}

	utils.WriteJsonResponse(w, user.Public())
}

type loginResponse struct {
	User        schema.UserPublic `json:"user"`
	AccessToken string            `json:"access_token"`
}

func (s *UserService) Login(w http.ResponseWriter, r *http.Request) {
	username, password, ok := r.BasicAuth()
	if !ok {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return
	}

	login, err := s.userAuth.Login(username, password)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			responseCode = http.StatusUnauthorized
		case errors.Is(err, auth.ErrAccountLocked), errors.Is(err, auth.ErrAccountInactive):
			responseCode = http.StatusForbidden
		}
		http.Error(w, fmt.Sprintf("login failed: %v", err), responseCode)
		return
	}

	res := loginResponse{User: login.User.Public(), AccessToken: login.AccessToken}
	utils.WriteJsonResponse(w, res)
}

// Logout exists for surface compatibility and the audit trail; sessions are
// stateless jwts, the shell discards its token.
func (s *UserService) Logout(w http.ResponseWriter, r *http.Request) {
	utils.WriteSuccess(w)
}

func (s *UserService) Info(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	utils.WriteJsonResponse(w, user.Public())
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (s *UserService) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var params changePasswordRequest
	if !utils.ParseRequestBody(w, r, &params) {
		return
	}

	err = s.userAuth.ChangePassword(user.Id, params.CurrentPassword, params.NewPassword)
	if err != nil {
		responseCode := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			responseCode = http.StatusUnauthorized
		case errors.Is(err, auth.ErrWeakPassword):
			responseCode = http.StatusUnprocessableEntity
		}
		http.Error(w, fmt.Sprintf("error changing password: %v", err), responseCode)
		return
	}

	utils.WriteSuccess(w)
}

func (s *UserService) List(w http.ResponseWriter, r *http.Request) {
	var users []schema.User
	result := s.db.Order("user_id asc").Find(&users)
	if result.Error != nil {
		slog.Error("sql error listing users", "error", result.Error)
		http.Error(w, fmt.Sprintf("error listing users: %v", schema.ErrDbAccessFailed), http.StatusInternalServerError)
		return
	}

	infos := make([]schema.UserPublic, 0, len(users))
	for _, u := range users {
		infos = append(infos, u.Public())
	}
	utils.WriteJsonResponse(w, infos)
}

// Users are never hard-deleted; removing access is a soft deactivation so
// annotation provenance stays intact.
func (s *UserService) Deactivate(w http.ResponseWriter, r *http.Request) {
	s.setActive(w, r, false)
}

func (s *UserService) Reactivate(w http.ResponseWriter, r *http.Request) {
	s.setActive(w, r, true)
}

func (s *UserService) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	userId, err := utils.URLParamInt(r, "user_id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = s.db.Transaction(func(txn *gorm.DB) error {
		user, err := schema.GetUser(userId, txn)
		if err != nil {
			if errors.Is(err, schema.ErrUserNotFound) {
				return CodedError(err, http.StatusNotFound)
			}
			return CodedError(err, http.StatusInternalServerError)
		}

		user.IsActive = active

		if result := txn.Save(&user); result.Error != nil {
			slog.Error("sql error updating user active flag", "user_id", userId, "error", result.Error)
			return CodedError(schema.ErrDbAccessFailed, http.StatusInternalServerError)
		}
		return nil
	})

	if err != nil {
		http.Error(w, fmt.Sprintf("error updating user %v: %v", userId, err), GetResponseCode(err))
		return
	}

	utils.WriteSuccess(w)
}
