package api

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/minuteswatch/internal/auth"
	"github.com/JakeFAU/minuteswatch/internal/minutes"
)

//go:embed templates/login.html
var templateFS embed.FS

var loginTemplate = template.Must(template.ParseFS(templateFS, "templates/login.html"))

type loginPage struct {
	Title    string
	Username string
	Error    string
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) loginForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	page := loginPage{Title: "minuteswatch sign in", Error: r.URL.Query().Get("error")}
	if err := loginTemplate.Execute(w, page); err != nil {
		s.logger.Error("render login form", zap.Error(err))
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if isJSON(r) {
		if err := decodeJSON(w, r, &req, false); err != nil {
			s.fail(w, r, err)
			return
		}
	} else {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := r.ParseForm(); err != nil {
			s.fail(w, r, fmt.Errorf("invalid form body: %w", minutes.ErrInvalid))
			return
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		s.fail(w, r, fmt.Errorf("username and password are required: %w", minutes.ErrInvalid))
		return
	}

	session, err := s.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, minutes.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.fail(w, r, err)
		return
	}
	http.SetCookie(w, s.cookie.SessionCookie(session.Token))
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) logout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, s.cookie.ClearCookie())
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// currentUser loads the caller's own record.
func (s *Server) currentUser(r *http.Request) (minutes.User, error) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		return minutes.User{}, fmt.Errorf("authentication required: %w", minutes.ErrUnauthorized)
	}
	user, err := s.store.GetUser(r.Context(), p.UserID)
	if errors.Is(err, minutes.ErrNotFound) {
		// The token outlived the account.
		return minutes.User{}, fmt.Errorf("account no longer exists: %w", minutes.ErrUnauthorized)
	}
	return user, err
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(users))
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var in auth.NewUser
	if err := decodeJSON(w, r, &in, false); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.auth.CreateUser(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, _ := auth.PrincipalFrom(r.Context())
	if !p.IsAdmin() && p.UserID != id {
		s.fail(w, r, fmt.Errorf("users may only view their own record: %w", minutes.ErrForbidden))
		return
	}
	user, err := s.store.GetUser(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, _ := auth.PrincipalFrom(r.Context())
	if p.UserID == id {
		s.fail(w, r, fmt.Errorf("cannot delete your own account: %w", minutes.ErrInvalid))
		return
	}
	if err := s.store.DeleteUser(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("user deleted", zap.Int64("user_id", id), zap.Int64("by", p.UserID))
	w.WriteHeader(http.StatusNoContent)
}

type profileForm struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

type profileUpdate struct {
	Email           *string `json:"email"`
	FullName        *string `json:"full_name"`
	CurrentPassword string  `json:"current_password"`
	NewPassword     string  `json:"new_password"`
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	s.me(w, r)
}

func (s *Server) profileEditForm(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profileForm{Email: user.Email, FullName: user.FullName})
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in profileUpdate
	if err := decodeJSON(w, r, &in, false); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.currentUser(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if in.NewPassword != "" {
		if in.CurrentPassword == "" {
			s.fail(w, r, fmt.Errorf("current_password is required to change the password: %w", minutes.ErrInvalid))
			return
		}
		if err := s.auth.ChangePassword(r.Context(), user.ID, in.CurrentPassword, in.NewPassword); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	if in.Email != nil {
		user.Email = strings.TrimSpace(*in.Email)
	}
	if in.FullName != nil {
		user.FullName = strings.TrimSpace(*in.FullName)
	}
	updated, err := s.store.UpdateUser(r.Context(), user)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
