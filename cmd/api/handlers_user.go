package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/audit"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/auth"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/httpx"
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, ok := readRequestBody(w, r)
	if !ok {
		return
	}
	var in models.RegistrationInput
	if err := json.Unmarshal(body, &in); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}
	if reason := models.ValidateRegistration(in); reason != "" {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": reason})
		return
	}
	role := in.Role
	if role == "" {
		role = models.RoleCustomer
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "Registration failed"})
		return
	}
	userID := uuid.NewString()
	_, err = s.DB.Exec(r.Context(), `
		INSERT INTO users (id, username, full_name, id_number, account_number, password_hash, role)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, userID, in.Username, in.FullName, in.IDNumber, in.AccountNumber, hash, role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			httpx.WriteJSON(w, http.StatusConflict, map[string]string{"message": "Username, ID number or account number already in use"})
			return
		}
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "Registration failed"})
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]string{
		"message": "User registered successfully",
		"userId":  userID,
	})
}

type loginRequest struct {
	Username      string `json:"username"`
	AccountNumber string `json:"accountNumber"`
	Password      string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	clientIP := s.clientIP(r)

	if blocked, nextValid, err := s.Guard.Check(ctx, clientIP); err == nil && blocked {
		s.Metrics.IncLogin("blocked")
		s.recordLoginAttempt(ctx, "", clientIP, "blocked", "")
		if isTestEnv(s.AppEnv) {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": "Too many failed login attempts"})
			return
		}
		httpx.WriteJSON(w, http.StatusTooManyRequests, map[string]string{
			"message":              "Too many failed login attempts, please try again later",
			"nextValidRequestDate": nextValid.UTC().Format(time.RFC3339),
		})
		return
	}

	body, ok := readRequestBody(w, r)
	if !ok {
		return
	}
	var req loginRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}
	// pattern checks run before any database access
	if !models.ValidLoginUsername(req.Username) {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid username format. It must be 3-15 characters long and can include letters, numbers, underscores, or hyphens."})
		return
	}
	if !models.ValidNumeric(req.AccountNumber) {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": "Account number must be numeric"})
		return
	}

	var acc models.Account
	err := s.DB.QueryRow(ctx, `
		SELECT id, username, full_name, password_hash, role
		FROM users WHERE username=$1 AND account_number=$2
	`, req.Username, req.AccountNumber).Scan(&acc.ID, &acc.Username, &acc.FullName, &acc.PasswordHash, &acc.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		s.loginFailed(ctx, w, req.Username, clientIP, "Invalid credentials. User not found.")
		return
	}
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "Login failed"})
		return
	}
	if !auth.CheckPassword(acc.PasswordHash, req.Password) {
		s.loginFailed(ctx, w, req.Username, clientIP, "Invalid credentials. Incorrect password.")
		return
	}

	token, err := auth.SignHS256(auth.Claims{
		Sub:      acc.ID,
		Username: acc.Username,
		Role:     acc.Role,
		Name:     acc.FullName,
	}, s.AuthSecret, time.Now().UTC(), s.TokenTTL)
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "Login failed"})
		return
	}

	if err := s.Guard.Reset(ctx, clientIP); err != nil {
		log.Printf("brute force reset failed: %v", err)
	}
	s.Metrics.IncLogin("success")
	s.recordLoginAttempt(ctx, acc.Username, clientIP, "success", "")

	httpx.WriteJSON(w, http.StatusCreated, map[string]string{
		"token":    token,
		"userId":   acc.ID,
		"role":     acc.Role,
		"fullName": acc.FullName,
	})
}

func (s *Server) loginFailed(ctx context.Context, w http.ResponseWriter, username, clientIP, message string) {
	if err := s.Guard.Fail(ctx, clientIP); err != nil {
		log.Printf("brute force record failed: %v", err)
	}
	s.Metrics.IncLogin("failure")
	s.recordLoginAttempt(ctx, username, clientIP, "failure", message)
	httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": message})
}

func (s *Server) recordLoginAttempt(ctx context.Context, username, clientIP, outcome, reason string) {
	if s.Audit == nil {
		return
	}
	var detail json.RawMessage
	if reason != "" {
		detail, _ = json.Marshal(map[string]string{"reason": reason})
	}
	err := s.Audit.Append(ctx, audit.Record{
		ID:        uuid.NewString(),
		Kind:      audit.KindLoginAttempt,
		Actor:     username,
		ClientIP:  clientIP,
		Outcome:   outcome,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("login attempt audit failed: %v", err)
	}
}
