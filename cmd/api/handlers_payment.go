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
	"github.com/ST10067544-Thato/JS-Demons-Payment-Portal/pkg/stream"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (s *Server) createPayment(w http.ResponseWriter, r *http.Request) {
	body, ok := readRequestBody(w, r)
	if !ok {
		return
	}
	var in models.Payment
	if err := json.Unmarshal(body, &in); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid request body"})
		return
	}
	if reason := models.ValidatePaymentInput(in); reason != "" {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": reason})
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	paymentID := uuid.NewString()
	_, err := s.DB.Exec(r.Context(), `
		INSERT INTO payments (id, user_id, amount, currency, bank_name, swift_code, method, reference, recipient_name, account_number, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, paymentID, principal.Subject, in.Amount, in.Currency, in.BankName, in.SwiftCode, in.Method,
		in.Reference, in.RecipientName, in.AccountNumber, models.PaymentPending)
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "Payment failed"})
		return
	}
	s.Metrics.IncPayment("created")
	s.publishPaymentEvent(r.Context(), stream.EventPaymentCreated, stream.PaymentChange{
		PaymentID: paymentID,
		UserID:    principal.Subject,
		Status:    models.PaymentPending,
	})
	s.recordPaymentEvent(r.Context(), audit.KindPaymentCreated, principal.Username, paymentID, models.PaymentPending)

	httpx.WriteJSON(w, http.StatusCreated, map[string]string{
		"message":   "Payment processed",
		"paymentId": paymentID,
	})
}

func (s *Server) listUserPayments(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if _, err := uuid.Parse(userID); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid user id"})
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	// customers may only read their own transactions
	if !auth.HasAnyRole(principal, models.RoleEmployee) && principal.Subject != userID {
		httpx.WriteJSON(w, http.StatusForbidden, map[string]string{"message": "Access denied"})
		return
	}
	rows, err := s.DB.Query(r.Context(), `
		SELECT id, user_id, amount, currency, bank_name, swift_code, method, reference, recipient_name, account_number, status, created_at, updated_at
		FROM payments WHERE user_id=$1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "Could not retrieve payments"})
		return
	}
	payments, err := scanPayments(rows, false)
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "Could not retrieve payments"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Payments retrieved successfully",
		"transactions": payments,
	})
}

func (s *Server) listAllPayments(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status != "" && status != models.PaymentPending && status != models.PaymentVerified {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid status filter"})
		return
	}
	query := `
		SELECT p.id, p.user_id, u.full_name, p.amount, p.currency, p.bank_name, p.swift_code, p.method, p.reference, p.recipient_name, p.account_number, p.status, p.created_at, p.updated_at
		FROM payments p JOIN users u ON u.id = p.user_id`
	args := []any{}
	if status != "" {
		query += ` WHERE p.status=$1`
		args = append(args, status)
	}
	query += ` ORDER BY p.created_at DESC`
	rows, err := s.DB.Query(r.Context(), query, args...)
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "Could not retrieve payments"})
		return
	}
	payments, err := scanPayments(rows, true)
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "Could not retrieve payments"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Payments retrieved successfully",
		"transactions": payments,
	})
}

func scanPayments(rows pgx.Rows, withOwner bool) ([]models.Payment, error) {
	defer rows.Close()
	payments := make([]models.Payment, 0, 16)
	for rows.Next() {
		var p models.Payment
		var err error
		if withOwner {
			err = rows.Scan(&p.ID, &p.UserID, &p.OwnerName, &p.Amount, &p.Currency, &p.BankName, &p.SwiftCode,
				&p.Method, &p.Reference, &p.RecipientName, &p.AccountNumber, &p.Status, &p.CreatedAt, &p.UpdatedAt)
		} else {
			err = rows.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency, &p.BankName, &p.SwiftCode,
				&p.Method, &p.Reference, &p.RecipientName, &p.AccountNumber, &p.Status, &p.CreatedAt, &p.UpdatedAt)
		}
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (s *Server) verifyPayment(w http.ResponseWriter, r *http.Request) {
	s.setPaymentStatus(w, r, models.PaymentVerified, models.PaymentPending, "Payment verified", "Payment already verified")
}

func (s *Server) revertPayment(w http.ResponseWriter, r *http.Request) {
	s.setPaymentStatus(w, r, models.PaymentPending, models.PaymentVerified, "Payment reverted to pending", "Payment already pending")
}

// setPaymentStatus moves a payment between statuses with a single guarded
// UPDATE, so concurrent employee actions cannot interleave.
func (s *Server) setPaymentStatus(w http.ResponseWriter, r *http.Request, to, from, changedMsg, unchangedMsg string) {
	paymentID := chi.URLParam(r, "paymentId")
	if _, err := uuid.Parse(paymentID); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid payment id"})
		return
	}
	tag, err := s.DB.Exec(r.Context(), `
		UPDATE payments SET status=$1, updated_at=now() WHERE id=$2 AND status=$3
	`, to, paymentID, from)
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "Could not update payment"})
		return
	}
	if tag.RowsAffected() == 0 {
		var userID string
		err := s.DB.QueryRow(r.Context(), `SELECT user_id FROM payments WHERE id=$1`, paymentID).Scan(&userID)
		if errors.Is(err, pgx.ErrNoRows) {
			httpx.WriteJSON(w, http.StatusNotFound, map[string]string{"message": "Payment not found"})
			return
		}
		if err != nil {
			httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "Could not update payment"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": unchangedMsg, "status": to})
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	action := "verified"
	if to == models.PaymentPending {
		action = "reverted"
	}
	s.Metrics.IncPayment(action)
	s.publishPaymentEvent(r.Context(), stream.EventPaymentStatusChanged, stream.PaymentChange{
		PaymentID: paymentID,
		Status:    to,
	})
	s.recordPaymentEvent(r.Context(), audit.KindPaymentStatusChanged, principal.Username, paymentID, to)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": changedMsg, "status": to})
}

func (s *Server) togglePaymentStatus(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")
	if _, err := uuid.Parse(paymentID); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid payment id"})
		return
	}
	// flip and read back in one statement: two concurrent toggles land on
	// the original status instead of losing one
	var newStatus, userID string
	err := s.DB.QueryRow(r.Context(), `
		UPDATE payments
		SET status = CASE WHEN status=$1 THEN $2 ELSE $1 END, updated_at=now()
		WHERE id=$3
		RETURNING status, user_id
	`, models.PaymentVerified, models.PaymentPending, paymentID).Scan(&newStatus, &userID)
	if errors.Is(err, pgx.ErrNoRows) {
		httpx.WriteJSON(w, http.StatusNotFound, map[string]string{"message": "Payment not found"})
		return
	}
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "Could not update payment"})
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	action := "verified"
	if newStatus == models.PaymentPending {
		action = "reverted"
	}
	s.Metrics.IncPayment(action)
	s.publishPaymentEvent(r.Context(), stream.EventPaymentStatusChanged, stream.PaymentChange{
		PaymentID: paymentID,
		UserID:    userID,
		Status:    newStatus,
	})
	s.recordPaymentEvent(r.Context(), audit.KindPaymentStatusChanged, principal.Username, paymentID, newStatus)
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Payment status updated", "status": newStatus})
}

func (s *Server) deletePayment(w http.ResponseWriter, r *http.Request) {
	paymentID := chi.URLParam(r, "paymentId")
	if _, err := uuid.Parse(paymentID); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, map[string]string{"message": "Invalid payment id"})
		return
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	// owner-only: a missing row and someone else's row look the same
	tag, err := s.DB.Exec(r.Context(), `DELETE FROM payments WHERE id=$1 AND user_id=$2`, paymentID, principal.Subject)
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{"message": "Could not delete payment"})
		return
	}
	if tag.RowsAffected() == 0 {
		httpx.WriteJSON(w, http.StatusNotFound, map[string]string{"message": "Payment not found"})
		return
	}
	s.Metrics.IncPayment("deleted")
	s.publishPaymentEvent(r.Context(), stream.EventPaymentDeleted, stream.PaymentChange{
		PaymentID: paymentID,
		UserID:    principal.Subject,
	})
	s.recordPaymentEvent(r.Context(), audit.KindPaymentDeleted, principal.Username, paymentID, "")
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Payment deleted successfully"})
}

func (s *Server) recordPaymentEvent(ctx context.Context, kind, actor, paymentID, status string) {
	if s.Audit == nil {
		return
	}
	detail, _ := json.Marshal(map[string]string{"paymentId": paymentID, "status": status})
	err := s.Audit.Append(ctx, audit.Record{
		ID:        uuid.NewString(),
		Kind:      kind,
		Actor:     actor,
		Outcome:   "success",
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		log.Printf("payment audit failed: %v", err)
	}
}
