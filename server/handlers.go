package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/relaygate/go-relay-server/accounts"
	"github.com/relaygate/go-relay-server/events"
	"github.com/relaygate/go-relay-server/relay"
	"github.com/relaygate/go-relay-server/token"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Token   string `json:"token,omitempty"`
	ID      string `json:"id,omitempty"`
}

type generateTokenRequest struct {
	SenderEmail string `json:"sender_email"`
}

type sendEmailRequest struct {
	SenderEmail string `json:"sender_email"`
	Token       string `json:"token"`
	Recipient   string `json:"recipient"`
	Subject     string `json:"subject"`
	Content     string `json:"content"`
}

type createAccountRequest struct {
	Email    string `json:"email"`
	SmtpHost string `json:"smtp_host"`
	SmtpPort int    `json:"smtp_port"`
	Password string `json:"password"`
}

func (s *Server) HomeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Relay Token Server"))
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, apiResponse{Status: "success", Message: "healthy"})
	}
}

// GenerateTokenHandler issues or recovers the sender's token for
// today. Recovery answers 200, fresh issuance 201.
func (s *Server) GenerateTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.SenderEmail == "" {
			writeError(w, http.StatusBadRequest, "sender email missing")
			return
		}

		record, created, err := s.deps.Issuer.IssueOrRecover(r.Context(), req.SenderEmail)
		if err != nil {
			s.respondError(w, r, err)
			return
		}

		if !created {
			writeJSON(w, http.StatusOK, apiResponse{
				Status:  "success",
				Message: "token recovered and not expired yet",
				Token:   record.Secret,
				ID:      record.ID,
			})
			return
		}

		s.publish(r, events.TypeTokenIssued, map[string]any{
			"sender":    req.SenderEmail,
			"record_id": record.ID,
			"issued_on": record.IssuedOn.Format("2006-01-02"),
		})
		writeJSON(w, http.StatusCreated, apiResponse{
			Status:  "success",
			Message: "token generated successfully",
			Token:   record.Secret,
			ID:      record.ID,
		})
	}
}

// SendEmailHandler authorizes the presented token and relays the
// message through the sender's SMTP gateway.
func (s *Server) SendEmailHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sendEmailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.SenderEmail == "" || req.Token == "" || req.Recipient == "" {
			writeError(w, http.StatusBadRequest, "sender email, token and recipient are required")
			return
		}

		msg := &relay.Message{
			From:    req.SenderEmail,
			To:      req.Recipient,
			Subject: req.Subject,
			Body:    req.Content,
		}
		send := func(ctx context.Context, creds accounts.RelayCredentials) error {
			return s.deps.Gateway.Send(ctx, creds, msg)
		}

		err := s.deps.Authorizer.AuthorizeAndConsume(r.Context(), req.SenderEmail, req.Token, send)
		if err != nil {
			s.publish(r, events.TypeRelayDenied, map[string]any{
				"sender": req.SenderEmail,
				"reason": classifyDenial(err),
			})
			s.respondError(w, r, err)
			return
		}

		s.publish(r, events.TypeRelaySent, map[string]any{
			"sender":    req.SenderEmail,
			"recipient": req.Recipient,
		})
		writeJSON(w, http.StatusOK, apiResponse{Status: "success", Message: "email sent successfully"})
	}
}

func (s *Server) CreateAccountHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Email == "" || req.SmtpHost == "" || req.SmtpPort == 0 {
			writeError(w, http.StatusBadRequest, "email, smtp host and smtp port are required")
			return
		}

		account := &accounts.Account{
			ID:    uuid.New().String(),
			Email: req.Email,
			Credentials: accounts.RelayCredentials{
				SmtpHost: req.SmtpHost,
				SmtpPort: req.SmtpPort,
				Password: req.Password,
			},
		}
		if err := s.deps.Directory.Upsert(r.Context(), account); err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, apiResponse{Status: "success", Message: "account registered", ID: account.ID})
	}
}

func (s *Server) ListAccountsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.deps.Directory.List(r.Context(), 0, 0)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// respondError maps core errors to HTTP statuses. The mapping keeps
// "not authorized" distinct from "could not determine authorization".
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, accounts.NotFoundErr):
		writeError(w, http.StatusNotFound, "sender account not registered")
	case errors.Is(err, accounts.EmailExistsErr):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, relay.NoTokenIssuedErr):
		writeError(w, http.StatusUnauthorized, "authentication failed: no token present for this account")
	case errors.Is(err, relay.TokenExpiredErr):
		writeError(w, http.StatusUnauthorized, "authentication failed: token expired")
	case errors.Is(err, relay.TokenMismatchErr):
		writeError(w, http.StatusUnauthorized, "authentication failed: token mismatch")
	case errors.Is(err, token.DuplicateSecretErr):
		writeError(w, http.StatusConflict, "token collision, retry the request")
	case errors.Is(err, relay.RelayFailedErr):
		writeError(w, http.StatusBadGateway, "relay attempt failed")
	case errors.Is(err, token.StorageUnavailableErr):
		log.Error().Err(err).Str("path", r.URL.Path).Msg("storage unavailable")
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func classifyDenial(err error) string {
	switch {
	case errors.Is(err, relay.NoTokenIssuedErr):
		return "no_token"
	case errors.Is(err, relay.TokenExpiredErr):
		return "token_expired"
	case errors.Is(err, relay.TokenMismatchErr):
		return "token_mismatch"
	case errors.Is(err, relay.RelayFailedErr):
		return "relay_failed"
	default:
		return "error"
	}
}

func (s *Server) publish(r *http.Request, eventType string, data map[string]any) {
	_ = s.deps.Events.Publish(r.Context(), eventType, data)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiResponse{Status: "error", Message: message})
}
