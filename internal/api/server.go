// Package api exposes the rule management surface over HTTP. Reads are
// public; mutations need both the admin bearer key and a signed, single-use
// authorization verified by the authz package.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"golang.org/x/crypto/bcrypt"

	"github.com/TimurManjosov/gotreasury/internal/audit"
	"github.com/TimurManjosov/gotreasury/internal/authz"
	"github.com/TimurManjosov/gotreasury/internal/rules"
	"github.com/TimurManjosov/gotreasury/internal/snapshot"
	"github.com/TimurManjosov/gotreasury/internal/store"
	"github.com/TimurManjosov/gotreasury/internal/telemetry"
)

const maxBodyBytes = 1 << 20 // 1 MiB

type Server struct {
	store       store.Store
	verifier    *authz.Verifier
	audit       *audit.Service
	adminAPIKey string
	rateLimit   int // requests per minute per IP, 0 disables
}

func NewServer(st store.Store, verifier *authz.Verifier, auditor *audit.Service, adminKey string, rateLimit int) *Server {
	return &Server{
		store:       st,
		verifier:    verifier,
		audit:       auditor,
		adminAPIKey: adminKey,
		rateLimit:   rateLimit,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(telemetry.Middleware)
	if s.rateLimit > 0 {
		r.Use(httprate.LimitByIP(s.rateLimit, time.Minute))
	}

	// health
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// public reads
	r.Get("/v1/rules", s.handleListRules)
	r.Get("/v1/rules/snapshot", s.handleSnapshot)
	r.Get("/v1/rules/{id}", s.handleGetRule)
	r.Get("/v1/rules/{id}/history", s.handleHistory)
	r.Get("/v1/signers/{address}/nonce", s.handleSignerNonce)

	// admin (protected): signed mutations
	r.Post("/v1/rules", s.authAdmin(s.handleCreateRule))
	r.Patch("/v1/rules/{id}", s.authAdmin(s.handleUpdateRule))

	return r
}

// ---- read handlers ----

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListRules(r.Context())
	if err != nil {
		InternalError(w, r, "listing rules failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": list})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := snapshot.Load()
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == snap.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("ETag", snap.ETag)
	_ = json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	id, err := ruleID(r)
	if err != nil {
		BadRequestError(w, r, ErrCodeBadRequest, "rule id must be an integer")
		return
	}
	rule, err := s.store.GetRule(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		NotFoundError(w, r, "rule does not exist")
		return
	}
	if err != nil {
		InternalError(w, r, "rule read failed")
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, err := ruleID(r)
	if err != nil {
		BadRequestError(w, r, ErrCodeBadRequest, "rule id must be an integer")
		return
	}
	if _, err := s.store.GetRule(r.Context(), id); errors.Is(err, store.ErrNotFound) {
		NotFoundError(w, r, "rule does not exist")
		return
	} else if err != nil {
		InternalError(w, r, "rule read failed")
		return
	}
	history, err := s.store.GetExecutionHistory(r.Context(), id)
	if err != nil {
		InternalError(w, r, "history read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ruleId": id, "executions": history})
}

func (s *Server) handleSignerNonce(w http.ResponseWriter, r *http.Request) {
	addr := strings.ToLower(chi.URLParam(r, "address"))
	nonce, ok := s.verifier.LastNonce(addr)
	writeJSON(w, http.StatusOK, nonceResponse{Address: addr, Nonce: nonce, Consumed: ok})
}

// ---- mutation handlers ----

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON")
		return
	}

	actor, ok := s.consumeAuthorization(w, r, req.Authorization)
	if !ok {
		return
	}

	id, err := s.store.CreateRule(r.Context(), req.Rule)
	if err != nil {
		// The nonce is already consumed; a retry needs a fresh signature.
		if errors.Is(err, rules.ErrInvalidRule) || errors.Is(err, rules.ErrInvalidDistribution) {
			BadRequestError(w, r, ErrCodeValidation, err.Error())
			return
		}
		InternalError(w, r, "rule creation failed")
		return
	}

	if err := s.RebuildSnapshot(r.Context()); err != nil {
		InternalError(w, r, "snapshot rebuild failed")
		return
	}
	s.audit.Record(audit.Entry{
		Action: audit.ActionRuleCreated,
		RuleID: id,
		Actor:  actor,
		Details: map[string]string{
			"name": req.Rule.Name,
			"type": string(req.Rule.Type),
		},
	})

	writeJSON(w, http.StatusCreated, createRuleResponse{ID: id, ETag: snapshot.Load().ETag})
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := ruleID(r)
	if err != nil {
		BadRequestError(w, r, ErrCodeBadRequest, "rule id must be an integer")
		return
	}

	var req updateRuleRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		BadRequestError(w, r, ErrCodeInvalidJSON, "invalid JSON")
		return
	}
	if req.Authorization.RuleID != id {
		BadRequestError(w, r, ErrCodeBadRequest, "authorization is signed for a different rule")
		return
	}

	actor, ok := s.consumeAuthorization(w, r, req.Authorization)
	if !ok {
		return
	}

	if err := s.store.UpdateRule(r.Context(), id, req.Patch); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			NotFoundError(w, r, "rule does not exist")
		case errors.Is(err, rules.ErrInvalidRule), errors.Is(err, rules.ErrInvalidDistribution):
			BadRequestError(w, r, ErrCodeValidation, err.Error())
		default:
			InternalError(w, r, "rule update failed")
		}
		return
	}

	if err := s.RebuildSnapshot(r.Context()); err != nil {
		InternalError(w, r, "snapshot rebuild failed")
		return
	}
	s.audit.Record(audit.Entry{Action: audit.ActionRuleUpdated, RuleID: id, Actor: actor})

	writeJSON(w, http.StatusOK, updateRuleResponse{OK: true, ETag: snapshot.Load().ETag})
}

// consumeAuthorization decodes and consumes a signed authorization. On
// failure it writes the error response and records the rejection, and the
// caller must return without touching the store.
func (s *Server) consumeAuthorization(w http.ResponseWriter, r *http.Request, dto authorizationDTO) (string, bool) {
	req, err := dto.toRequest()
	if err != nil {
		BadRequestError(w, r, ErrCodeBadRequest, err.Error())
		return "", false
	}

	actor, err := s.verifier.Consume(req)
	if err == nil {
		return actor, true
	}

	var kind string
	switch {
	case errors.Is(err, authz.ErrExpired):
		kind = "expired"
		UnauthorizedError(w, r, ErrCodeAuthExpired, err.Error())
	case errors.Is(err, authz.ErrReplayedNonce):
		kind = "replay"
		ForbiddenError(w, r, ErrCodeAuthReplay, err.Error())
	case errors.Is(err, authz.ErrUnauthorizedSigner):
		kind = "signer"
		ForbiddenError(w, r, ErrCodeAuthSigner, err.Error())
	default:
		kind = "other"
		ForbiddenError(w, r, ErrCodeForbidden, err.Error())
	}

	telemetry.AuthRejections.WithLabelValues(kind).Inc()
	s.audit.Record(audit.Entry{
		Action:  audit.ActionAuthRejected,
		RuleID:  dto.RuleID,
		Details: map[string]string{"kind": kind, "error": err.Error()},
	})
	return "", false
}

// RebuildSnapshot reloads all rules and swaps the atomic snapshot.
func (s *Server) RebuildSnapshot(ctx context.Context) error {
	list, err := s.store.ListRules(ctx)
	if err != nil {
		return err
	}
	snapshot.Update(snapshot.Build(list))
	return nil
}

// ---- middleware & helpers ----

// authAdmin guards mutation endpoints with the admin bearer key. The
// configured key may be either the plaintext key or a bcrypt hash of it;
// hashes are recognized by their "$2" prefix.
func (s *Server) authAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
		if got == "" {
			UnauthorizedError(w, r, ErrCodeUnauthorized, "missing bearer token")
			return
		}
		if !s.keyMatches(got) {
			ForbiddenError(w, r, ErrCodeForbidden, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	}
}

func (s *Server) keyMatches(got string) bool {
	if strings.HasPrefix(s.adminAPIKey, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(s.adminAPIKey), []byte(got)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.adminAPIKey)) == 1
}

func ruleID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
