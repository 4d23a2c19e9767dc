package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dpetrovic89/agentic-dev-pipeline/auth"
)

// ApprovePath is the route pattern served by HTTPSource.
const ApprovePath = "/runs/{runID}/approve"

const shutdownTimeout = 5 * time.Second

// HTTPSource accepts approvals over HTTP. Each request must carry an
// approval token issued by auth.IssueApprovalToken; the token subject is
// recorded as the approver.
type HTTPSource struct {
	Addr   string
	Tokens auth.TokenConfig
	Logger *slog.Logger
}

type errorBody struct {
	Error string `json:"error"`
}

// Handler returns the HTTP handler that feeds h.
func (s *HTTPSource) Handler(h Handler) http.Handler {
	logger := loggerOrDefault(s.Logger)
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST "+ApprovePath, func(w http.ResponseWriter, r *http.Request) {
		runID := r.PathValue("runID")

		token, ok := bearerToken(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "missing bearer token"})
			return
		}
		approver, err := auth.AuthorizeApproval(s.Tokens, token, runID)
		switch {
		case errors.Is(err, auth.ErrRunNotAuthorized):
			writeJSON(w, http.StatusForbidden, errorBody{Error: err.Error()})
			return
		case err != nil:
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: err.Error()})
			return
		}

		sig, err := normalize(Signal{RunID: runID, Approver: approver})
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		if err := deliver(r.Context(), logger, "http", sig, h); err != nil {
			writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, sig)
	})

	return mux
}

// Listen implements Source. It serves until ctx is cancelled and then shuts
// the server down gracefully.
func (s *HTTPSource) Listen(ctx context.Context, h Handler) error {
	if len(s.Tokens.Secret) < auth.MinSecretLength {
		return auth.ErrSecretTooShort
	}
	logger := loggerOrDefault(s.Logger)
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(h),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening for approvals", "source", "http", "addr", s.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("approval server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown approval server: %w", err)
		}
		return nil
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
