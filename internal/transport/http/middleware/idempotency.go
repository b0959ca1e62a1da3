package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"absence/internal/platform/querier"
	"absence/internal/transport/http/api"
)

var (
	ErrIdempotencyConflict = errors.New("idempotency key conflicts with existing request")
	ErrIdempotencyInFlight = errors.New("request with this idempotency key is still in progress")
)

// StoredResponse is a completed response kept for replay.
type StoredResponse struct {
	Status int
	Body   json.RawMessage
}

// IdempotencyKeeper reserves a key before the handler runs so concurrent first requests
// cannot both execute. Reserve reports reserved=true when the caller now owns the key.
type IdempotencyKeeper interface {
	Reserve(ctx context.Context, companyID, userID, endpoint, key, requestHash string) (StoredResponse, bool, error)
	Complete(ctx context.Context, companyID, userID, endpoint, key string, response StoredResponse) error
	Release(ctx context.Context, companyID, userID, endpoint, key string) error
}

type IdempotencyStore struct {
	db querier.Querier
}

func NewIdempotencyStore(db querier.Querier) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (s *IdempotencyStore) Reserve(ctx context.Context, companyID, userID, endpoint, key, requestHash string) (StoredResponse, bool, error) {
	if s == nil || s.db == nil {
		return StoredResponse{}, true, nil
	}
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (company_id, user_id, key, endpoint, request_hash, status_code)
    VALUES ($1, $2, $3, $4, $5, 0)
    ON CONFLICT (company_id, user_id, key, endpoint) DO NOTHING
  `, companyID, userID, key, endpoint, requestHash)
	if err != nil {
		return StoredResponse{}, false, err
	}
	if tag.RowsAffected() == 1 {
		return StoredResponse{}, true, nil
	}

	var storedHash string
	var stored StoredResponse
	err = s.db.QueryRow(ctx, `
    SELECT request_hash, status_code, COALESCE(response_json, 'null'::jsonb)
    FROM idempotency_keys
    WHERE company_id::text = $1 AND user_id::text = $2 AND key = $3 AND endpoint = $4
  `, companyID, userID, key, endpoint).Scan(&storedHash, &stored.Status, &stored.Body)
	if errors.Is(err, pgx.ErrNoRows) {
		// Released or purged between the insert and the read.
		return StoredResponse{}, false, ErrIdempotencyInFlight
	}
	if err != nil {
		return StoredResponse{}, false, err
	}
	if storedHash != requestHash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	if stored.Status == 0 {
		return StoredResponse{}, false, ErrIdempotencyInFlight
	}
	return stored, false, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, companyID, userID, endpoint, key string, response StoredResponse) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `
    UPDATE idempotency_keys SET status_code = $5, response_json = $6
    WHERE company_id::text = $1 AND user_id::text = $2 AND key = $3 AND endpoint = $4 AND status_code = 0
  `, companyID, userID, key, endpoint, response.Status, response.Body)
	return err
}

// Release drops an unfinished reservation so the caller may retry with the same key.
func (s *IdempotencyStore) Release(ctx context.Context, companyID, userID, endpoint, key string) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `
    DELETE FROM idempotency_keys
    WHERE company_id::text = $1 AND user_id::text = $2 AND key = $3 AND endpoint = $4 AND status_code = 0
  `, companyID, userID, key, endpoint)
	return err
}

// Purge deletes keys created before cutoff and reports how many went.
func (s *IdempotencyStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type bufferedResponse struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) WriteHeader(code int) {
	b.status = code
	b.ResponseWriter.WriteHeader(code)
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	b.body.Write(p)
	return b.ResponseWriter.Write(p)
}

// Idempotent replays the stored response when a caller repeats a request with the same
// Idempotency-Key and body. Requests without the header pass through.
func Idempotent(keeper IdempotencyKeeper, endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			user, ok := GetUser(r.Context())
			if keeper == nil || key == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}
			requestID := GetRequestID(r.Context())
			raw, err := io.ReadAll(r.Body)
			if err != nil {
				api.Fail(w, http.StatusBadRequest, "invalid_body", "request body could not be read", requestID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))
			hash := RequestHash(raw)

			stored, reserved, err := keeper.Reserve(r.Context(), user.CompanyID, user.UserID, endpoint, key, hash)
			switch {
			case errors.Is(err, ErrIdempotencyConflict):
				api.Fail(w, http.StatusConflict, "idempotency_conflict", err.Error(), requestID)
				return
			case errors.Is(err, ErrIdempotencyInFlight):
				api.Fail(w, http.StatusConflict, "idempotency_in_flight", err.Error(), requestID)
				return
			case err != nil:
				slog.Error("idempotency reserve failed", "requestId", requestID, "err", err)
				api.Fail(w, http.StatusInternalServerError, "internal_error", "internal error", requestID)
				return
			}
			if !reserved {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			buffered := &bufferedResponse{ResponseWriter: w, status: http.StatusOK}
			completed := false
			defer func() {
				if completed {
					return
				}
				if err := keeper.Release(context.WithoutCancel(r.Context()), user.CompanyID, user.UserID, endpoint, key); err != nil {
					slog.Warn("idempotency release failed", "requestId", requestID, "endpoint", endpoint, "err", err)
				}
			}()
			next.ServeHTTP(buffered, r)
			if buffered.status < 200 || buffered.status >= 300 {
				return
			}
			// The handler's effect is committed; an unsaved key stays reserved rather than reopening.
			completed = true
			response := StoredResponse{Status: buffered.status, Body: buffered.body.Bytes()}
			if err := keeper.Complete(r.Context(), user.CompanyID, user.UserID, endpoint, key, response); err != nil {
				slog.Warn("idempotency save failed", "requestId", requestID, "endpoint", endpoint, "err", err)
			}
		})
	}
}
