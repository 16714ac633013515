package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"leavedesk/internal/transport/http/api"
)

const IdempotencyHeader = "Idempotency-Key"

var (
	ErrIdempotencyConflict   = errors.New("idempotency key conflicts with existing request")
	ErrIdempotencyInProgress = errors.New("idempotency key is held by a request still in progress")
)

// reservationTTL is how long an unfinished reservation blocks retries. A
// reservation left behind by a crashed request is reclaimable after it.
const reservationTTL = 2 * time.Minute

type StoredResponse struct {
	StatusCode int
	Body       []byte
}

type IdempotencyStore interface {
	Check(ctx context.Context, scope, key, requestHash string) (StoredResponse, bool, error)
	// Reserve claims key before the handler runs. It fails with
	// ErrIdempotencyInProgress when another request holds or has filled it.
	Reserve(ctx context.Context, scope, key, requestHash string) error
	// Release drops an unfilled reservation so the key can be retried.
	Release(ctx context.Context, scope, key string) error
	Save(ctx context.Context, scope, key, requestHash string, resp StoredResponse) error
}

func RequestHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

type PostgresIdempotencyStore struct {
	db *pgxpool.Pool
}

func NewPostgresIdempotencyStore(db *pgxpool.Pool) *PostgresIdempotencyStore {
	return &PostgresIdempotencyStore{db: db}
}

func (s *PostgresIdempotencyStore) Check(ctx context.Context, scope, key, requestHash string) (StoredResponse, bool, error) {
	if s == nil || s.db == nil {
		return StoredResponse{}, false, nil
	}
	var (
		storedHash string
		stored     StoredResponse
		abandoned  bool
	)
	err := s.db.QueryRow(ctx, `
    SELECT request_hash, status_code, response_body,
      status_code = 0 AND created_at < now() - make_interval(secs => $3)
    FROM idempotency_keys
    WHERE scope = $1 AND key = $2
  `, scope, key, reservationTTL.Seconds()).Scan(&storedHash, &stored.StatusCode, &stored.Body, &abandoned)
	if errors.Is(err, pgx.ErrNoRows) || abandoned {
		return StoredResponse{}, false, nil
	}
	if err != nil {
		return StoredResponse{}, false, err
	}
	if storedHash != requestHash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	if stored.StatusCode == 0 {
		return StoredResponse{}, false, ErrIdempotencyInProgress
	}
	return stored, true, nil
}

// Reserve inserts a placeholder row with status_code 0. An abandoned
// placeholder is taken over.
func (s *PostgresIdempotencyStore) Reserve(ctx context.Context, scope, key, requestHash string) error {
	if s == nil || s.db == nil {
		return nil
	}
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (scope, key, request_hash, status_code, response_body)
    VALUES ($1, $2, $3, 0, ''::bytea)
    ON CONFLICT (scope, key)
    DO UPDATE SET request_hash = EXCLUDED.request_hash, created_at = now()
    WHERE idempotency_keys.status_code = 0
      AND idempotency_keys.created_at < now() - make_interval(secs => $4)
  `, scope, key, requestHash, reservationTTL.Seconds())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyInProgress
	}
	return nil
}

func (s *PostgresIdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if s == nil || s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE scope = $1 AND key = $2 AND status_code = 0`, scope, key)
	return err
}

func (s *PostgresIdempotencyStore) Save(ctx context.Context, scope, key, requestHash string, resp StoredResponse) error {
	if s == nil || s.db == nil {
		return nil
	}
	tag, err := s.db.Exec(ctx, `
    INSERT INTO idempotency_keys (scope, key, request_hash, status_code, response_body)
    VALUES ($1, $2, $3, $4, $5)
    ON CONFLICT (scope, key)
    DO UPDATE SET status_code = EXCLUDED.status_code, response_body = EXCLUDED.response_body
    WHERE idempotency_keys.request_hash = EXCLUDED.request_hash
  `, scope, key, requestHash, resp.StatusCode, resp.Body)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrIdempotencyConflict
	}
	return nil
}

// PurgeBefore deletes keys recorded before cutoff.
func (s *PostgresIdempotencyStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type memoryIdempotencyEntry struct {
	hash     string
	resp     StoredResponse
	storedAt time.Time
	pending  bool
}

// MemoryIdempotencyStore keeps keys in process for ttl. Used when no
// database is configured.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryIdempotencyEntry
}

func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryIdempotencyStore{ttl: ttl, now: time.Now, entries: map[string]memoryIdempotencyEntry{}}
}

// live reports whether entry still blocks or answers its key.
func (s *MemoryIdempotencyStore) live(entry memoryIdempotencyEntry) bool {
	age := s.now().Sub(entry.storedAt)
	if entry.pending {
		return age <= reservationTTL
	}
	return age <= s.ttl
}

func (s *MemoryIdempotencyStore) Check(_ context.Context, scope, key, requestHash string) (StoredResponse, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[scope+"\x00"+key]
	if !ok || !s.live(entry) {
		return StoredResponse{}, false, nil
	}
	if entry.hash != requestHash {
		return StoredResponse{}, false, ErrIdempotencyConflict
	}
	if entry.pending {
		return StoredResponse{}, false, ErrIdempotencyInProgress
	}
	return entry.resp, true, nil
}

func (s *MemoryIdempotencyStore) Reserve(_ context.Context, scope, key, requestHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := scope + "\x00" + key
	if existing, ok := s.entries[id]; ok && s.live(existing) {
		return ErrIdempotencyInProgress
	}
	s.entries[id] = memoryIdempotencyEntry{hash: requestHash, storedAt: s.now(), pending: true}
	return nil
}

func (s *MemoryIdempotencyStore) Release(_ context.Context, scope, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := scope + "\x00" + key
	if existing, ok := s.entries[id]; ok && existing.pending {
		delete(s.entries, id)
	}
	return nil
}

func (s *MemoryIdempotencyStore) Save(_ context.Context, scope, key, requestHash string, resp StoredResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := scope + "\x00" + key
	if existing, ok := s.entries[id]; ok && existing.hash != requestHash && s.live(existing) {
		return ErrIdempotencyConflict
	}
	s.entries[id] = memoryIdempotencyEntry{hash: requestHash, resp: resp, storedAt: s.now()}
	return nil
}

func (s *MemoryIdempotencyStore) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, entry := range s.entries {
		if entry.storedAt.Before(cutoff) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

type capturingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *capturingWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *capturingWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

// Idempotency replays the stored response when a caller repeats a request
// with the same Idempotency-Key and body. The same key with a different body
// is a conflict, and a repeat that arrives while the first request is still
// running is turned away. Requests without the header pass through.
func Idempotency(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			requestID := GetRequestID(r.Context())
			if len(key) > 255 {
				api.Fail(w, http.StatusBadRequest, "invalid_idempotency_key", "idempotency key too long", requestID)
				return
			}

			raw, err := io.ReadAll(r.Body)
			if err != nil {
				api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(raw))

			scope := idempotencyScope(r)
			hash := RequestHash(raw)
			stored, found, err := store.Check(r.Context(), scope, key, hash)
			if errors.Is(err, ErrIdempotencyConflict) {
				api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key was used with a different request", requestID)
				return
			}
			if errors.Is(err, ErrIdempotencyInProgress) {
				inProgress(w, requestID)
				return
			}
			if err != nil {
				slog.Warn("idempotency check failed", "requestId", requestID, "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if found {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.StatusCode)
				if _, err := w.Write(stored.Body); err != nil {
					slog.Warn("idempotent replay write failed", "err", err)
				}
				return
			}

			if err := store.Reserve(r.Context(), scope, key, hash); err != nil {
				if errors.Is(err, ErrIdempotencyInProgress) {
					inProgress(w, requestID)
					return
				}
				slog.Warn("idempotency reserve failed", "requestId", requestID, "err", err)
				next.ServeHTTP(w, r)
				return
			}

			saveCtx := context.WithoutCancel(r.Context())
			saved := false
			defer func() {
				if saved {
					return
				}
				if err := store.Release(saveCtx, scope, key); err != nil {
					slog.Warn("idempotency release failed", "requestId", requestID, "err", err)
				}
			}()

			capture := &capturingWriter{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			if !replayable(capture.status) {
				return
			}
			resp := StoredResponse{StatusCode: capture.status, Body: capture.body.Bytes()}
			if err := store.Save(saveCtx, scope, key, hash, resp); err != nil {
				slog.Warn("idempotency save failed", "requestId", requestID, "err", err)
				return
			}
			saved = true
		})
	}
}

func inProgress(w http.ResponseWriter, requestID string) {
	w.Header().Set("Retry-After", "1")
	api.Fail(w, http.StatusConflict, "idempotency_in_progress", "a request with this idempotency key is still being processed", requestID)
}

func idempotencyScope(r *http.Request) string {
	actor := "anonymous"
	if sess, ok := GetSession(r.Context()); ok {
		actor = sess.CacheKey()
	}
	return actor + ":" + r.Method + " " + normalizedAPIPath(r.URL.Path)
}

// replayable excludes outcomes a retry might change.
func replayable(status int) bool {
	switch {
	case status == 0, status >= 500:
		return false
	case status == http.StatusUnauthorized, status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
		return false
	}
	return true
}
