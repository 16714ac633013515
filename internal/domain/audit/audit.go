// Package audit keeps a trail of leave mutations made through the gateway.
package audit

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	ActionSubmit = "leave.submit"
	ActionCancel = "leave.cancel"
)

type Event struct {
	ID        string          `json:"id"`
	ActorKey  string          `json:"-"`
	ActorID   string          `json:"actor_id,omitempty"`
	TenantID  string          `json:"tenant_id,omitempty"`
	Action    string          `json:"action"`
	EntityID  string          `json:"entity_id,omitempty"`
	Outcome   string          `json:"outcome"`
	RequestID string          `json:"request_id"`
	IP        string          `json:"ip"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type Recorder interface {
	Record(ctx context.Context, evt Event) error
	// List returns one actor's events, newest first, skipping offset.
	List(ctx context.Context, actorKey string, limit, offset int) ([]Event, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// MarshalDetails encodes v for Event.Details. Nil and unencodable values give
// no details.
func MarshalDetails(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return payload
}

type Postgres struct {
	DB *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{DB: db}
}

func (s *Postgres) Record(ctx context.Context, evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	_, err := s.DB.Exec(ctx, `
    INSERT INTO audit_events (id, actor_key, actor_id, tenant_id, action, entity_id, outcome, request_id, ip, details)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
  `, evt.ID, evt.ActorKey, evt.ActorID, evt.TenantID, evt.Action, evt.EntityID, evt.Outcome, evt.RequestID, evt.IP, []byte(evt.Details))
	return err
}

func (s *Postgres) List(ctx context.Context, actorKey string, limit, offset int) ([]Event, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, actor_key, actor_id, tenant_id, action, entity_id, outcome, request_id, ip, details, created_at
    FROM audit_events
    WHERE actor_key = $1
    ORDER BY created_at DESC
    LIMIT $2 OFFSET $3
  `, actorKey, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var (
			evt     Event
			details []byte
		)
		if err := rows.Scan(&evt.ID, &evt.ActorKey, &evt.ActorID, &evt.TenantID, &evt.Action, &evt.EntityID, &evt.Outcome, &evt.RequestID, &evt.IP, &details, &evt.CreatedAt); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			evt.Details = details
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (s *Postgres) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM audit_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Memory keeps events in process. It serves single-instance deployments
// without a database.
type Memory struct {
	Now func() time.Time

	mu     sync.Mutex
	events []Event
}

func NewMemory() *Memory {
	return &Memory{Now: time.Now}
}

func (m *Memory) Record(_ context.Context, evt Event) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = m.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *Memory) List(_ context.Context, actorKey string, limit, offset int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Event{}
	for _, evt := range m.events {
		if evt.ActorKey == actorKey {
			out = append(out, evt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return []Event{}, nil
	}
	if offset > 0 {
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.events[:0]
	var removed int64
	for _, evt := range m.events {
		if evt.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, evt)
	}
	m.events = kept
	return removed, nil
}
