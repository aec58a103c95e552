package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("alert not found")

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{DB: db}
}

func (s *Store) Create(ctx context.Context, candidate Candidate) (Alert, error) {
	payload := candidate.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return Alert{}, err
	}
	out := Alert{
		Type:       candidate.Type,
		Message:    candidate.Message,
		Source:     candidate.Source,
		Payload:    payload,
		RecordType: candidate.RecordType,
		RecordKey:  candidate.RecordKey,
	}
	err = s.DB.QueryRow(ctx, `
    INSERT INTO alerts (type, message, source, payload, record_type, record_key)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING id, created_at
  `, candidate.Type, candidate.Message, candidate.Source, payloadJSON, candidate.RecordType, candidate.RecordKey).Scan(&out.ID, &out.Timestamp)
	return out, err
}

func (s *Store) ListUnread(ctx context.Context, filter Filter) ([]Alert, error) {
	query := `
    SELECT id, type, message, source, payload, record_type, record_key, created_at
    FROM alerts
    WHERE read_at IS NULL`
	var args []any
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.RecordType != "" {
		args = append(args, filter.RecordType)
		query += fmt.Sprintf(" AND record_type = $%d", len(args))
	}
	if filter.RecordKey != "" {
		args = append(args, filter.RecordKey)
		query += fmt.Sprintf(" AND record_key = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		var payload []byte
		if err := rows.Scan(&a.ID, &a.Type, &a.Message, &a.Source, &payload, &a.RecordType, &a.RecordKey, &a.Timestamp); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &a.Payload); err != nil {
				return nil, err
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) MarkRead(ctx context.Context, id string) error {
	var marked string
	err := s.DB.QueryRow(ctx, `
    UPDATE alerts SET read_at = COALESCE(read_at, now())
    WHERE id = $1
    RETURNING id
  `, id).Scan(&marked)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *Store) DismissByKey(ctx context.Context, recordType, recordKey string) (int64, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE alerts SET read_at = now()
    WHERE read_at IS NULL AND record_type = $1 AND record_key = $2
  `, recordType, recordKey)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
