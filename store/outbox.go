package store

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/lib/pq"

	"storefront/outbox"
)

// maxOutboxRetries bounds redelivery of an event that keeps failing.
const maxOutboxRetries = 10

// AppendEvent writes ev in the current unit of work. JSON goes in as text;
// lib/pq would encode a []byte as bytea.
func (t *pgTx) AppendEvent(ctx context.Context, ev outbox.Event) error {
	headers, err := json.Marshal(ev.Headers)
	if err != nil {
		return err
	}
	_, err = t.q.ExecContext(ctx,
		`INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, headers, status) VALUES ($1,$2,$3,$4,$5,'pending')`,
		ev.AggregateType, ev.AggregateID, ev.Type, string(ev.Payload), string(headers))
	return storageErr(err)
}

// LockBatch claims up to batchSize deliverable events. A claim expires after
// 30 seconds so a crashed relay does not strand events.
func (s *PostgresStore) LockBatch(ctx context.Context, batchSize int) ([]outbox.Event, error) {
	rows, err := s.DB.QueryContext(ctx, `
		UPDATE outbox SET status = 'in_progress', locked_until = now() + interval '30 seconds'
		WHERE id IN (
			SELECT id FROM outbox
			WHERE (status IN ('pending', 'failed') OR (status = 'in_progress' AND locked_until < now()))
			AND retry_count < $2
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT $1
		)
		RETURNING id, aggregate_type, aggregate_id, type, payload, headers, retry_count, created_at
	`, batchSize, maxOutboxRetries)
	if err != nil {
		return nil, storageErr(err)
	}
	defer rows.Close()

	var events []outbox.Event
	for rows.Next() {
		var (
			ev      outbox.Event
			headers []byte
		)
		if err := rows.Scan(&ev.ID, &ev.AggregateType, &ev.AggregateID, &ev.Type, &ev.Payload, &headers, &ev.RetryCount, &ev.CreatedAt); err != nil {
			return nil, storageErr(err)
		}
		if len(headers) > 0 {
			if err := json.Unmarshal(headers, &ev.Headers); err != nil {
				return nil, err
			}
		}
		ev.Status = outbox.StatusInProgress
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(err)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}

func (s *PostgresStore) MarkSent(ctx context.Context, ids []int64) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE outbox SET status = 'sent', locked_until = NULL WHERE id = ANY($1)`, pq.Array(ids))
	return storageErr(err)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE outbox SET status = 'failed', last_error = $2, retry_count = retry_count + 1, locked_until = NULL WHERE id = $1`, id, errMsg)
	return storageErr(err)
}
