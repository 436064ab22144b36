package source

import (
	"context"
	"fmt"

	"github.com/qiniu/alarmhook/internal/database"
	"github.com/qiniu/alarmhook/internal/webhook"
)

const schema = `
CREATE TABLE IF NOT EXISTS alarm_webhook_targets (
	id         BIGSERIAL PRIMARY KEY,
	group_key  VARCHAR(64)  NOT NULL,
	url        TEXT         NOT NULL,
	position   INT          NOT NULL DEFAULT 0,
	enabled    BOOLEAN      NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
)`

// PgSource reads webhook targets from the alarm_webhook_targets table. Groups
// are ordered by their first row id, URLs by position then id.
type PgSource struct {
	DB *database.Database
}

func NewPgSource(db *database.Database) *PgSource { return &PgSource{DB: db} }

func (s *PgSource) EnsureSchema(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create alarm_webhook_targets: %w", err)
	}
	return nil
}

func (s *PgSource) LoadTargets(ctx context.Context) (webhook.Targets, error) {
	const q = `
	SELECT t.group_key, t.url
	FROM alarm_webhook_targets t
	JOIN (
		SELECT group_key, MIN(id) AS first_id
		FROM alarm_webhook_targets
		WHERE enabled
		GROUP BY group_key
	) g ON g.group_key = t.group_key
	WHERE t.enabled
	ORDER BY g.first_id, t.position, t.id
	`
	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query webhook targets: %w", err)
	}
	defer rows.Close()

	var targets webhook.Targets
	for rows.Next() {
		var key, url string
		if err := rows.Scan(&key, &url); err != nil {
			return nil, fmt.Errorf("scan webhook target: %w", err)
		}
		targets.Add(key, url)
	}
	return targets, rows.Err()
}

// AddTarget appends url to group key.
func (s *PgSource) AddTarget(ctx context.Context, key, url string, position int) error {
	const q = `INSERT INTO alarm_webhook_targets (group_key, url, position) VALUES ($1, $2, $3)`
	if _, err := s.DB.ExecContext(ctx, q, key, url, position); err != nil {
		return fmt.Errorf("insert webhook target: %w", err)
	}
	return nil
}
