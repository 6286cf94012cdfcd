package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/xela07ax/pra-approval-relay/internal/audit"
)

type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo открывает соединение с Postgres для audit trail.
// Соединение проверяется в main через Ping.
func NewAuditRepo(connString string) (*AuditRepo, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: open failed: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &AuditRepo{db: db}, nil
}

// Ping проверяет доступность базы при старте.
func (r *AuditRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close закрывает пул соединений.
func (r *AuditRepo) Close() error {
	return r.db.Close()
}

// WriteBatch вставляет пачку событий одним запросом.
func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице approval_audit
	const numFields = 10
	placeholders := make([]string, 0, len(events))
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10))

		vals = append(vals,
			e.ID, e.TraceID, string(e.Kind), e.RequestID, e.TicketID,
			e.Actor, e.Decision, e.Status, e.Detail, e.Timestamp,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO approval_audit (id, trace_id, kind, request_id, ticket_id, actor, decision, status, detail, timestamp) VALUES %s",
		strings.Join(placeholders, ","),
	)

	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: failed to insert audit batch: %w", err)
	}
	return nil
}
