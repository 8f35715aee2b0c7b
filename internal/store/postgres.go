package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"calltrack/internal/audit"
	"calltrack/internal/calls"
	"calltrack/internal/leads"
	"calltrack/internal/tenants"
	"calltrack/pkg/utils"
)

const ensureTenantSQL = `INSERT INTO tenants (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`

const tenantColumns = `id, name, has_counters, leads_count, calls_count, inbound_count, outbound_count,
	missed_count, rejected_count, total_duration_seconds, last_recalc_at, created_at`

const leadColumns = `tenant_id, id, name, phone_number, last_seen_at, last_interaction_at, created_at, updated_at`

const callColumns = `tenant_id, lead_id, id, direction, duration_seconds, final_outcome, phone_number, created_at`

// Postgres is a Store on database/sql (pgx stdlib driver).
type Postgres struct {
	db *sql.DB

	// PollInterval drives the call feed; there is no LISTEN connection.
	PollInterval time.Duration
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, PollInterval: 2 * time.Second}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// PutTenant creates or renames a tenant.
func (p *Postgres) PutTenant(ctx context.Context, tenantID, name string) error {
	if tenantID == "" {
		return ErrInvalid
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		tenantID, name)
	return err
}

func (p *Postgres) IncrementCallsCount(ctx context.Context, tenantID string, delta int64) error {
	if tenantID == "" {
		return ErrInvalid
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tenants (id, calls_count, has_counters) VALUES ($1, $2, TRUE)
		ON CONFLICT (id) DO UPDATE
		SET calls_count = tenants.calls_count + EXCLUDED.calls_count, has_counters = TRUE`,
		tenantID, delta)
	return err
}

func (p *Postgres) MergeStats(ctx context.Context, tenantID string, s tenants.Stats) error {
	if tenantID == "" {
		return ErrInvalid
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tenants (id, has_counters, leads_count, calls_count, inbound_count, outbound_count,
			missed_count, rejected_count, total_duration_seconds, last_recalc_at)
		VALUES ($1, TRUE, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			has_counters = TRUE,
			leads_count = EXCLUDED.leads_count,
			calls_count = EXCLUDED.calls_count,
			inbound_count = EXCLUDED.inbound_count,
			outbound_count = EXCLUDED.outbound_count,
			missed_count = EXCLUDED.missed_count,
			rejected_count = EXCLUDED.rejected_count,
			total_duration_seconds = EXCLUDED.total_duration_seconds,
			last_recalc_at = EXCLUDED.last_recalc_at`,
		tenantID, s.LeadsCount, s.CallsCount, s.InboundCount, s.OutboundCount,
		s.MissedCount, s.RejectedCount, s.TotalDurationSeconds, nullTime(s.LastRecalcAt))
	return err
}

func scanTenant(row rowScanner) (tenants.Tenant, error) {
	var t tenants.Tenant
	var recalc sql.NullTime
	err := row.Scan(&t.ID, &t.Name, &t.HasCounters,
		&t.Stats.LeadsCount, &t.Stats.CallsCount, &t.Stats.InboundCount, &t.Stats.OutboundCount,
		&t.Stats.MissedCount, &t.Stats.RejectedCount, &t.Stats.TotalDurationSeconds,
		&recalc, &t.CreatedAt)
	if err != nil {
		return tenants.Tenant{}, err
	}
	t.Stats.LastRecalcAt = fromNullTime(recalc)
	t.CreatedAt = t.CreatedAt.UTC()
	return t, nil
}

func (p *Postgres) GetTenant(ctx context.Context, tenantID string) (tenants.Tenant, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, tenantID)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return tenants.Tenant{}, ErrNotFound
	}
	return t, err
}

func (p *Postgres) ListTenants(ctx context.Context) ([]tenants.Tenant, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]tenants.Tenant, 0)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanLead(row rowScanner) (leads.Lead, error) {
	var l leads.Lead
	var seen, interaction sql.NullTime
	if err := row.Scan(&l.TenantID, &l.ID, &l.Name, &l.PhoneNumber, &seen, &interaction, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return leads.Lead{}, err
	}
	l.LastSeenAt = fromNullTime(seen)
	l.LastInteractionAt = fromNullTime(interaction)
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return l, nil
}

func (p *Postgres) UpsertLead(ctx context.Context, l leads.Lead) (leads.Lead, error) {
	if err := checkLead(l); err != nil {
		return leads.Lead{}, err
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = now
	}

	var out leads.Lead
	err := utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, ensureTenantSQL, l.TenantID); err != nil {
			return err
		}
		row := tx.QueryRowContext(ctx, `
			INSERT INTO leads (`+leadColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (tenant_id, id) DO UPDATE SET
				name = COALESCE(NULLIF(EXCLUDED.name, ''), leads.name),
				phone_number = COALESCE(NULLIF(EXCLUDED.phone_number, ''), leads.phone_number),
				last_seen_at = GREATEST(EXCLUDED.last_seen_at, leads.last_seen_at),
				last_interaction_at = GREATEST(EXCLUDED.last_interaction_at, leads.last_interaction_at),
				updated_at = EXCLUDED.updated_at
			RETURNING `+leadColumns,
			l.TenantID, l.ID, l.Name, l.PhoneNumber, nullTime(l.LastSeenAt), nullTime(l.LastInteractionAt), l.CreatedAt, l.UpdatedAt)
		var err error
		out, err = scanLead(row)
		return err
	})
	return out, err
}

func (p *Postgres) GetLead(ctx context.Context, tenantID, leadID string) (leads.Lead, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE tenant_id = $1 AND id = $2`, tenantID, leadID)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return leads.Lead{}, ErrNotFound
	}
	return l, err
}

func (p *Postgres) ListLeads(ctx context.Context, tenantID string) ([]leads.Lead, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE ($1 = '' OR tenant_id = $1) ORDER BY tenant_id, id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]leads.Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (p *Postgres) ListLeadIDs(ctx context.Context, tenantID string) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id FROM leads WHERE tenant_id = $1 ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (p *Postgres) AppendCall(ctx context.Context, c calls.Call) error {
	if err := checkCall(c); err != nil {
		return err
	}
	return utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, ensureTenantSQL, c.TenantID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO calls (`+callColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT DO NOTHING`,
			c.TenantID, c.LeadID, c.ID, c.Direction, c.DurationSeconds, c.FinalOutcome, c.PhoneNumber, nullTime(c.CreatedAt))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrAlreadyExists
		}
		return nil
	})
}

func (p *Postgres) queryCalls(ctx context.Context, where string, args ...any) ([]calls.Call, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+callColumns+` FROM calls `+where+` ORDER BY inserted_at, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]calls.Call, 0)
	for rows.Next() {
		var c calls.Call
		var created sql.NullTime
		if err := rows.Scan(&c.TenantID, &c.LeadID, &c.ID, &c.Direction, &c.DurationSeconds, &c.FinalOutcome, &c.PhoneNumber, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = fromNullTime(created)
		c.Path = calls.Path(c.TenantID, c.LeadID, c.ID)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *Postgres) ListCalls(ctx context.Context, tenantID string) ([]calls.Call, error) {
	return p.queryCalls(ctx, `WHERE tenant_id = $1`, tenantID)
}

func (p *Postgres) ListAllCalls(ctx context.Context) ([]calls.Call, error) {
	return p.queryCalls(ctx, ``)
}

func (p *Postgres) AppendEvent(ctx context.Context, e audit.Event) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO recompute_events (id, tenant_id, type, lead_id, call_id, source, message, metadata, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.TenantID, string(e.Type), e.LeadID, e.CallID, e.Source, e.Message, e.Metadata, e.DurationMillis, e.CreatedAt)
	return err
}

func (p *Postgres) ListEvents(ctx context.Context, tenantID string, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, type, lead_id, call_id, source, message, metadata, duration_ms, created_at
		FROM recompute_events WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]audit.Event, 0)
	for rows.Next() {
		var e audit.Event
		var typ string
		if err := rows.Scan(&e.ID, &e.TenantID, &typ, &e.LeadID, &e.CallID, &e.Source, &e.Message, &e.Metadata, &e.DurationMillis, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = audit.EventType(typ)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Subscribe polls the calls table and signals when its fingerprint changes.
func (p *Postgres) Subscribe(ctx context.Context) (<-chan struct{}, error) {
	last, err := p.fingerprint(ctx)
	if err != nil {
		return nil, err
	}
	interval := p.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				cur, err := p.fingerprint(ctx)
				if err != nil {
					continue
				}
				if cur != last {
					last = cur
					signal(out)
				}
			}
		}
	}()
	return out, nil
}

type callsFingerprint struct {
	count int64
	last  time.Time
}

func (p *Postgres) fingerprint(ctx context.Context) (callsFingerprint, error) {
	var f callsFingerprint
	var last sql.NullTime
	err := p.db.QueryRowContext(ctx, `SELECT count(*), max(inserted_at) FROM calls`).Scan(&f.count, &last)
	f.last = fromNullTime(last)
	return f, err
}

// NotifyCallCreated is a no-op; subscribers poll.
func (p *Postgres) NotifyCallCreated(ctx context.Context, ev calls.Created) error { return nil }

func (p *Postgres) Ping(ctx context.Context) error {
	return utils.HealthCheck(ctx, p.db, 2*time.Second)
}

func (p *Postgres) Close() error { return p.db.Close() }

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullTime(t sql.NullTime) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time.UTC()
}
