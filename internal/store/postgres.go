package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TimurManjosov/gotreasury/internal/rules"
)

// PostgresStore is a PostgreSQL implementation of the Store interface. The
// distribution table and per-execution payouts are stored as JSONB; counters
// live in columns so RecordExecution can advance them with a single guarded
// UPDATE.
type PostgresStore struct {
	pool   *pgxpool.Pool
	policy rules.IntervalPolicy
}

// NewPostgresStore creates a PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool, policy rules.IntervalPolicy) *PostgresStore {
	return &PostgresStore{pool: pool, policy: policy}
}

const ruleColumns = `id, name, description, rule_type, status, trigger_amount,
	check_interval, min_execution_gap, distribution, times_executed,
	total_distributed, last_executed, updated_at`

// CreateRule validates and inserts a new rule, returning the assigned id.
func (p *PostgresStore) CreateRule(ctx context.Context, params CreateParams) (int64, error) {
	r := newRule(params)
	if err := rules.ValidateRule(r, p.policy); err != nil {
		return 0, err
	}

	dist, err := json.Marshal(r.Distribution)
	if err != nil {
		return 0, fmt.Errorf("encode distribution: %w", err)
	}

	var id int64
	err = p.pool.QueryRow(ctx, `
		INSERT INTO treasury_rules
			(name, description, rule_type, status, trigger_amount,
			 check_interval, min_execution_gap, distribution)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		r.Name, r.Description, string(r.Type), string(r.Status),
		r.TriggerAmount, r.CheckInterval, r.MinExecutionGap, dist,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert rule: %w", err)
	}
	return id, nil
}

// UpdateRule applies a patch inside a transaction: the current row is locked,
// patched in memory, re-validated as a whole, and written back.
func (p *PostgresStore) UpdateRule(ctx context.Context, id int64, patch rules.Patch) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM treasury_rules WHERE id = $1 FOR UPDATE`, id)
	r, err := scanRule(row)
	if err != nil {
		return err
	}

	patch.Apply(r)
	r.ID = id
	if err := rules.ValidateRule(*r, p.policy); err != nil {
		return err
	}

	dist, err := json.Marshal(r.Distribution)
	if err != nil {
		return fmt.Errorf("encode distribution: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE treasury_rules
		SET name = $2, description = $3, rule_type = $4, status = $5,
		    trigger_amount = $6, check_interval = $7, min_execution_gap = $8,
		    distribution = $9, updated_at = now()
		WHERE id = $1`,
		id, r.Name, r.Description, string(r.Type), string(r.Status),
		r.TriggerAmount, r.CheckInterval, r.MinExecutionGap, dist)
	if err != nil {
		return fmt.Errorf("update rule: %w", err)
	}
	return tx.Commit(ctx)
}

// GetRule retrieves one rule.
func (p *PostgresStore) GetRule(ctx context.Context, id int64) (*rules.Rule, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM treasury_rules WHERE id = $1`, id)
	return scanRule(row)
}

// ListActiveRules returns ACTIVE rules in ascending id order.
func (p *PostgresStore) ListActiveRules(ctx context.Context) ([]rules.Rule, error) {
	return p.queryRules(ctx,
		`SELECT `+ruleColumns+` FROM treasury_rules WHERE status = $1 ORDER BY id`,
		string(rules.StatusActive))
}

// ListRules returns every rule in ascending id order.
func (p *PostgresStore) ListRules(ctx context.Context) ([]rules.Rule, error) {
	return p.queryRules(ctx,
		`SELECT `+ruleColumns+` FROM treasury_rules ORDER BY id`)
}

func (p *PostgresStore) queryRules(ctx context.Context, sql string, args ...any) ([]rules.Rule, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []rules.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// RecordExecution advances the rule's counters with a guarded UPDATE and
// appends the history row in the same transaction. The gap condition in the
// WHERE clause is the compare-and-set: a concurrent recorder that lost the
// race matches zero rows and fails with ErrExecutionGap.
func (p *PostgresStore) RecordExecution(ctx context.Context, rec rules.ExecutionRecord) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin record: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE treasury_rules
		SET times_executed = times_executed + 1,
		    total_distributed = total_distributed + $2,
		    last_executed = $3,
		    updated_at = now()
		WHERE id = $1
		  AND (last_executed = 0 OR $3 - last_executed >= min_execution_gap)`,
		rec.RuleID, rec.TotalAmount, rec.ExecutedAt)
	if err != nil {
		return fmt.Errorf("advance rule counters: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing rule from a lost gap race.
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM treasury_rules WHERE id = $1)`,
			rec.RuleID).Scan(&exists); err != nil {
			return fmt.Errorf("check rule existence: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: id %d", ErrNotFound, rec.RuleID)
		}
		return fmt.Errorf("%w: rule %d at %d", ErrExecutionGap, rec.RuleID, rec.ExecutedAt)
	}

	payouts, err := json.Marshal(rec.Payouts)
	if err != nil {
		return fmt.Errorf("encode payouts: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO treasury_executions (id, rule_id, executed_at, payouts, total_amount, tx_ref)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.RuleID, rec.ExecutedAt, payouts, rec.TotalAmount, rec.TxRef)
	if err != nil {
		return fmt.Errorf("append execution record: %w", err)
	}
	return tx.Commit(ctx)
}

// GetExecutionHistory returns the rule's execution records in order.
func (p *PostgresStore) GetExecutionHistory(ctx context.Context, ruleID int64) ([]rules.ExecutionRecord, error) {
	if _, err := p.GetRule(ctx, ruleID); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, rule_id, executed_at, payouts, total_amount, tx_ref
		FROM treasury_executions
		WHERE rule_id = $1
		ORDER BY executed_at, created_at`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []rules.ExecutionRecord
	for rows.Next() {
		var rec rules.ExecutionRecord
		var payouts []byte
		if err := rows.Scan(&rec.ID, &rec.RuleID, &rec.ExecutedAt,
			&payouts, &rec.TotalAmount, &rec.TxRef); err != nil {
			return nil, fmt.Errorf("scan execution record: %w", err)
		}
		if err := json.Unmarshal(payouts, &rec.Payouts); err != nil {
			return nil, fmt.Errorf("decode payouts: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Close closes the underlying connection pool.
func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}

// scanRule decodes one treasury_rules row.
func scanRule(row pgx.Row) (*rules.Rule, error) {
	var r rules.Rule
	var typ, status string
	var dist []byte
	var updatedAt time.Time

	err := row.Scan(&r.ID, &r.Name, &r.Description, &typ, &status,
		&r.TriggerAmount, &r.CheckInterval, &r.MinExecutionGap, &dist,
		&r.TimesExecuted, &r.TotalDistributed, &r.LastExecuted, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan rule: %w", err)
	}

	r.Type = rules.RuleType(typ)
	r.Status = rules.RuleStatus(status)
	r.UpdatedAt = updatedAt
	if err := json.Unmarshal(dist, &r.Distribution); err != nil {
		return nil, fmt.Errorf("decode distribution: %w", err)
	}
	return &r, nil
}
