package lead

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neuroreach/intake/internal/platform/db"
)

type leadRepoPG struct{ pool *pgxpool.Pool }

func NewLeadRepoPG(pool *pgxpool.Pool) Repository {
	return &leadRepoPG{pool: pool}
}

func (r *leadRepoPG) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const leadCols = `id, source, contact_ciphertext, fingerprints, intake, score, tier,
	breakdown, status, submission_count, last_submitted_at, created_at, updated_at`

func (r *leadRepoPG) scanRow(row pgx.Row) (*Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.Source, &l.ContactCiphertext, &l.Fingerprints, &l.Intake, &l.Score, &l.Tier,
		&l.Breakdown, &l.Status, &l.SubmissionCount, &l.LastSubmittedAt, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *leadRepoPG) CreateOrResubmit(ctx context.Context, l *Lead, since time.Time) (*Lead, error) {
	var existing *Lead
	err := db.InTx(ctx, r.pool, func(ctx context.Context) error {
		q := r.conn(ctx)
		if len(l.Fingerprints) > 0 {
			// Serializes concurrent submissions sharing an identifier. Locks
			// are taken in sorted order so overlapping sets cannot deadlock.
			keys := append([]string(nil), l.Fingerprints...)
			sort.Strings(keys)
			for _, fp := range keys {
				if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, fp); err != nil {
					return fmt.Errorf("lock fingerprint: %w", err)
				}
			}
			found, err := r.scanRow(q.QueryRow(ctx, `
				UPDATE leads SET submission_count = submission_count + 1,
					last_submitted_at = $3, updated_at = NOW(),
					fingerprints = ARRAY(SELECT DISTINCT unnest(fingerprints || $1::text[]))
				WHERE id = (
					SELECT id FROM leads
					WHERE fingerprints && $1::text[] AND last_submitted_at >= $2
					ORDER BY last_submitted_at DESC LIMIT 1)
				RETURNING `+leadCols,
				l.Fingerprints, since, l.LastSubmittedAt))
			if err == nil {
				existing = found
				return nil
			}
			if !errors.Is(err, ErrNotFound) {
				return fmt.Errorf("find recent lead: %w", err)
			}
		}

		row := q.QueryRow(ctx, `
			INSERT INTO leads (id, source, contact_ciphertext, fingerprints, intake, score, tier,
				breakdown, status, submission_count, last_submitted_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			RETURNING created_at, updated_at`,
			l.ID, l.Source, l.ContactCiphertext, fingerprintsOrEmpty(l.Fingerprints), l.Intake, l.Score, l.Tier,
			l.Breakdown, l.Status, l.SubmissionCount, l.LastSubmittedAt)
		if err := row.Scan(&l.CreatedAt, &l.UpdatedAt); err != nil {
			return fmt.Errorf("insert lead: %w", err)
		}
		return nil
	})
	return existing, err
}

// fingerprintsOrEmpty keeps the NOT NULL column satisfied when a contact has
// no usable identifier.
func fingerprintsOrEmpty(fps []string) []string {
	if fps == nil {
		return []string{}
	}
	return fps
}

func (r *leadRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Lead, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+leadCols+` FROM leads WHERE id = $1`, id))
}

func (r *leadRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Lead, error) {
	l, err := r.scanRow(r.conn(ctx).QueryRow(ctx, `
		UPDATE leads SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+leadCols, id, from, to))
	if !errors.Is(err, ErrNotFound) {
		return l, err
	}

	var exists bool
	if err := r.conn(ctx).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, id).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrConflict
	}
	return nil, ErrNotFound
}

func (r *leadRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Lead, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Tier != "" {
		where += fmt.Sprintf(` AND tier = $%d`, idx)
		args = append(args, f.Tier)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Source != "" {
		where += fmt.Sprintf(` AND source = $%d`, idx)
		args = append(args, f.Source)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM leads`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + leadCols + ` FROM leads` + where +
		fmt.Sprintf(` ORDER BY score DESC, created_at ASC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Lead
	for rows.Next() {
		l, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *leadRepoPG) CountBySourceAndTier(ctx context.Context, since time.Time) ([]SourceTierCount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT source, tier, COUNT(*), COALESCE(SUM(score), 0)
		FROM leads
		WHERE created_at >= $1
		GROUP BY source, tier
		ORDER BY source, tier`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceTierCount
	for rows.Next() {
		var c SourceTierCount
		if err := rows.Scan(&c.Source, &c.Tier, &c.Count, &c.ScoreSum); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
