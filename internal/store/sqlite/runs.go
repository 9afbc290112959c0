package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ticket_engine/internal/model"
)

// SaveReport 写入一次运行及其全部账号结果；同一 run_id 重复保存会覆盖。
func (s *Store) SaveReport(ctx context.Context, r model.RunReport) error {
	if r.RunID == "" {
		return errors.New("run id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, event_url, total, success, failure, manual, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			event_url = excluded.event_url,
			total = excluded.total,
			success = excluded.success,
			failure = excluded.failure,
			manual = excluded.manual,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`, r.RunID, r.EventURL, r.Total, r.Succeeded, r.Failed, r.Manual, r.StartedAt.UnixMilli(), r.FinishedAt.UnixMilli())
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM outcomes WHERE run_id = ?`, r.RunID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outcomes (run_id, account_id, email, success, order_number, error, reason, requires_manual, proxy, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, o := range r.Outcomes {
		if _, err := stmt.ExecContext(ctx, r.RunID, o.AccountID, o.Email, boolInt(o.Success), o.OrderNumber, o.Error, o.Reason,
			boolInt(o.RequiresManual), o.Proxy, o.StartedAt.UnixMilli(), o.FinishedAt.UnixMilli()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListRuns 按开始时间倒序返回运行汇总，不含账号明细。
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.RunReport, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_url, total, success, failure, manual, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.RunReport{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetRun(ctx context.Context, id string) (model.RunReport, bool, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `
		SELECT id, event_url, total, success, failure, manual, started_at, finished_at
		FROM runs WHERE id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RunReport{}, false, nil
		}
		return model.RunReport{}, false, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT account_id, email, success, order_number, error, reason, requires_manual, proxy, started_at, finished_at
		FROM outcomes WHERE run_id = ? ORDER BY rowid
	`, id)
	if err != nil {
		return model.RunReport{}, false, err
	}
	defer rows.Close()

	r.Outcomes = []model.AccountOutcome{}
	for rows.Next() {
		var (
			o                     model.AccountOutcome
			success, manual       int
			startedAt, finishedAt int64
		)
		if err := rows.Scan(&o.AccountID, &o.Email, &success, &o.OrderNumber, &o.Error, &o.Reason, &manual, &o.Proxy, &startedAt, &finishedAt); err != nil {
			return model.RunReport{}, false, err
		}
		o.Success = success == 1
		o.RequiresManual = manual == 1
		o.StartedAt = time.UnixMilli(startedAt)
		o.FinishedAt = time.UnixMilli(finishedAt)
		r.Outcomes = append(r.Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return model.RunReport{}, false, err
	}
	return r, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (model.RunReport, error) {
	var (
		r                     model.RunReport
		startedAt, finishedAt int64
	)
	if err := row.Scan(&r.RunID, &r.EventURL, &r.Total, &r.Succeeded, &r.Failed, &r.Manual, &startedAt, &finishedAt); err != nil {
		return model.RunReport{}, err
	}
	r.StartedAt = time.UnixMilli(startedAt)
	r.FinishedAt = time.UnixMilli(finishedAt)
	return r, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
