package sqlite

import (
	"context"
	"encoding/json"

	"autotask/internal/model"
)

// SaveRun 保存一次运行的结果摘要，按 run id 覆盖。
func (s *Store) SaveRun(ctx context.Context, st model.RunState) error {
	results := st.Results
	if results == nil {
		results = []model.AccountRunResult{}
	}
	b, err := json.Marshal(results)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, results_json, last_error)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			results_json = excluded.results_json,
			last_error = excluded.last_error
	`, st.RunID, st.StartedAt, st.FinishedAt, string(b), st.LastError)
	return err
}

// ListRuns 按开始时间倒序返回最近 limit 次运行。
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.RunState, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, results_json, last_error
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunState
	for rows.Next() {
		var (
			st          model.RunState
			resultsJSON string
		)
		if err := rows.Scan(&st.RunID, &st.StartedAt, &st.FinishedAt, &resultsJSON, &st.LastError); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(resultsJSON), &st.Results)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
