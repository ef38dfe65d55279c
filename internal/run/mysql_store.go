package run

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	xerrors "OpenPaint-Agent/internal/errors"
)

// MySQLStore 使用 MySQL 持久化运行状态，供多实例部署共享。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建连接池并初始化数据表。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("无法连接到 MySQL: %w", err)
	}

	store := &MySQLStore{db: db}
	if err := store.runMigrations(context.Background()); err != nil {
		return nil, fmt.Errorf("初始化 runs 表失败: %w", err)
	}
	return store, nil
}

// Create 实现 Store 接口。
func (s *MySQLStore) Create(ctx context.Context, r *Run) error {
	if r == nil || r.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "运行 ID 不能为空")
	}
	now := time.Now().Unix()
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	const stmt = `INSERT INTO runs
        (id, goal, input, recipient, max_iterations, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt,
		r.ID, r.Goal, r.Input, r.Recipient, r.MaxIterations,
		string(r.Status), r.Attempts, r.MaxRetries, r.LastError, r.ErrorCode,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		if isDuplicateEntry(err) {
			return ErrRunConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入运行记录失败")
	}
	return nil
}

// Get 返回运行。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Run, error) {
	const query = `SELECT id, goal, input, recipient, max_iterations, status, attempts, max_retries,
        last_error, error_code, result_state, result_summary, result_turns, created_at, updated_at
        FROM runs WHERE id = ?`
	return s.scanRun(s.db.QueryRowContext(ctx, query, id))
}

// Claim 在单条 UPDATE 中完成状态检查与占用，避免并发重复执行。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Run, error) {
	const stmt = `UPDATE runs
        SET status = ?, attempts = attempts + 1, last_error = '', error_code = '', updated_at = ?
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`
	result, err := s.db.ExecContext(ctx, stmt,
		string(StatusRunning), time.Now().Unix(), id,
		string(StatusPending), string(StatusFailed))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "领取运行失败")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取领取结果失败")
	}

	current, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if affected == 1 {
		return current, nil
	}

	switch current.Status {
	case StatusSucceeded:
		return current, ErrRunCompleted
	case StatusRunning:
		return current, ErrRunConflict
	default:
		return current, ErrRunExhausted
	}
}

// MarkSucceeded 记录成功结果。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, result Result) error {
	const stmt = `UPDATE runs
        SET status = ?, result_state = ?, result_summary = ?, result_turns = ?,
            last_error = '', error_code = '', updated_at = ?
        WHERE id = ?`
	res, err := s.db.ExecContext(ctx, stmt,
		string(StatusSucceeded), result.State, result.Summary, result.Turns,
		time.Now().Unix(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记运行成功失败")
	}
	return requireAffected(res)
}

// MarkFailed 标记运行失败。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, _ bool) error {
	const stmt = `UPDATE runs
        SET status = ?, last_error = ?, error_code = ?, updated_at = ?
        WHERE id = ?`
	res, err := s.db.ExecContext(ctx, stmt,
		string(StatusFailed), lastError, string(code), time.Now().Unix(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记运行失败状态出错")
	}
	return requireAffected(res)
}

// List 返回最近更新的运行。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Run, error) {
	opts.applyDefaults()

	query := `SELECT id, goal, input, recipient, max_iterations, status, attempts, max_retries,
        last_error, error_code, result_state, result_summary, result_turns, created_at, updated_at
        FROM runs`
	args := make([]any, 0, len(opts.Statuses)+1)
	if len(opts.Statuses) > 0 {
		placeholders := make([]string, len(opts.Statuses))
		for i, status := range opts.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY updated_at DESC, created_at DESC LIMIT ?"
	args = append(args, opts.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询运行列表失败")
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历运行列表失败")
	}
	return runs, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *MySQLStore) scanRun(row rowScanner) (*Run, error) {
	var (
		r             Run
		status        string
		lastError     sql.NullString
		resultState   sql.NullString
		resultSummary sql.NullString
		resultTurns   sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.Goal, &r.Input, &r.Recipient, &r.MaxIterations,
		&status, &r.Attempts, &r.MaxRetries,
		&lastError, &r.ErrorCode, &resultState, &resultSummary, &resultTurns,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析运行记录失败")
	}
	r.Status = Status(status)
	r.LastError = lastError.String
	if resultState.Valid && resultState.String != "" {
		r.Result = &Result{
			State:   resultState.String,
			Summary: resultSummary.String,
			Turns:   int(resultTurns.Int64),
		}
	}
	return &r, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取更新结果失败")
	}
	if affected == 0 {
		return ErrRunNotFound
	}
	return nil
}

func isDuplicateEntry(err error) bool {
	// MySQL 1062: duplicate entry for key
	return err != nil && strings.Contains(err.Error(), "Error 1062")
}

var _ Store = (*MySQLStore)(nil)
