package run

import (
	"context"

	xerrors "OpenPaint-Agent/internal/errors"
)

// ListOptions 控制 List 的过滤与截断。
type ListOptions struct {
	Statuses []Status
	Limit    int
}

func (o *ListOptions) applyDefaults() {
	if o.Limit <= 0 {
		o.Limit = 20
	}
}

// Store 抽象了运行状态的持久化接口。
type Store interface {
	Create(ctx context.Context, r *Run) error
	Get(ctx context.Context, id string) (*Run, error)
	// Claim 把待执行的运行置为 running 并累加尝试次数。
	// 已成功返回 ErrRunCompleted，执行中返回 ErrRunConflict，
	// 重试耗尽返回 ErrRunExhausted。
	Claim(ctx context.Context, id string) (*Run, error)
	MarkSucceeded(ctx context.Context, id string, result Result) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Run, error)
	Close() error
}
