package tools

import (
	"context"
	"fmt"

	"OpenPaint-Agent/internal/canvas"
	xerrors "OpenPaint-Agent/internal/errors"
)

// OpenCanvas 启动或聚焦绘图应用。
type OpenCanvas struct {
	Driver canvas.Driver
}

// Name 实现 Tool 接口。
func (OpenCanvas) Name() string { return "open_canvas" }

// Description 实现 Tool 接口。
func (OpenCanvas) Description() string {
	return "打开绘图应用并使其窗口处于可操作状态"
}

// Invoke 实现 Tool 接口。
func (t OpenCanvas) Invoke(ctx context.Context, _ Arguments) (Result, error) {
	if err := t.Driver.Open(ctx); err != nil {
		return Result{}, err
	}
	return TextResult("Canvas application opened and focused"), nil
}

// DrawRectangle 在画布上绘制矩形。
type DrawRectangle struct {
	Driver canvas.Driver
}

// Name 实现 Tool 接口。
func (DrawRectangle) Name() string { return "draw_rectangle" }

// Description 实现 Tool 接口。
func (DrawRectangle) Description() string {
	return "在画布坐标 (x0,y0) 到 (x1,y1) 之间绘制矩形"
}

// Invoke 实现 Tool 接口。越界坐标属于调用方错误，不做收敛处理。
func (t DrawRectangle) Invoke(ctx context.Context, args Arguments) (Result, error) {
	coords := make([]int, 0, 4)
	for _, key := range []string{"x0", "y0", "x1", "y1"} {
		value, ok := args.Int(key)
		if !ok {
			return Result{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("draw_rectangle 缺少整数参数 %s", key))
		}
		coords = append(coords, value)
	}

	geometry := t.Driver.Geometry()
	if !geometry.Contains(coords[0], coords[1]) || !geometry.Contains(coords[2], coords[3]) {
		return Result{}, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("矩形坐标 (%d,%d)-(%d,%d) 超出画布 %dx%d",
				coords[0], coords[1], coords[2], coords[3], geometry.Width, geometry.Height))
	}

	if err := t.Driver.DrawRectangle(ctx, coords[0], coords[1], coords[2], coords[3]); err != nil {
		return Result{}, err
	}
	return TextResult(fmt.Sprintf("Rectangle drawn from (%d,%d) to (%d,%d)", coords[0], coords[1], coords[2], coords[3])), nil
}

// AddText 在画布的指定锚点插入文本。
type AddText struct {
	Driver canvas.Driver
}

// Name 实现 Tool 接口。
func (AddText) Name() string { return "add_text" }

// Description 实现 Tool 接口。
func (AddText) Description() string {
	return "在画布坐标 (x,y) 处插入文本"
}

// Invoke 实现 Tool 接口。
func (t AddText) Invoke(ctx context.Context, args Arguments) (Result, error) {
	x, okX := args.Int("x")
	y, okY := args.Int("y")
	if !okX || !okY {
		return Result{}, xerrors.New(xerrors.CodeInvalidArgument, "add_text 需要整数参数 x 和 y")
	}
	text, ok := args.String("text")
	if !ok || text == "" {
		return Result{}, xerrors.New(xerrors.CodeInvalidArgument, "add_text 需要非空的 text 参数")
	}

	geometry := t.Driver.Geometry()
	if !geometry.Contains(x, y) {
		return Result{}, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("文本锚点 (%d,%d) 超出画布 %dx%d", x, y, geometry.Width, geometry.Height))
	}

	if err := t.Driver.AddText(ctx, x, y, text); err != nil {
		return Result{}, err
	}
	return TextResult(fmt.Sprintf("Text %q added at (%d,%d)", text, x, y)), nil
}

// SaveFile 把当前画布保存到磁盘。
type SaveFile struct {
	Driver canvas.Driver
}

// Name 实现 Tool 接口。
func (SaveFile) Name() string { return "save_file" }

// Description 实现 Tool 接口。
func (SaveFile) Description() string {
	return "把当前画布保存到指定路径"
}

// Invoke 实现 Tool 接口。
func (t SaveFile) Invoke(ctx context.Context, args Arguments) (Result, error) {
	path, ok := args.String("path")
	if !ok || path == "" {
		return Result{}, xerrors.New(xerrors.CodeInvalidArgument, "save_file 需要非空的 path 参数")
	}
	if err := t.Driver.SaveFile(ctx, path); err != nil {
		return Result{}, err
	}
	return TextResult(fmt.Sprintf("Canvas saved to %s", path)), nil
}
