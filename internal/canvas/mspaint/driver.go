package mspaint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/go-vgo/robotgo"

	"OpenPaint-Agent/internal/canvas"
)

// Driver 通过操作系统级的鼠标键盘事件驱动 MS Paint。
// 应用窗口是唯一的真实状态，驱动只记录进程句柄与是否已打开。
type Driver struct {
	profile canvas.Profile

	mu     sync.Mutex
	cmd    *exec.Cmd
	opened bool
}

// NewDriver 根据界面布局配置创建驱动。
func NewDriver(profile canvas.Profile) *Driver {
	return &Driver{profile: profile}
}

// Geometry 实现 canvas.Driver 接口。
func (d *Driver) Geometry() canvas.Geometry {
	return canvas.Geometry{Width: d.profile.Width, Height: d.profile.Height}
}

// Open 启动绘图应用并等待窗口就绪。
func (d *Driver) Open(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opened {
		return d.focusLocked()
	}

	cmd := exec.CommandContext(ctx, d.profile.Executable)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("启动绘图应用 %s 失败: %w", d.profile.Executable, err)
	}
	reapOnExit(cmd)
	d.cmd = cmd
	d.opened = true

	// 等待窗口完成初始化后再接收输入。
	d.pause(2)
	return d.focusLocked()
}

// DrawRectangle 选中矩形工具后按住左键拖拽出矩形。
func (d *Driver) DrawRectangle(ctx context.Context, x0, y0, x1, y1 int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.readyLocked(ctx); err != nil {
		return err
	}

	d.clickToolbar(d.profile.RectangleTool)

	start := d.toScreen(x0, y0)
	end := d.toScreen(x1, y1)

	robotgo.Move(start.X, start.Y)
	d.pause(1)
	robotgo.Toggle("left", "down")
	d.pause(1)
	robotgo.Move(end.X, end.Y)
	d.pause(1)
	robotgo.Toggle("left", "up")
	d.pause(1)
	return nil
}

// AddText 选中文本工具，在锚点处拉出文本框并输入内容。
func (d *Driver) AddText(ctx context.Context, x, y int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.readyLocked(ctx); err != nil {
		return err
	}

	// 先切回选择工具，清掉上一步可能遗留的工具状态。
	d.clickToolbar(d.profile.SelectTool)
	d.clickToolbar(d.profile.TextTool)

	anchor := d.toScreen(x, y)
	robotgo.Move(anchor.X-50, anchor.Y-25)
	d.pause(1)
	robotgo.Toggle("left", "down")
	robotgo.Move(anchor.X+50, anchor.Y+25)
	robotgo.Toggle("left", "up")
	d.pause(2)

	robotgo.Click(anchor.X, anchor.Y)
	d.pause(1)
	robotgo.TypeStr(text)
	d.pause(1)

	// 点击画布空白处结束文本编辑。
	origin := d.toScreen(50, 50)
	robotgo.Click(origin.X, origin.Y)
	d.pause(1)
	return nil
}

// SaveFile 通过 Ctrl+S 保存对话框把画布写入磁盘。
func (d *Driver) SaveFile(ctx context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.readyLocked(ctx); err != nil {
		return err
	}
	if err := probeWritable(path); err != nil {
		return err
	}

	robotgo.KeyTap("s", "ctrl")
	d.pause(2)
	robotgo.TypeStr(path)
	d.pause(1)
	robotgo.KeyTap("enter")
	d.pause(2)
	// 再回车一次，处理可能出现的覆盖确认框。
	robotgo.KeyTap("enter")
	d.pause(1)
	return nil
}

func (d *Driver) readyLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !d.opened {
		return errors.New("绘图应用尚未打开，请先调用 open_canvas")
	}
	return d.focusLocked()
}

func (d *Driver) focusLocked() error {
	if d.cmd == nil || d.cmd.Process == nil {
		return nil
	}
	if err := robotgo.ActivePid(d.cmd.Process.Pid); err != nil {
		return fmt.Errorf("聚焦绘图应用窗口失败: %w", err)
	}
	d.pause(1)
	return nil
}

func (d *Driver) clickToolbar(p canvas.Point) {
	robotgo.Click(p.X, p.Y)
	d.pause(2)
}

// toScreen 把画布坐标换算为屏幕绝对坐标。
func (d *Driver) toScreen(x, y int) canvas.Point {
	return canvas.Point{
		X: d.profile.CanvasOrigin.X + x,
		Y: d.profile.CanvasOrigin.Y + y,
	}
}

func (d *Driver) pause(steps int) {
	delay := d.profile.StepDelayMS
	if delay <= 0 {
		delay = 500
	}
	robotgo.MilliSleep(delay * steps)
}

// reapOnExit 在后台等待子进程退出并回收，避免应用被用户关闭后残留僵尸进程。
// 返回的通道在回收完成后关闭。
func reapOnExit(cmd *exec.Cmd) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	return done
}

// probeWritable 在触发保存对话框之前确认目标路径可写，
// 避免应用停在一个永远无法完成的系统对话框上。
func probeWritable(path string) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("保存目录不可用: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("保存目录 %s 不是目录", dir)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("目标路径不可写: %w", err)
	}
	_ = file.Close()
	return nil
}

var _ canvas.Driver = (*Driver)(nil)
