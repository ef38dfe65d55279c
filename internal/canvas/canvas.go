package canvas

import "context"

// Geometry 描述画布的像素尺寸。
type Geometry struct {
	Width  int
	Height int
}

// DefaultGeometry 是运行环境约定的画布大小，不随单次运行变化。
var DefaultGeometry = Geometry{Width: 1600, Height: 808}

// Contains 判断坐标是否落在画布范围内。
func (g Geometry) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x <= g.Width && y <= g.Height
}

// Driver 抽象一个外部运行的桌面绘图应用。所有副作用都发生在进程之外，
// 重复调用会在画布上叠加效果，驱动自身不保存任何绘制状态。
type Driver interface {
	// Open 启动或聚焦绘图应用。
	Open(ctx context.Context) error
	// DrawRectangle 在画布坐标 (x0,y0)-(x1,y1) 之间绘制矩形。
	DrawRectangle(ctx context.Context, x0, y0, x1, y1 int) error
	// AddText 在画布坐标 (x,y) 处插入文本。
	AddText(ctx context.Context, x, y int, text string) error
	// SaveFile 将当前画布保存到指定路径。
	SaveFile(ctx context.Context, path string) error
	// Geometry 返回画布尺寸，供调用方做边界校验。
	Geometry() Geometry
}
