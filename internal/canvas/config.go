package canvas

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Point 表示屏幕上的一个像素坐标。
type Point struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// Profile 描述驱动某个绘图应用所需的界面布局信息。
// 工具栏按钮的位置随应用版本变化，因此放在配置里而不是写死。
type Profile struct {
	Executable    string `yaml:"executable"`
	RectangleTool Point  `yaml:"rectangle_tool"`
	TextTool      Point  `yaml:"text_tool"`
	SelectTool    Point  `yaml:"select_tool"`
	CanvasOrigin  Point  `yaml:"canvas_origin"`
	Width         int    `yaml:"width"`
	Height        int    `yaml:"height"`
	StepDelayMS   int    `yaml:"step_delay_ms"`
}

// Profiles 对应 configs/canvas.yaml 的整体结构。
type Profiles struct {
	Apps map[string]Profile `yaml:"apps"`
}

// LoadProfiles 解析绘图应用的 YAML 配置文件。
func LoadProfiles(path string) (Profiles, error) {
	if strings.TrimSpace(path) == "" {
		return Profiles{Apps: map[string]Profile{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Profiles{}, fmt.Errorf("读取画布配置失败: %w", err)
	}

	var profiles Profiles
	if err := yaml.Unmarshal(content, &profiles); err != nil {
		return Profiles{}, fmt.Errorf("解析画布配置失败: %w", err)
	}
	if profiles.Apps == nil {
		profiles.Apps = map[string]Profile{}
	}
	return profiles, nil
}

// DefaultProfile 返回 MS Paint 的缺省界面布局。
func DefaultProfile() Profile {
	return Profile{
		Executable:    "mspaint",
		RectangleTool: Point{X: 512, Y: 82},
		TextTool:      Point{X: 724, Y: 82},
		SelectTool:    Point{X: 350, Y: 82},
		CanvasOrigin:  Point{X: 0, Y: 160},
		Width:         DefaultGeometry.Width,
		Height:        DefaultGeometry.Height,
		StepDelayMS:   500,
	}
}

// Resolve 返回指定名称的应用布局，未配置时退回缺省值。
func (p Profiles) Resolve(name string) Profile {
	if profile, ok := p.Apps[name]; ok {
		if profile.Width <= 0 {
			profile.Width = DefaultGeometry.Width
		}
		if profile.Height <= 0 {
			profile.Height = DefaultGeometry.Height
		}
		if profile.StepDelayMS <= 0 {
			profile.StepDelayMS = DefaultProfile().StepDelayMS
		}
		if strings.TrimSpace(profile.Executable) == "" {
			profile.Executable = DefaultProfile().Executable
		}
		return profile
	}
	return DefaultProfile()
}
