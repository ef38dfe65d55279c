package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider 定义知识库检索的通用接口。
type Provider interface {
	Query(goal string) []Snippet
}

// Snippet 描述可供大模型引用的一段知识。
type Snippet struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Keywords []string `json:"keywords"`
	Tags     []string `json:"tags"`
}

// StaticProvider 通过内置条目或 JSON 文件提供静态知识检索能力。
type StaticProvider struct {
	items      []Snippet
	maxResults int
}

// NewStaticProvider 创建静态知识库实例。
func NewStaticProvider(items []Snippet, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &StaticProvider{
		items:      items,
		maxResults: maxResults,
	}
}

// NewDefaultProvider 返回内置的绘图布局知识库。
// 条目给出画布尺寸与参考矩形、文字锚点的经验坐标，
// 帮助模型产出落在画布内的工具参数。
func NewDefaultProvider() *StaticProvider {
	return NewStaticProvider([]Snippet{
		{
			Title: "画布布局",
			Content: "画布可用区域为 1600x808。把矩形画在画布中部，" +
				"参考坐标为 (600,354) 到 (1000,454)。",
			Keywords: []string{"rectangle", "draw", "矩形", "绘制"},
			Tags:     []string{"canvas"},
		},
		{
			Title: "文字位置",
			Content: "文字应写在矩形内部，锚点参考坐标为 (800,404)。" +
				"先绘制矩形，再添加文字，避免文字被覆盖。",
			Keywords: []string{"text", "文字", "写入"},
			Tags:     []string{"canvas"},
		},
		{
			Title: "保存与发送",
			Content: "保存文件后可先用 check_file_exists 确认文件已落盘，" +
				"再把文件路径作为附件发送邮件。",
			Keywords: []string{"save", "email", "保存", "邮件"},
			Tags:     []string{"delivery"},
		},
	}, 3)
}

// LoadStaticProvider 从 JSON 文件加载知识条目。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("知识库文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析知识库路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取知识库文件失败: %w", err)
	}
	defer file.Close()

	var entries []Snippet
	if err := json.NewDecoder(file).Decode(&entries); err != nil {
		return nil, fmt.Errorf("解析知识库文件失败: %w", err)
	}

	return NewStaticProvider(entries, maxResults), nil
}

// Query 根据运行目标进行简单的关键字匹配。
func (p *StaticProvider) Query(goal string) []Snippet {
	if p == nil {
		return nil
	}

	goal = strings.ToLower(strings.TrimSpace(goal))

	results := make([]Snippet, 0, p.maxResults)
	for _, item := range p.items {
		if matches(item, goal) {
			results = append(results, item)
			if len(results) >= p.maxResults {
				break
			}
		}
	}
	return results
}

func matches(snippet Snippet, goal string) bool {
	if len(snippet.Keywords) == 0 {
		return true
	}
	for _, keyword := range snippet.Keywords {
		normalized := strings.ToLower(strings.TrimSpace(keyword))
		if normalized == "" {
			continue
		}
		if strings.Contains(goal, normalized) {
			return true
		}
	}
	for _, tag := range snippet.Tags {
		normalized := strings.ToLower(strings.TrimSpace(tag))
		if normalized == "" {
			continue
		}
		if strings.Contains(goal, normalized) {
			return true
		}
	}
	return false
}

// Ensure StaticProvider 实现 Provider 接口。
var _ Provider = (*StaticProvider)(nil)
