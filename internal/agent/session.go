package agent

import xerrors "OpenPaint-Agent/internal/errors"

// State 表示一次运行所处的阶段。
type State string

const (
	// StateRunning 表示回合循环仍在推进。
	StateRunning State = "RUNNING"
	// StateDone 表示模型给出了最终答案。
	StateDone State = "DONE"
	// StateAborted 表示运行因失败或回合耗尽而终止。
	StateAborted State = "ABORTED"
)

// TurnRecord 记录一个已完成回合的指令和工具结果。
type TurnRecord struct {
	Turn       int    `json:"turn"`
	ToolName   string `json:"tool_name"`
	ResultText string `json:"result_text"`
	Directive  string `json:"directive"`
}

// Session 承载回合循环的全部可变状态。
// 循环持有它并在每个回合显式传递，不依赖任何全局变量，
// 同一进程内的多次运行互不干扰。
type Session struct {
	Turn        int
	State       State
	Summary     string
	FailureCode xerrors.Code
	History     []TurnRecord
}

// NewSession 创建初始状态的会话。
func NewSession() *Session {
	return &Session{State: StateRunning}
}

func (s *Session) recordTurn(toolName, resultText, directive string) {
	s.Turn++
	s.History = append(s.History, TurnRecord{
		Turn:       s.Turn,
		ToolName:   toolName,
		ResultText: resultText,
		Directive:  directive,
	})
}

func (s *Session) finish(summary string) {
	s.State = StateDone
	s.Summary = summary
}

func (s *Session) abort(code xerrors.Code, summary string) {
	s.State = StateAborted
	s.FailureCode = code
	s.Summary = summary
}
