package tools

import (
	"context"
	"fmt"
	"math/big"

	xerrors "OpenPaint-Agent/internal/errors"
)

// AsciiExpSum 把输入字符串的每个字符码按其 1 起始的位置求幂后求和。
// 纯函数，同样的输入永远得到同样的结果。
type AsciiExpSum struct{}

// Name 实现 Tool 接口。
func (AsciiExpSum) Name() string { return "ascii_exp_sum" }

// Description 实现 Tool 接口。
func (AsciiExpSum) Description() string {
	return "计算字符串中每个字符的编码值按 1 起始位置求幂后的总和"
}

// Invoke 实现 Tool 接口。
func (AsciiExpSum) Invoke(_ context.Context, args Arguments) (Result, error) {
	input, ok := args.String("input_string")
	if !ok || input == "" {
		return Result{}, xerrors.New(xerrors.CodeInvalidArgument, "ascii_exp_sum 需要非空的 input_string 参数")
	}

	sum := Compute(input)
	text := fmt.Sprintf("Sum of positional exponentials of character codes for %q: %s", input, sum.String())
	return TextResult(text), nil
}

// Compute 返回 sum(code(c_i)^i)，i 从 1 开始。
// 字符码的高次幂很快超出 int64，因此使用大整数。
func Compute(input string) *big.Int {
	sum := new(big.Int)
	position := 0
	for _, char := range input {
		position++
		term := new(big.Int).Exp(
			big.NewInt(int64(char)),
			big.NewInt(int64(position)),
			nil,
		)
		sum.Add(sum, term)
	}
	return sum
}
