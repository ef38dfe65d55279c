// Package agent 实现模型驱动的回合循环：把任务目标交给大模型，
// 逐回合解析其指令并调用对应工具，直到模型宣布完成或运行终止。
package agent
