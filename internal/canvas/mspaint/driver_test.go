package mspaint

import (
	"os/exec"
	"testing"
	"time"

	"OpenPaint-Agent/internal/canvas"
)

func TestReapOnExit(t *testing.T) {
	cmd := exec.Command("sleep", "0")
	if err := cmd.Start(); err != nil {
		t.Skipf("无法启动测试进程: %v", err)
	}

	select {
	case <-reapOnExit(cmd):
	case <-time.After(5 * time.Second):
		t.Fatal("子进程退出后未被回收")
	}
	if cmd.ProcessState == nil || !cmd.ProcessState.Exited() {
		t.Fatalf("预期子进程已退出并被回收: %+v", cmd.ProcessState)
	}
}

func TestDriverGeometry(t *testing.T) {
	driver := NewDriver(canvas.DefaultProfile())
	geometry := driver.Geometry()
	if geometry != canvas.DefaultGeometry {
		t.Fatalf("画布尺寸不符: %+v", geometry)
	}
}
