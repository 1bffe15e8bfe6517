//go:build !unix

package runner

import (
	"os"
	"syscall"
)

func sysProcAttr() *syscall.SysProcAttr { return nil }

// signalGroup kills only the direct child; there are no process groups here.
func signalGroup(p *os.Process) error {
	return p.Kill()
}

func exitSignal(*os.ProcessState) string { return "" }
