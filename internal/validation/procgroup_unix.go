//go:build unix

package validation

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

// configureProcessGroup puts the validation command in its own process
// group so a timeout kills the whole tree, not just the direct child.
func configureProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}

// resourceUsage extracts the child's peak footprint from the wait status.
func resourceUsage(ps *os.ProcessState) schemas.ResourceUsage {
	usage := schemas.ResourceUsage{
		CPUUserSec:   ps.UserTime().Seconds(),
		CPUSystemSec: ps.SystemTime().Seconds(),
	}
	if ru, ok := ps.SysUsage().(*syscall.Rusage); ok && ru != nil {
		// Maxrss is kilobytes on Linux.
		usage.PeakRSSBytes = ru.Maxrss * 1024
	}
	return usage
}
