//go:build windows

package validation

import (
	"os"
	"os/exec"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

// configureProcessGroup is a no-op on Windows; CommandContext's default
// Kill covers the direct child, which is the best portable behavior.
func configureProcessGroup(_ *exec.Cmd) {}

func resourceUsage(ps *os.ProcessState) schemas.ResourceUsage {
	return schemas.ResourceUsage{
		CPUUserSec:   ps.UserTime().Seconds(),
		CPUSystemSec: ps.SystemTime().Seconds(),
	}
}
