//go:build windows

package contract

import "os/exec"

func configureProcessGroup(cmd *exec.Cmd) {}
