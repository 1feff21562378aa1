//go:build !linux

package executor

import "os/exec"

func killTree(cmd *exec.Cmd, marker, dir string) error {
	return killProcessGroup(cmd)
}
