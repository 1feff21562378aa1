//go:build !linux

package executor

import (
	"errors"
	"os/exec"
)

type runCgroup struct {
	path string
}

func newRunCgroup(parent, runID string, l Limits) (*runCgroup, error) {
	return nil, errors.New("per-run cgroups require Linux")
}

func (c *runCgroup) attach(cmd *exec.Cmd) {}

func (c *runCgroup) kill() error { return nil }

func (c *runCgroup) remove() error { return nil }
