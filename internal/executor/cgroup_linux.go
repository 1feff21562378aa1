//go:build linux

package executor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// runCgroup is the cgroup v2 child created for a single run.
type runCgroup struct {
	path string
	fd   int
}

// newRunCgroup creates parent/run-<id> and writes the pids and memory caps.
// parent must be a cgroup v2 directory delegated to this process.
func newRunCgroup(parent, runID string, l Limits) (*runCgroup, error) {
	path := filepath.Join(parent, "run-"+runID)
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, fmt.Errorf("create cgroup: %w", err)
	}
	cg := &runCgroup{path: path, fd: -1}

	if l.MaxPids > 0 {
		if err := cg.set("pids.max", strconv.FormatInt(l.MaxPids, 10)); err != nil {
			_ = cg.remove()
			return nil, err
		}
	}
	if l.MemoryBytes > 0 {
		if err := cg.set("memory.max", strconv.FormatUint(l.MemoryBytes, 10)); err != nil {
			_ = cg.remove()
			return nil, err
		}
	}

	fd, err := unix.Open(path, unix.O_PATH|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
	if err != nil {
		_ = cg.remove()
		return nil, fmt.Errorf("open cgroup: %w", err)
	}
	cg.fd = fd
	return cg, nil
}

func (c *runCgroup) set(name, value string) error {
	if err := os.WriteFile(filepath.Join(c.path, name), []byte(value), 0o644); err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	return nil
}

// attach makes cmd start directly inside the cgroup (clone3 CLONE_INTO_CGROUP).
func (c *runCgroup) attach(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.UseCgroupFD = true
	cmd.SysProcAttr.CgroupFD = c.fd
}

// kill sends SIGKILL to every member. Needs Linux 5.14.
func (c *runCgroup) kill() error {
	return c.set("cgroup.kill", "1")
}

// remove closes the cgroup and deletes it once its members have been reaped.
func (c *runCgroup) remove() error {
	if c.fd >= 0 {
		_ = unix.Close(c.fd)
		c.fd = -1
	}
	var err error
	for range 50 {
		err = unix.Rmdir(c.path)
		if err == nil || errors.Is(err, unix.ENOENT) {
			return nil
		}
		if !errors.Is(err, unix.EBUSY) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	return fmt.Errorf("remove cgroup: %w", err)
}
