//go:build linux

package executor

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// treeKillTimeout bounds how long killTree keeps sweeping for stragglers.
const treeKillTimeout = 2 * time.Second

// killTree kills the run's process group, then sweeps /proc for processes
// that escaped it with setsid or a double fork. Those are recognised by the
// run marker in their environment or a working directory inside the sandbox.
// The sweep repeats until nothing is found, since a process can fork while
// the previous sweep is running.
func killTree(cmd *exec.Cmd, marker, dir string) error {
	if cmd.Process == nil {
		return nil
	}
	if err := killProcessGroup(cmd); err != nil {
		return err
	}

	deadline := time.Now().Add(treeKillTimeout)
	for {
		pids := runProcesses(marker, dir)
		if len(pids) == 0 {
			return nil
		}
		for _, pid := range pids {
			_ = unix.Kill(pid, unix.SIGKILL)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%d processes survived SIGKILL: %v", len(pids), pids)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// runProcesses lists live processes belonging to the run. Zombies have no
// environment or working directory left and are never returned.
func runProcesses(marker, dir string) []int {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}
	self := os.Getpid()
	needle := []byte("\x00" + marker + "\x00")

	var pids []int
	for _, entry := range entries {
		pid, err := strconv.Atoi(entry.Name())
		if err != nil || pid == self {
			continue
		}
		if carriesMarker(pid, needle) || worksIn(pid, dir) {
			pids = append(pids, pid)
		}
	}
	return pids
}

func carriesMarker(pid int, needle []byte) bool {
	env, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/environ")
	if err != nil || len(env) == 0 {
		return false
	}
	return bytes.HasPrefix(env, needle[1:]) || bytes.Contains(env, needle)
}

func worksIn(pid int, dir string) bool {
	if dir == "" || dir == "/" {
		return false
	}
	cwd, err := os.Readlink("/proc/" + strconv.Itoa(pid) + "/cwd")
	if err != nil {
		return false
	}
	return cwd == dir || strings.HasPrefix(cwd, dir+"/")
}
