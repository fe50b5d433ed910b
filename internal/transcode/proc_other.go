//go:build !unix

package transcode

import "os/exec"

func setProcessGroup(*exec.Cmd) {}

func signalTerminate(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func signalKill(cmd *exec.Cmd) error {
	return signalTerminate(cmd)
}
