//go:build unix

package tts

import (
	"os"
	"syscall"
)

// terminate asks a speech process to stop on Unix systems
func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Signal(syscall.SIGTERM)
}
