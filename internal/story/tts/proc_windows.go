//go:build windows

package tts

import "os"

// terminate stops a speech process on Windows, which has no SIGTERM equivalent
func terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}
