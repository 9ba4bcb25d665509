//go:build windows

package main

import "os"

// registerQuitHandler is a no-op: Windows has no SIGQUIT.
func registerQuitHandler() {}

// processAlive reports whether pid names a running process.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
