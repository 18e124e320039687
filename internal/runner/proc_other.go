//go:build !unix

package runner

import "os/exec"

// killGroupOnCancel keeps the default cancellation, which kills the
// direct child only; WaitDelay bounds the wait for its helpers.
func killGroupOnCancel(*exec.Cmd) {}
