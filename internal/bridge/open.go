package bridge

import (
	"fmt"
	"os/exec"
	"strings"
)

// startDetached starts cmd and reaps it in the background. The returned
// channel receives the exit result once the process has been waited on.
func startDetached(cmd *exec.Cmd) (<-chan error, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()
	return done, nil
}

func checkURL(target string) error {
	lower := strings.ToLower(target)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return fmt.Errorf("refusing to open non-http url: %q", target)
	}
	return nil
}
