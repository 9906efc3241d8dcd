//go:build !windows

package bridge

import (
	"os/exec"
	"runtime"
)

// OpenBrowser opens target in the system browser.
// Only http and https URLs are accepted.
func OpenBrowser(target string) error {
	if err := checkURL(target); err != nil {
		return err
	}
	name := "xdg-open"
	if runtime.GOOS == "darwin" {
		name = "open"
	}
	_, err := startDetached(exec.Command(name, target))
	return err
}
