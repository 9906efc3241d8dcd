//go:build windows

package bridge

import "os/exec"

// OpenBrowser opens target in the system browser.
// Only http and https URLs are accepted.
func OpenBrowser(target string) error {
	if err := checkURL(target); err != nil {
		return err
	}
	_, err := startDetached(exec.Command("rundll32", "url.dll,FileProtocolHandler", target))
	return err
}
