//go:build !windows

package backend

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/hpungsan/csm-companion/internal/errors"
)

// openFileNoFollow opens path with O_NOFOLLOW so a symlink planted at the final
// component is refused. O_CLOEXEC keeps the descriptor out of child processes.
func openFileNoFollow(path string, flag int, perm os.FileMode) (*os.File, error) {
	fd, err := syscall.Open(path, flag|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, uint32(perm))
	if err != nil {
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, errors.NewInvalidRequest("cannot write to symlink")
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}
