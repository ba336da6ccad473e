package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/wesm/leadvault/internal/fileutil"
	"github.com/wesm/leadvault/internal/leads"
)

// maxCollisions bounds the _N suffixes tried before giving up.
const maxCollisions = 1000

// DiskSaver writes downloads into Dir, never overwriting an existing file.
type DiskSaver struct {
	Dir string
}

// Save writes data under name in the saver's directory. If name is taken,
// name_2.ext, name_3.ext, ... are tried. It returns the absolute path.
func (d DiskSaver) Save(name string, data []byte) (string, error) {
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	baseDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("abs download dir %q: %w", dir, err)
	}
	if err := fileutil.SecureMkdirAll(baseDir, 0755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}

	name = leads.SanitizeFilename(filepath.Base(name))
	if name == "" || name == "." {
		return "", fmt.Errorf("invalid file name")
	}

	for i := 1; i <= maxCollisions; i++ {
		candidate := filepath.Join(baseDir, numbered(name, i))
		f, err := fileutil.SecureOpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", candidate, err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			os.Remove(candidate)
			return "", fmt.Errorf("write %s: %w", candidate, err)
		}
		if err := f.Close(); err != nil {
			os.Remove(candidate)
			return "", fmt.Errorf("close %s: %w", candidate, err)
		}
		return candidate, nil
	}
	return "", fmt.Errorf("no free file name for %s in %s", name, baseDir)
}

// numbered returns name for n == 1 and name_n.ext otherwise.
func numbered(name string, n int) string {
	if n == 1 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext)
}
