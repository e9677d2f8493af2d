// Package backup snapshots table files before they are overwritten.
// Backups accumulate; there is no rotation.
package backup

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/model"
)

// Manager writes timestamped copies of table files into Dir.
type Manager struct {
	Dir string
	Now func() time.Time
}

// NewManager returns a Manager writing into dir.
func NewManager(dir string) *Manager {
	return &Manager{Dir: dir, Now: time.Now}
}

// Name returns the backup file name for table at t:
// <table>_backup_<timestamp>.csv.
func Name(table string, t time.Time) string {
	return table + "_backup_" + model.FileTimestamp(t) + ".csv"
}

// Backup copies the file at path into the backup directory. It returns ""
// without error when the file does not exist or is empty.
func (m *Manager) Backup(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", eris.Wrapf(err, "backup: stat %s", path)
	}
	if info.IsDir() {
		return "", eris.Errorf("backup: %s is a directory", path)
	}
	if info.Size() == 0 {
		return "", nil
	}

	if err := os.MkdirAll(m.Dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "backup: create dir %s", m.Dir)
	}

	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	table := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dst := filepath.Join(m.Dir, Name(table, now()))

	if err := copyFile(path, dst); err != nil {
		return "", err
	}

	zap.L().Info("backup: snapshot written",
		zap.String("table", table),
		zap.String("path", dst),
		zap.Int64("bytes", info.Size()),
	)
	return dst, nil
}

// List returns the backup paths for table, newest first.
func (m *Manager) List(table string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(m.Dir, table+"_backup_*.csv"))
	if err != nil {
		return nil, eris.Wrap(err, "backup: glob")
	}
	// Timestamps are fixed width, so lexical order is chronological.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "backup: open %s", src)
	}
	defer in.Close() //nolint:errcheck

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return eris.Wrapf(err, "backup: create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close() //nolint:errcheck
		return eris.Wrapf(err, "backup: copy to %s", dst)
	}
	if err := out.Close(); err != nil {
		return eris.Wrapf(err, "backup: close %s", dst)
	}
	return nil
}
