package tablestore

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enricher/internal/backup"
	"github.com/sells-group/catalog-enricher/internal/model"
)

// CSVStore keeps each table in <Dir>/<name>.csv. The first row is the
// header; empty cells are empty values.
type CSVStore struct {
	Dir     string
	Backups *backup.Manager // optional; enables Snapshot
}

// NewCSVStore returns a store rooted at dir.
func NewCSVStore(dir string, backups *backup.Manager) *CSVStore {
	return &CSVStore{Dir: dir, Backups: backups}
}

// Path returns the file backing table name.
func (s *CSVStore) Path(name string) string {
	return filepath.Join(s.Dir, name+".csv")
}

// Exists reports whether the table file exists and is non-empty.
func (s *CSVStore) Exists(name string) bool {
	info, err := os.Stat(s.Path(name))
	return err == nil && !info.IsDir() && info.Size() > 0
}

// Load reads the table described by schema.
func (s *CSVStore) Load(ctx context.Context, schema *model.Schema) (*model.Table, error) {
	path := s.Path(schema.Name)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(ErrNotFound, "%s", path)
		}
		return nil, eris.Wrapf(err, "tablestore: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	t, err := decodeTable(ctx, f, schema)
	if err != nil {
		return nil, eris.Wrapf(err, "tablestore: load %s", schema.Name)
	}
	return t, nil
}

// Save writes t atomically: rows go to a temp file in the same directory
// which is then renamed over the original.
func (s *CSVStore) Save(ctx context.Context, t *model.Table) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "tablestore: save")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return eris.Wrapf(err, "tablestore: create dir %s", s.Dir)
	}

	var buf bytes.Buffer
	if err := encodeTable(&buf, t); err != nil {
		return eris.Wrapf(err, "tablestore: encode %s", t.Schema.Name)
	}

	path := s.Path(t.Schema.Name)
	tmp, err := os.CreateTemp(s.Dir, "."+t.Schema.Name+"-*.csv")
	if err != nil {
		return eris.Wrapf(err, "tablestore: create temp for %s", path)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrapf(err, "tablestore: write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrapf(err, "tablestore: close %s", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrapf(err, "tablestore: replace %s", path)
	}

	zap.L().Debug("tablestore: saved table",
		zap.String("table", t.Schema.Name),
		zap.String("path", path),
		zap.Int("records", t.Len()),
	)
	return nil
}

// Snapshot backs up the table file through the configured backup manager.
func (s *CSVStore) Snapshot(name string) (string, error) {
	if s.Backups == nil {
		return "", nil
	}
	return s.Backups.Backup(s.Path(name))
}

func decodeTable(ctx context.Context, r io.Reader, schema *model.Schema) (*model.Table, error) {
	t := model.NewTable(schema)

	headerCh := make(chan []string, 1)
	rowCh, errCh := streamRows(ctx, r, headerCh)

	var header []string
	select {
	case header = <-headerCh:
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "context cancelled")
	}
	if header == nil {
		// Zero-length file: drain and return an empty table.
		for range rowCh {
		}
		if err := <-errCh; err != nil {
			return nil, err
		}
		return t, nil
	}

	for i, col := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))
	}
	for _, col := range header {
		if col != "" && !schema.Has(col) {
			t.ExtraColumns = append(t.ExtraColumns, col)
		}
	}
	if len(t.ExtraColumns) > 0 {
		zap.L().Warn("tablestore: undeclared columns preserved",
			zap.String("table", schema.Name),
			zap.Strings("columns", t.ExtraColumns),
		)
	}

	for row := range rowCh {
		if isBlankRow(row) {
			continue
		}
		rec := model.NewRecord(schema)
		for i, col := range header {
			if i >= len(row) || col == "" {
				continue
			}
			if schema.Has(col) {
				_ = rec.Set(col, row[i]) // membership checked above
			} else if row[i] != "" {
				rec.SetExtra(col, row[i])
			}
		}
		t.Records = append(t.Records, rec)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return t, nil
}

func encodeTable(w io.Writer, t *model.Table) error {
	cw := csv.NewWriter(w)
	header := t.Header()
	if err := cw.Write(header); err != nil {
		return err
	}
	declared := len(t.Schema.Columns())
	row := make([]string, len(header))
	for _, rec := range t.Records {
		for i, col := range header {
			if i < declared {
				row[i] = rec.Get(col)
			} else {
				row[i] = rec.Extra(col)
			}
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// streamRows reads CSV rows and sends them on the returned channel. The first
// row goes to headerCh; headerCh receives nil when the input is empty. Both
// returned channels are closed when reading completes.
func streamRows(ctx context.Context, r io.Reader, headerCh chan<- []string) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1 // allow ragged rows
		reader.LazyQuotes = true

		first := true
		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				if first {
					headerCh <- nil
				}
				return
			}
			if err != nil {
				if first {
					headerCh <- nil
				}
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}

			if first {
				first = false
				headerCh <- record
				continue
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}
