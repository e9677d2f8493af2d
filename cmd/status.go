package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catalog-enricher/internal/backup"
	"github.com/sells-group/catalog-enricher/internal/model"
	"github.com/sells-group/catalog-enricher/internal/pipeline"
	"github.com/sells-group/catalog-enricher/internal/tablestore"
)

// statusLoadConcurrency bounds how many table files are parsed at once.
const statusLoadConcurrency = 4

// tableStatus summarizes one table on disk.
type tableStatus struct {
	Name       string
	Join       bool
	Exists     bool
	Records    int
	Complete   int
	Incomplete int
	LastBackup string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show record and completeness counts for every table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := loadCatalog(cfg)
		if err != nil {
			return eris.Wrap(err, "load catalog")
		}
		statuses, err := collectStatus(cmd.Context(), cat, newTableStore(cfg), newBackupManager(cfg))
		if err != nil {
			return err
		}
		formatStatus(os.Stdout, statuses)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// collectStatus loads every entity and join table concurrently and applies
// the completeness gate to entity tables. backups may be nil.
func collectStatus(ctx context.Context, cat *model.Catalog, tables tablestore.Store, backups *backup.Manager) ([]tableStatus, error) {
	order, err := cat.Order()
	if err != nil {
		return nil, err
	}
	schemas := make([]*model.Schema, 0, len(order)+len(cat.Joins))
	schemas = append(schemas, order...)
	for _, j := range cat.Joins {
		schemas = append(schemas, j.Schema())
	}

	out := make([]tableStatus, len(schemas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statusLoadConcurrency)
	for i, s := range schemas {
		out[i] = tableStatus{Name: s.Name, Join: i >= len(order)}
		g.Go(func() error {
			st := &out[i]
			t, err := tables.Load(gctx, s)
			if eris.Is(err, tablestore.ErrNotFound) {
				return nil
			}
			if err != nil {
				return eris.Wrapf(err, "status: load %s", s.Name)
			}
			st.Exists = true
			st.Records = t.Len()
			if !st.Join {
				rep := pipeline.Gate(s, t.Records)
				st.Complete, st.Incomplete = rep.Complete, rep.Incomplete
			}
			if backups != nil {
				if list, err := backups.List(s.Name); err == nil && len(list) > 0 {
					st.LastBackup = filepath.Base(list[0])
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func formatStatus(out io.Writer, statuses []tableStatus) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TABLE\tRECORDS\tCOMPLETE\tINCOMPLETE\tLAST BACKUP")
	_, _ = fmt.Fprintln(w, "-----\t-------\t--------\t----------\t-----------")
	for _, s := range statuses {
		name := s.Name
		if s.Join {
			name += " (join)"
		}
		if !s.Exists {
			_, _ = fmt.Fprintf(w, "%s\t%s\t\t\t\n", name, errColor.Sprint("missing"))
			continue
		}
		complete, incomplete := "-", "-"
		if !s.Join {
			complete = okColor.Sprint(s.Complete)
			incomplete = fmt.Sprint(s.Incomplete)
			if s.Incomplete > 0 {
				incomplete = warnColor.Sprint(s.Incomplete)
			}
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", name, s.Records, complete, incomplete, s.LastBackup)
	}
	_ = w.Flush()
}
