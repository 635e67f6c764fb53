package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

var adminURL string

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Talk to a running server's loopback admin endpoints",
}

var adminStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print world metrics and rider summaries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return adminRequest(cmd.OutOrStdout(), http.MethodGet, "/admin/v1/state", 5*time.Second)
	},
}

var adminSnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Ask the world loop to write a snapshot now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return adminRequest(cmd.OutOrStdout(), http.MethodPost, "/admin/v1/snapshot", 10*time.Second)
	},
}

var dbOpts struct {
	dataDir string
	worldID string
	path    string
	rider   string
	limit   int
}

var dbCmd = &cobra.Command{
	Use:   "db [snapshots|ticks|joins|inputs|maps]",
	Short: "Query a world's sqlite index",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDB,
}

var worldsCmd = &cobra.Command{
	Use:   "worlds",
	Short: "List worlds under the data directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		entries, err := os.ReadDir(filepath.Join(dbOpts.dataDir, "worlds"))
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() {
				fmt.Fprintln(cmd.OutOrStdout(), e.Name())
			}
		}
		return nil
	},
}

func init() {
	adminCmd.PersistentFlags().StringVar(&adminURL, "url", "http://127.0.0.1:8080", "server base url")
	adminCmd.AddCommand(adminStateCmd, adminSnapshotCmd)

	f := dbCmd.Flags()
	f.StringVar(&dbOpts.worldID, "world", "world_1", "world id")
	f.StringVar(&dbOpts.path, "db", "", "sqlite db path (default: <data>/worlds/<world>/index/world.sqlite)")
	f.StringVar(&dbOpts.rider, "rider", "", "rider id filter (joins, inputs)")
	f.IntVar(&dbOpts.limit, "limit", 20, "result limit")
	for _, c := range []*cobra.Command{dbCmd, worldsCmd} {
		c.Flags().StringVar(&dbOpts.dataDir, "data", "./data", "runtime data directory")
	}

	rootCmd.AddCommand(adminCmd, dbCmd, worldsCmd)
}

func adminRequest(out io.Writer, method, path string, timeout time.Duration) error {
	u := strings.TrimRight(strings.TrimSpace(adminURL), "/") + path
	req, err := http.NewRequest(method, u, nil)
	if err != nil {
		return err
	}
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(out, strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

type dbView struct {
	query   string
	byRider bool // query takes (rider, rider, limit) instead of (limit)
}

var dbViews = map[string]dbView{
	"snapshots": {query: `SELECT tick,path,world_id,riders,maps FROM snapshots ORDER BY tick DESC LIMIT ?`},
	"ticks":     {query: `SELECT tick,digest,joins,leaves,inputs FROM ticks ORDER BY tick DESC LIMIT ?`},
	"maps":      {query: `SELECT kind,id,digest,source FROM maps ORDER BY kind,id LIMIT ?`},
	"joins":     {query: `SELECT tick,rider_id,name,vehicle FROM joins WHERE ?='' OR rider_id=? ORDER BY tick DESC LIMIT ?`, byRider: true},
	"inputs":    {query: `SELECT tick,rider_id,held FROM inputs WHERE ?='' OR rider_id=? ORDER BY tick DESC, seq DESC LIMIT ?`, byRider: true},
}

func runDB(cmd *cobra.Command, args []string) error {
	view := "snapshots"
	if len(args) > 0 {
		view = strings.TrimSpace(args[0])
	}
	v, ok := dbViews[view]
	if !ok {
		return fmt.Errorf("unknown view %q", view)
	}
	path := strings.TrimSpace(dbOpts.path)
	if path == "" {
		path = filepath.Join(dbOpts.dataDir, "worlds", dbOpts.worldID, "index", "world.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		return err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	limit := dbOpts.limit
	if limit <= 0 {
		limit = 20
	}
	if v.byRider {
		return queryJSON(cmd.OutOrStdout(), db, v.query, dbOpts.rider, dbOpts.rider, limit)
	}
	return queryJSON(cmd.OutOrStdout(), db, v.query, limit)
}

// queryJSON prints each row as one JSON object keyed by column name.
func queryJSON(out io.Writer, db *sql.DB, q string, args ...any) error {
	rows, err := db.Query(q, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		if err := enc.Encode(row); err != nil {
			return err
		}
	}
	return rows.Err()
}
