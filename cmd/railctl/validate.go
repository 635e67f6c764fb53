package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"railnav/internal/grid"
	"railnav/internal/sim/catalogs"
)

var validateStrict bool

var validateCmd = &cobra.Command{
	Use:   "validate [path...]",
	Short: "Load map documents and report what normalization changed",
	Long: `Loads every grid and track document under the given files or directories
(default: <configs>/maps). With --strict, one-sided grid edges fail validation
instead of being closed.`,
	RunE: runValidate,
}

var digestCmd = &cobra.Command{
	Use:   "digest [path...]",
	Short: "Print map digests as they would be recorded in snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		cats, err := loadPaths(args)
		if err != nil {
			return err
		}
		printDigests(cmd.OutOrStdout(), cats)
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateStrict, "strict", false, "reject asymmetric grid edges")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cats, err := loadPaths(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, id := range cats.GridIDs() {
		g := cats.Grids[id]
		fmt.Fprintf(out, "grid  %-16s %dx%d spawn=%s facing=%s", id, g.Map.Width, g.Map.Height, g.Spawn, g.Facing)
		if g.Normalized > 0 {
			fmt.Fprintf(out, " closed_border_flags=%d", g.Normalized)
		}
		fmt.Fprintln(out)
		for _, a := range g.Asymmetric {
			fmt.Fprintf(out, "      asymmetric %s\n", a)
		}
	}
	for _, id := range cats.TrackIDs() {
		t := cats.Tracks[id]
		fmt.Fprintf(out, "track %-16s main=%d branches=%d junctions=%d\n", id, len(t.Track.Main), len(t.Track.Branches), len(t.Track.Junctions()))
		for _, b := range t.Track.Branches {
			rejoin := "dead-end"
			if b.Rejoin != nil {
				rejoin = fmt.Sprintf("rejoin=%d+%.2f", b.Rejoin.Index, b.Rejoin.Offset)
			}
			fmt.Fprintf(out, "      branch %s attach=%d nodes=%d %s\n", b.ID, b.Attach, len(b.Nodes), rejoin)
		}
	}
	fmt.Fprintf(out, "ok: %d grid(s), %d track(s)\n", len(cats.Grids), len(cats.Tracks))
	return nil
}

func printDigests(out io.Writer, cats *catalogs.Catalogs) {
	for _, id := range cats.GridIDs() {
		fmt.Fprintf(out, "grid:%s %s\n", id, cats.Grids[id].Digest)
	}
	for _, id := range cats.TrackIDs() {
		fmt.Fprintf(out, "track:%s %s\n", id, cats.Tracks[id].Digest)
	}
	fmt.Fprintf(out, "catalogs %s\n", cats.Digest())
}

// loadPaths merges the maps found under each argument. Directories are searched
// recursively; no arguments means <configs>/maps.
func loadPaths(paths []string) (*catalogs.Catalogs, error) {
	t, err := loadTuning()
	if err != nil {
		return nil, err
	}
	opts := catalogOptions(t)
	if validateStrict {
		opts.Symmetry = grid.SymmetryReject
	}
	if len(paths) == 0 {
		paths = []string{filepath.Join(flagConfigs, "maps")}
	}

	merged := &catalogs.Catalogs{Grids: map[string]*catalogs.GridMap{}, Tracks: map[string]*catalogs.TrackMap{}}
	var files []string
	for _, p := range paths {
		fi, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			files = append(files, p)
			continue
		}
		sub, err := catalogs.LoadDir(p, opts)
		if err != nil {
			return nil, err
		}
		if err := mergeCatalogs(merged, sub); err != nil {
			return nil, err
		}
	}
	if len(files) > 0 {
		sub, err := catalogs.LoadFiles(files, opts)
		if err != nil {
			return nil, err
		}
		if err := mergeCatalogs(merged, sub); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

func mergeCatalogs(dst, src *catalogs.Catalogs) error {
	for id, g := range src.Grids {
		if _, dup := dst.Grids[id]; dup {
			return fmt.Errorf("%w: grid %s", catalogs.ErrDuplicate, id)
		}
		dst.Grids[id] = g
	}
	for id, t := range src.Tracks {
		if _, dup := dst.Tracks[id]; dup {
			return fmt.Errorf("%w: track %s", catalogs.ErrDuplicate, id)
		}
		dst.Tracks[id] = t
	}
	return nil
}
