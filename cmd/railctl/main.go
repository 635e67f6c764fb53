// Command railctl is the offline companion to the server: it validates map documents,
// verifies recorded tick logs and drives a rider locally in the terminal.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"railnav/internal/sim/catalogs"
	"railnav/internal/sim/tuning"
)

var Version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:           "railctl",
	Short:         "railctl - tools for railnav maps and worlds",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	flagConfigs string
	flagTuning  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigs, "configs", "./configs", "config directory")
	rootCmd.PersistentFlags().StringVar(&flagTuning, "tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")

	rootCmd.AddCommand(validateCmd, digestCmd, replayCmd, playCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadTuning reads the tuning file, falling back to defaults when the default path is
// absent. An explicit --tuning path must exist.
func loadTuning() (tuning.Tuning, error) {
	p := flagTuning
	explicit := p != ""
	if !explicit {
		p = filepath.Join(flagConfigs, "tuning.yaml")
	}
	t, err := tuning.Load(p)
	if err != nil {
		if !explicit && os.IsNotExist(err) {
			return tuning.Defaults(), nil
		}
		return t, err
	}
	return t, nil
}

func catalogOptions(t tuning.Tuning) catalogs.Options {
	return catalogs.Options{Symmetry: t.SymmetryPolicy(), RejoinTolerance: t.Track.RejoinTolerance}
}

func loadMaps(dir string) (*catalogs.Catalogs, tuning.Tuning, error) {
	t, err := loadTuning()
	if err != nil {
		return nil, t, err
	}
	if dir == "" {
		dir = filepath.Join(flagConfigs, "maps")
	}
	cats, err := catalogs.LoadDir(dir, catalogOptions(t))
	return cats, t, err
}
