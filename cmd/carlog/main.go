package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"carlog/internal/app"
	"carlog/internal/carlog"
	"carlog/internal/config"
	"carlog/internal/model"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a CarlogApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "CreateBackup").
func newApp(operation string) (*app.CarlogApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewCarlogApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "carlog",
	Short:        "Vehicle maintenance log with backup and restore",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Backups Dir: %s\n", cfg.Backup.Dir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Database:    %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Files:       %s %s\n", cfg.Files.Type, cfg.Files.Root)
		fmt.Printf("Backups Dir: %s (keep %d)\n", cfg.Backup.Dir, cfg.Backup.Keep)
		return nil
	},
}

// car command
var carCmd = &cobra.Command{
	Use:   "car",
	Short: "Manage cars",
}

var carAddCmd = &cobra.Command{
	Use:   "add BRAND MODEL YEAR",
	Short: "Add a car",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var year int
		if _, err := fmt.Sscan(args[2], &year); err != nil {
			return fmt.Errorf("invalid year %q", args[2])
		}
		plate, _ := cmd.Flags().GetString("plate")
		vin, _ := cmd.Flags().GetString("vin")
		odometer, _ := cmd.Flags().GetInt64("odometer")

		a, err := newApp("AddCar")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.AddCar(&model.Car{
			Brand:              args[0],
			Model:              args[1],
			Year:               year,
			RegistrationNumber: plate,
			VIN:                vin,
			StartingOdometer:   odometer,
			IsActive:           true,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Added car #%d\n", id)
		return nil
	},
}

var carListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cars",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListCars")
		if err != nil {
			return err
		}
		defer a.Close()

		cars, err := a.ListCars()
		if err != nil {
			return err
		}
		if len(cars) == 0 {
			fmt.Println("No cars recorded.")
			return nil
		}
		for _, c := range cars {
			active := ""
			if c.IsActive {
				active = "  [active]"
			}
			fmt.Printf("#%d  %s %s (%d)  %s%s\n", c.ID, c.Brand, c.Model, c.Year, c.RegistrationNumber, active)
		}
		return nil
	},
}

// backup command
var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Create, inspect and restore backups",
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Back up every car into a new archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("CreateBackup")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.CreateBackup(cmd.Context())
		if err != nil {
			if errors.Is(err, carlog.ErrNoCars) {
				return fmt.Errorf("nothing to back up: add a car first")
			}
			return fmt.Errorf("backup failed: %w", err)
		}

		fmt.Printf("Backup written to %s (%s)\n", res.File, humanize.IBytes(uint64(res.Size)))
		fmt.Printf("%d cars, %d activities, %d images\n", res.CarCount, res.ActivityCount, res.ImageCount)
		if res.FilesFailed > 0 {
			fmt.Printf("%d image files could not be read and were left out\n", res.FilesFailed)
		}
		if res.Pruned > 0 {
			fmt.Printf("Removed %d old backup(s)\n", res.Pruned)
		}
		return nil
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore ARCHIVE",
	Short: "Replace all data with the content of an archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if !term.IsTerminal(int(os.Stdin.Fd())) {
				return fmt.Errorf("restore replaces all data; pass --yes to confirm when not running interactively")
			}
			if !confirm(fmt.Sprintf("Restore replaces all cars and activities with the content of %s. Continue?", args[0])) {
				fmt.Println("Restore cancelled.")
				return nil
			}
		}

		a, err := newApp("RestoreBackup")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.RestoreBackup(cmd.Context(), args[0])
		if res != nil {
			for _, w := range res.Warnings {
				fmt.Printf("warning: %s\n", w)
			}
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, carlog.UserMessage(err))
			return err
		}

		fmt.Printf("Restored %d cars, %d activities, %d images, %d reminders\n",
			res.CarsRestored, res.ActivitiesRestored, res.ImagesRestored, res.RemindersRestored)
		return nil
	},
}

var backupValidateCmd = &cobra.Command{
	Use:   "validate ARCHIVE",
	Short: "Check that an archive can be restored",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ValidateBackup")
		if err != nil {
			return err
		}
		defer a.Close()

		ok, msg, err := a.ValidateBackup(args[0])
		if err != nil {
			return err
		}
		fmt.Println(msg)
		if !ok {
			return fmt.Errorf("archive is not valid")
		}
		return nil
	},
}

var backupInfoCmd = &cobra.Command{
	Use:   "info ARCHIVE",
	Short: "Show what an archive contains",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("BackupInfo")
		if err != nil {
			return err
		}
		defer a.Close()

		info, err := a.BackupInfo(args[0])
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(info))
		for k := range info {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("%-11s %s\n", k+":", info[k])
		}
		return nil
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives in the backups directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListBackups")
		if err != nil {
			return err
		}
		defer a.Close()

		backups, err := a.ListBackups()
		if err != nil {
			return err
		}
		if len(backups) == 0 {
			fmt.Println("No backups found.")
			return nil
		}
		for _, b := range backups {
			fmt.Printf("%s  %s  %s\n", b.CreatedAt.Format("2006-01-02 15:04:05"), b.Name, humanize.IBytes(uint64(b.Size)))
		}
		return nil
	},
}

var backupPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest archives",
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetInt("keep")

		a, err := newApp("PruneBackups")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.PruneBackups(keep)
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d backup(s)\n", n)
		return nil
	},
}

var backupEstimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the size of a new backup",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("EstimateBackup")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.EstimateBackupSize()
		if err != nil {
			return err
		}
		fmt.Printf("Estimated backup size: %s\n", humanize.IBytes(uint64(n)))
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("GetHistory")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.GetHistory(limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-15s  %s  %-8s  %s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

// confirm asks a yes/no question on the terminal.
func confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// car subcommands
	carCmd.AddCommand(carAddCmd)
	carAddCmd.Flags().String("plate", "", "Registration number")
	carAddCmd.Flags().String("vin", "", "Vehicle identification number")
	carAddCmd.Flags().Int64("odometer", 0, "Odometer reading when tracking starts")
	carCmd.AddCommand(carListCmd)

	// backup subcommands
	backupCmd.AddCommand(backupCreateCmd)
	backupCmd.AddCommand(backupRestoreCmd)
	backupRestoreCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	backupCmd.AddCommand(backupValidateCmd)
	backupCmd.AddCommand(backupInfoCmd)
	backupCmd.AddCommand(backupListCmd)
	backupCmd.AddCommand(backupPruneCmd)
	backupPruneCmd.Flags().IntP("keep", "k", -1, "Number of archives to keep (default: configured keep)")
	backupCmd.AddCommand(backupEstimateCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(carCmd)
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
