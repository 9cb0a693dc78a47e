package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/zulandar/taskline/internal/config"
	"github.com/zulandar/taskline/internal/db"
	"github.com/zulandar/taskline/internal/locale"
	"github.com/zulandar/taskline/internal/user"
	"gorm.io/gorm"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Inspect and adjust registered users",
	}

	cmd.AddCommand(newUserListCmd())
	cmd.AddCommand(newUserSummaryCmd())
	return cmd
}

func newUserListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered users",
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := openDB(configPath)
			if err != nil {
				return err
			}
			return runUserList(cmd, gormDB)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "taskline.yaml", "path to Taskline config file")
	return cmd
}

func newUserSummaryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "summary <phone> <HH:mm|off>",
		Short: "Set or clear a user's daily summary time",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gormDB, err := openDB(configPath)
			if err != nil {
				return err
			}
			return runUserSummary(cmd, gormDB, args[0], args[1])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "taskline.yaml", "path to Taskline config file")
	return cmd
}

func openDB(configPath string) (*gorm.DB, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return db.Connect(cfg.Database)
}

func runUserList(cmd *cobra.Command, gormDB *gorm.DB) error {
	users, err := user.List(gormDB)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(users) == 0 {
		fmt.Fprintln(out, "No users registered.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "HANDLE\tNAME\tTIMEZONE\tPERSONA\tSUMMARY")
	for _, u := range users {
		summary := "-"
		if u.DailySummaryTime != nil {
			summary = *u.DailySummaryTime
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", u.Handle, u.Name, orDash(u.Timezone), orDash(u.Persona), summary)
	}
	return w.Flush()
}

func runUserSummary(cmd *cobra.Command, gormDB *gorm.DB, phone, when string) error {
	u, err := user.FindByHandle(gormDB, phone)
	if err != nil {
		return err
	}

	if strings.EqualFold(when, "off") {
		if err := user.SetSummaryTime(gormDB, u.ID, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Daily summary disabled for %s\n", u.Handle)
		return nil
	}

	clock, err := locale.ParseClock(when)
	if err != nil {
		return fmt.Errorf("summary time %q: use HH:mm or off", when)
	}
	if err := user.SetSummaryTime(gormDB, u.ID, &clock); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Daily summary for %s set to %s\n", u.Handle, clock)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
