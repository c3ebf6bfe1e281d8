package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"mediabot/internal/adapters/sqlite"
)

var statsCmd = &cobra.Command{
	Use:   "stats <platform-id>",
	Short: "Show a user's download statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  statsRun,
}

func statsRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, _, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	u, err := store.GetUser(ctx, args[0])
	if errors.Is(err, sqlite.ErrUserNotFound) {
		return fmt.Errorf("no user with platform id %s", args[0])
	}
	if err != nil {
		return err
	}
	st, err := store.UserStats(ctx, args[0])
	if err != nil {
		return err
	}
	pending, err := store.CountPending(ctx)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	bold.Printf("%s", u.DisplayName())
	fmt.Printf(" (id %s)\n", u.PlatformID)
	fmt.Printf("  Member since:  %s (%d days)\n", st.MemberSince.Format("2006-01-02"), st.DaysActive(time.Now()))
	fmt.Printf("  Last active:   %s\n", u.LastActive.Local().Format("2006-01-02 15:04"))
	fmt.Printf("  Downloads:     %d\n", st.Total)
	green.Printf("  Successful:    %d (%.1f%%)\n", st.Successful, st.SuccessRate())
	cyan.Printf("  Video / audio: %d / %d\n", st.Video, st.Audio)
	if u.PreferredKind != "" {
		fmt.Printf("  Preference:    %s\n", u.PreferredKind)
	}
	fmt.Printf("\nPending records (all users): %d\n", pending)
	return nil
}
