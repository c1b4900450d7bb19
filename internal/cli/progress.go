package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Varn22/pixel-time-tracker/internal/domain"
	"github.com/Varn22/pixel-time-tracker/internal/ui"
)

type userFlags struct {
	userID     string
	telegramID int64
}

func (f *userFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.userID, "user", "", "user id")
	cmd.Flags().Int64Var(&f.telegramID, "telegram-id", 0, "telegram user id")
	cmd.MarkFlagsOneRequired("user", "telegram-id")
	cmd.MarkFlagsMutuallyExclusive("user", "telegram-id")
}

func (f *userFlags) resolve(ctx context.Context, svc *domain.Service) (*domain.User, error) {
	if f.userID != "" {
		return svc.GetUser(ctx, f.userID)
	}
	return svc.GetUserByTelegramID(ctx, f.telegramID)
}

func newStatsCmd(a *app) *cobra.Command {
	var (
		who  userFlags
		days int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a user's level and activity totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			user, err := who.resolve(cmd.Context(), b.Service)
			if err != nil {
				return err
			}
			summary, err := b.Service.Stats(cmd.Context(), user.ID, days)
			if err != nil {
				return err
			}
			renderStats(cmd.OutOrStdout(), *user, *summary)
			return nil
		},
	}
	who.register(cmd)
	cmd.Flags().IntVar(&days, "days", domain.DefaultStatsDays, "window length in days")
	return cmd
}

func renderStats(w io.Writer, user domain.User, s domain.StatsSummary) {
	lvl := s.Level
	var b strings.Builder
	fmt.Fprintln(&b, ui.Heading(ui.IconLevel, fmt.Sprintf("%s · level %d", user.DisplayName(), lvl.Level)))
	fmt.Fprintf(&b, "%s %s\n", ui.Bar(lvl.PercentToLevel, 20),
		ui.Muted.Render(fmt.Sprintf("%d/%d xp", lvl.XPIntoLevel, lvl.XPPerLevel)))
	fmt.Fprintln(&b, ui.LabelValue("Experience", lvl.Experience))
	fmt.Fprintln(&b, ui.LabelValue(fmt.Sprintf("Last %d days", s.WindowDays),
		fmt.Sprintf("%s in %d activities", ui.Duration(s.TotalDurationSeconds), s.ActivityCount)))

	goal := ui.Muted.Render("not reached")
	if s.DailyGoalReached {
		goal = ui.Good.Render("reached")
	}
	fmt.Fprintln(&b, ui.LabelValue("Today", fmt.Sprintf("%s of %s, %s",
		ui.Duration(s.TodaySeconds), ui.Duration(s.DailyGoalSeconds), goal)))

	if len(s.Categories) > 0 {
		fmt.Fprintln(&b, ui.H2.Render(ui.IconChart+" Categories"))
		for _, c := range s.Categories {
			fmt.Fprintf(&b, "- %s %s\n", c.Name, ui.Muted.Render(ui.Duration(c.Seconds)))
		}
	}
	if len(s.TopActivities) > 0 {
		fmt.Fprintln(&b, ui.H2.Render(ui.IconClock+" Top activities"))
		for i, t := range s.TopActivities {
			fmt.Fprintf(&b, "%d. %s %s\n", i+1, t.Name, ui.Muted.Render(ui.Duration(t.Seconds)))
		}
	}
	fmt.Fprintln(w, ui.Panel.Render(strings.TrimRight(b.String(), "\n")))
}

func newAchievementsCmd(a *app) *cobra.Command {
	var who userFlags
	cmd := &cobra.Command{
		Use:   "achievements",
		Short: "List the achievement catalog with a user's unlocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			user, err := who.resolve(cmd.Context(), b.Service)
			if err != nil {
				return err
			}
			statuses, err := b.Service.ListAchievements(cmd.Context(), user.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.Heading(ui.IconTrophy, "Achievements"))
			for _, st := range statuses {
				if st.Unlocked {
					fmt.Fprintf(out, "%s %s %s\n", st.Definition.Icon, ui.Good.Render(st.Definition.Title),
						ui.Muted.Render(st.UnlockedAt.Format("2006-01-02")))
					continue
				}
				fmt.Fprintf(out, "%s %s %s\n", ui.IconLocked, ui.Muted.Render(st.Definition.Title),
					ui.Muted.Render(st.Definition.Description))
			}
			return nil
		},
	}
	who.register(cmd)
	return cmd
}

func newCompleteCmd(a *app) *cobra.Command {
	var (
		who     userFlags
		seconds float64
	)
	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Apply a finished activity's duration to a user's progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			duration, err := domain.DurationFromSeconds(seconds)
			if err != nil {
				return err
			}
			b, err := a.backend(cmd)
			if err != nil {
				return err
			}
			defer b.Close()

			user, err := who.resolve(cmd.Context(), b.Service)
			if err != nil {
				return err
			}
			result, err := b.Service.CompleteActivity(cmd.Context(), user.ID, duration)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, ui.LabelValue("XP earned", result.XPEarned))
			fmt.Fprintln(out, ui.LabelValue("Level", result.Level))
			if result.NewLevel != nil {
				fmt.Fprintln(out, ui.Gold.Render(fmt.Sprintf("%s level up: %d", ui.IconSparkle, *result.NewLevel)))
			}
			for _, def := range result.UnlockedAchievements {
				fmt.Fprintln(out, ui.Gold.Render(ui.IconTrophy+" "+def.Title))
			}
			return nil
		},
	}
	who.register(cmd)
	cmd.Flags().Float64Var(&seconds, "seconds", 0, "activity duration in seconds")
	_ = cmd.MarkFlagRequired("seconds")
	return cmd
}

// isNotFound lets main print a friendlier message for unknown users.
func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrUserNotFound)
}
