package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/jask/canvaspaint/internal/database"
	"github.com/jask/canvaspaint/internal/paint"
	"github.com/jask/canvaspaint/internal/palette"
	"github.com/jask/canvaspaint/internal/remote"
	"github.com/jask/canvaspaint/internal/secrets"
	"github.com/jask/canvaspaint/internal/service"
)

func newChargesCmd() *cobra.Command {
	var pixels int
	cmd := &cobra.Command{
		Use:   "charges",
		Short: "Show the current charges and cooldown",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := stderrLogger(cfg)
			if err != nil {
				return err
			}
			svc := &service.ChargeService{Source: newClient(cmd, cfg, log)}
			sum, err := svc.Query(cmd.Context(), pixels)
			if errors.Is(err, remote.ErrChallengeRequired) {
				return fmt.Errorf("the canvas wants a verification challenge solved first: %w", err)
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "charges:  %.2f (%d usable)\n", sum.State.Count, sum.Available)
			fmt.Fprintf(out, "cooldown: %s per charge\n", paint.FormatDuration(sum.State.Cooldown))
			if pixels > 0 {
				fmt.Fprintf(out, "eta:      %s for %d pixels\n", paint.FormatDuration(sum.ETA), pixels)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&pixels, "pixels", 0, "estimate how long this many pixels would take")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var (
		limit int
		prune time.Duration
		reset bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := database.OpenAndMigrate(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := &service.HistoryService{DB: db}
			out := cmd.OutOrStdout()
			switch {
			case reset:
				if err := svc.Reset(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(out, "history cleared")
				return nil
			case prune > 0:
				n, err := svc.Prune(cmd.Context(), prune)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "removed %d runs\n", n)
				return nil
			}
			runs, err := svc.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printHistory(out, runs)
		},
	}
	fl := cmd.Flags()
	fl.IntVarP(&limit, "limit", "n", 20, "number of runs to show (0 for all)")
	fl.DurationVar(&prune, "prune", 0, "delete runs older than this")
	fl.BoolVar(&reset, "reset", false, "delete every recorded run")
	return cmd
}

func printHistory(w io.Writer, runs []service.RunSummary) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tIMAGE\tAT\tPAINTED\tREJECTED\tRETRIES\tCHALLENGES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d,%d\t%d/%d\t%d\t%d\t%d\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			r.Status,
			shortPath(r.Image),
			r.OriginX, r.OriginY,
			r.Painted, r.Total,
			r.Rejected,
			r.Outcomes[remote.TransientError.String()],
			r.Outcomes[remote.ChallengeRequired.String()],
		)
	}
	return tw.Flush()
}

func shortPath(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}

func newLoginCmd() *cobra.Command {
	var logout, list bool
	cmd := &cobra.Command{
		Use:   "login [token]",
		Short: "Store the session cookie used to paint",
		Long: `Login stores the value of the canvas session cookie so later commands can
use it. Pass it as an argument or pipe it on stdin; a pasted "j=value" pair
is accepted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if list {
				sessions, err := secrets.ListSessions()
				if err != nil {
					return err
				}
				return printSessions(out, sessions)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			acct := account(cfg)
			if logout {
				if err := secrets.DeleteSession(acct); err != nil {
					return err
				}
				fmt.Fprintf(out, "session for %s removed\n", acct)
				return nil
			}
			raw, err := readToken(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			token, err := secrets.NormalizeToken(raw, cfg.Remote.CookieName)
			if err != nil {
				return err
			}
			if err := secrets.StoreSession(acct, token); err != nil {
				return err
			}
			fmt.Fprintf(out, "session for %s saved\n", acct)
			return nil
		},
	}
	cmd.Flags().BoolVar(&logout, "logout", false, "remove the stored session")
	cmd.Flags().BoolVar(&list, "list", false, "list hosts with a stored session")
	return cmd
}

func printSessions(w io.Writer, sessions []secrets.Session) error {
	if len(sessions) == 0 {
		_, err := fmt.Fprintln(w, "no stored sessions")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "HOST\tSTORED")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\n", s.Host, s.StoredAt.Local().Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}

func readToken(in io.Reader, args []string) (string, error) {
	if len(args) == 1 {
		if t := strings.TrimSpace(args[0]); t != "" {
			return t, nil
		}
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if t := strings.TrimSpace(line); t != "" {
		return t, nil
	}
	return "", errors.New("no session token given")
}

func newPaletteCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "palette",
		Short: "List the colors a run may use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			pal, err := palette.Load(cfg.Palette.Path)
			if err != nil {
				return err
			}
			if !all {
				if pal, err = pal.Exclude(cfg.Palette.Exclude); err != nil {
					return err
				}
			}
			return printPalette(cmd.OutOrStdout(), pal)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "ignore exclusions")
	return cmd
}

func printPalette(w io.Writer, pal palette.Palette) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCOLOR\tHEX\tNAME")
	for _, e := range pal {
		hex := fmt.Sprintf("#%02x%02x%02x", e.RGB[0], e.RGB[1], e.RGB[2])
		swatch := lipgloss.NewStyle().Background(lipgloss.Color(hex)).Render("    ")
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, swatch, hex, e.Name)
	}
	return tw.Flush()
}
