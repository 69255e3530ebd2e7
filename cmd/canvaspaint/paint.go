package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jask/canvaspaint/internal/database"
	"github.com/jask/canvaspaint/internal/logging"
	"github.com/jask/canvaspaint/internal/paint"
	"github.com/jask/canvaspaint/internal/prefs"
	"github.com/jask/canvaspaint/internal/service"
	"github.com/jask/canvaspaint/internal/tui"
)

type paintFlags struct {
	image     string
	at        string
	region    string
	width     int
	height    int
	resumeRow int
	resumeCol int
	plain     bool
	noHistory bool
}

func newPaintCmd() *cobra.Command {
	var f paintFlags
	cmd := &cobra.Command{
		Use:   "paint [image]",
		Short: "Paint an image at a canvas position",
		Long: `Paint reproduces an image on the canvas one pixel at a time, waiting out
charge cooldowns and pausing while a verification challenge is pending.
The image, position and region default to the last ones used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.image = args[0]
			}
			return runPaint(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.image, "image", "", "image file (png, jpeg, gif, webp, bmp)")
	fl.StringVar(&f.at, "at", "", "canvas position of the image's top-left pixel, as x,y")
	fl.StringVar(&f.region, "region", "", "canvas region (tile) coordinates, as x,y")
	fl.IntVar(&f.width, "width", 0, "resize to this width (keeps aspect ratio if height is unset)")
	fl.IntVar(&f.height, "height", 0, "resize to this height")
	fl.IntVar(&f.resumeRow, "resume-row", 0, "row to resume from")
	fl.IntVar(&f.resumeCol, "resume-col", 0, "column to resume from")
	fl.BoolVar(&f.plain, "plain", false, "log to stderr instead of opening the TUI")
	fl.BoolVar(&f.noHistory, "no-history", false, "do not record the run")
	return cmd
}

func parsePoint(s string) (*prefs.Point, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("want x,y, got %q", s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return nil, fmt.Errorf("bad x in %q: %w", s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return nil, fmt.Errorf("bad y in %q: %w", s, err)
	}
	return &prefs.Point{X: x, Y: y}, nil
}

func toPaintPoint(p *prefs.Point) *paint.Point {
	if p == nil {
		return nil
	}
	return &paint.Point{X: p.X, Y: p.Y}
}

// resolveTarget merges flags with the saved target.
func resolveTarget(f paintFlags) (prefs.Target, error) {
	at, err := parsePoint(f.at)
	if err != nil {
		return prefs.Target{}, fmt.Errorf("--at: %w", err)
	}
	region, err := parsePoint(f.region)
	if err != nil {
		return prefs.Target{}, fmt.Errorf("--region: %w", err)
	}
	t := prefs.Target{Image: f.image, Origin: at, Region: region, Width: f.width, Height: f.height}
	saved, err := prefs.LoadTarget()
	if err != nil {
		return t, nil
	}
	return t.Merge(saved), nil
}

func runPaint(cmd *cobra.Command, f paintFlags) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var log *slog.Logger
	if f.plain {
		if log, err = stderrLogger(cfg); err != nil {
			return err
		}
	} else {
		var closer io.Closer
		if log, closer, err = logging.OpenFile(cfg.Log.Path, cfg.Log.Level); err != nil {
			return err
		}
		defer closer.Close()
	}

	target, err := resolveTarget(f)
	if err != nil {
		return err
	}
	if target.Image != "" {
		if abs, err := filepath.Abs(target.Image); err == nil {
			target.Image = abs
		}
	}
	job, err := service.PrepareJob(service.JobRequest{
		ImagePath:   target.Image,
		PalettePath: cfg.Palette.Path,
		Exclude:     cfg.Palette.Exclude,
		Origin:      toPaintPoint(target.Origin),
		Region:      toPaintPoint(target.Region),
		Filter:      cfg.Filter(),
		Width:       target.Width,
		Height:      target.Height,
		MinSide:     cfg.Image.MinSide,
		MaxSide:     cfg.Image.MaxSide,
		Cursor:      paint.Cursor{Row: f.resumeRow, Col: f.resumeCol},
	})
	if err != nil {
		if errors.Is(err, paint.ErrPrecondition) {
			return fmt.Errorf("%w (pass an image, --at and --region)", err)
		}
		return err
	}
	if err := prefs.SaveTarget(target); err != nil {
		log.Warn("could not save target", "err", err)
	}

	var db *sql.DB
	if !f.noHistory {
		if db, err = database.OpenAndMigrate(cfg.Database.Path); err != nil {
			log.Warn("run history disabled", "err", err)
			db = nil
		} else {
			defer db.Close()
		}
	}

	svc := &service.PaintService{
		Canvas: newClient(cmd, cfg, log),
		DB:     db,
		Options: paint.Options{
			Timing:      cfg.Timing(),
			LogInterval: cfg.Paint.LogInterval,
		},
		Logger: log,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		report paint.Report
		runErr error
	)
	if f.plain {
		report, _, runErr = svc.Paint(ctx, job, target.Image, newPlainReporter(cmd.ErrOrStderr(), cfg.Paint.LogInterval))
	} else {
		report, runErr = paintWithTUI(ctx, stop, svc, job, target.Image)
	}

	fmt.Fprintln(cmd.OutOrStdout(), summarize(report))
	return runErr
}

// paintWithTUI runs the engine and the TUI side by side. The stop key or
// an interrupt cancels the run; the TUI closes on the terminal report.
func paintWithTUI(ctx context.Context, stop context.CancelFunc, svc *service.PaintService, job *paint.Job, image string) (paint.Report, error) {
	app := tui.New(filepath.Base(image), stop)
	prog := tea.NewProgram(app, tea.WithAltScreen())

	var (
		g      errgroup.Group
		report paint.Report
		runErr error
	)
	g.Go(func() error {
		report, _, runErr = svc.Paint(ctx, job, image, tui.Reporter{Send: prog.Send})
		prog.Send(tui.Done(report, runErr))
		return nil
	})
	g.Go(func() error {
		_, err := prog.Run()
		// a TUI that failed to start must not leave the run going
		stop()
		return err
	})
	if err := g.Wait(); err != nil {
		return report, errors.Join(runErr, fmt.Errorf("tui: %w", err))
	}
	return report, runErr
}

func summarize(r paint.Report) string {
	switch r.Status {
	case paint.Completed:
		return fmt.Sprintf("Painting complete: %d/%d pixels (%d rejected) in %s.",
			r.Painted, r.Total, r.Rejected, paint.FormatDuration(r.Elapsed))
	case paint.Stopped:
		return fmt.Sprintf("Painting paused at %d,%d after %d/%d pixels. Resume with --resume-row %d --resume-col %d.",
			r.Cursor.Col, r.Cursor.Row, r.Painted, r.Total, r.Cursor.Row, r.Cursor.Col)
	default:
		return fmt.Sprintf("Painting aborted at %d,%d after %d/%d pixels.",
			r.Cursor.Col, r.Cursor.Row, r.Painted, r.Total)
	}
}

// plainReporter prints run events as lines for --plain mode.
type plainReporter struct {
	w        io.Writer
	every    int
	lastLine int
}

func newPlainReporter(w io.Writer, every int) *plainReporter {
	return &plainReporter{w: w, every: max(every, 1), lastLine: -1}
}

func (p *plainReporter) Progress(pr paint.Progress) {
	if pr.Painted == p.lastLine || (pr.Painted%p.every != 0 && pr.Painted != pr.Total) {
		return
	}
	p.lastLine = pr.Painted
	fmt.Fprintf(p.w, "progress %d/%d (%d%%) charges %d eta %s\n",
		pr.Painted, pr.Total, pr.Percent(), pr.Charges.Available(), paint.FormatDuration(pr.ETA))
}

func (p *plainReporter) Attempt(paint.Attempt) {}

func (p *plainReporter) Wait(w paint.Wait) {
	fmt.Fprintf(p.w, "waiting %s (%s)\n", paint.FormatDuration(w.Duration), w.Reason)
}

func (p *plainReporter) Challenge(c paint.ChallengeState) {
	switch {
	case c.Phase == paint.PhaseActive && c.Backoff == 0:
		fmt.Fprintln(p.w, "challenge required: solve it in your browser, painting resumes once it clears")
	case c.Phase == paint.PhaseActive:
		fmt.Fprintf(p.w, "challenge still active, next check in %s\n", paint.FormatDuration(c.Backoff))
	case c.Phase == paint.PhaseCleared:
		fmt.Fprintln(p.w, "challenge cleared, resuming")
	case c.Phase == paint.PhaseCancelled:
		fmt.Fprintln(p.w, "challenge recovery cancelled")
	}
}

var _ paint.Reporter = (*plainReporter)(nil)
