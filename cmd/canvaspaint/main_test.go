package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/canvaspaint/internal/config"
	"github.com/jask/canvaspaint/internal/database/repository"
	"github.com/jask/canvaspaint/internal/paint"
	"github.com/jask/canvaspaint/internal/palette"
	"github.com/jask/canvaspaint/internal/prefs"
	"github.com/jask/canvaspaint/internal/secrets"
	"github.com/jask/canvaspaint/internal/service"
)

// sandbox points every user directory at a temp dir and speeds up pacing.
func sandbox(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Setenv("CANVASPAINT_CONFIG", "")
	t.Setenv("CANVASPAINT_SESSION", "")
	t.Setenv("CANVASPAINT_PAINT_PACE_MIN", "1ms")
	t.Setenv("CANVASPAINT_PAINT_PACE_MAX", "2ms")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestParsePoint(t *testing.T) {
	p, err := parsePoint(" 1052, 673 ")
	require.NoError(t, err)
	require.Equal(t, &prefs.Point{X: 1052, Y: 673}, p)

	p, err = parsePoint("")
	require.NoError(t, err)
	require.Nil(t, p)

	for _, bad := range []string{"1", "1,2,3", "a,2", "1,b"} {
		_, err := parsePoint(bad)
		require.Error(t, err, bad)
	}
}

func TestSummarize(t *testing.T) {
	require.Equal(t, "Painting paused at 9,4 after 3/10 pixels. Resume with --resume-row 4 --resume-col 9.",
		summarize(paint.Report{Status: paint.Stopped, Painted: 3, Total: 10, Cursor: paint.Cursor{Row: 4, Col: 9}}))
	require.Contains(t, summarize(paint.Report{Status: paint.Completed, Painted: 10, Total: 10, Elapsed: 61 * time.Second}), "in 1m 1s")
	require.Contains(t, summarize(paint.Report{Status: paint.Aborted}), "aborted")
}

func TestPlainReporter(t *testing.T) {
	var buf bytes.Buffer
	rep := newPlainReporter(&buf, 10)
	rep.Progress(paint.Progress{Painted: 0, Total: 25})
	rep.Progress(paint.Progress{Painted: 0, Total: 25})
	rep.Progress(paint.Progress{Painted: 5, Total: 25})
	rep.Progress(paint.Progress{Painted: 10, Total: 25})
	rep.Progress(paint.Progress{Painted: 25, Total: 25})
	rep.Wait(paint.Wait{Reason: paint.WaitCooldown, Duration: 31 * time.Second})
	rep.Challenge(paint.ChallengeState{Active: true, Phase: paint.PhaseActive})
	rep.Challenge(paint.ChallengeState{Active: true, Phase: paint.PhaseActive, Backoff: 8 * time.Second})
	rep.Challenge(paint.ChallengeState{Phase: paint.PhaseCleared})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, []string{
		"progress 0/25 (0%) charges 0 eta 0s",
		"progress 10/25 (40%) charges 0 eta 0s",
		"progress 25/25 (100%) charges 0 eta 0s",
		"waiting 31s (cooldown)",
		"challenge required: solve it in your browser, painting resumes once it clears",
		"challenge still active, next check in 8s",
		"challenge cleared, resuming",
	}, lines)
}

func TestReadToken(t *testing.T) {
	tok, err := readToken(strings.NewReader(""), []string{" abc "})
	require.NoError(t, err)
	require.Equal(t, "abc", tok)

	tok, err = readToken(strings.NewReader("from-stdin\nignored"), nil)
	require.NoError(t, err)
	require.Equal(t, "from-stdin", tok)

	_, err = readToken(strings.NewReader("  \n"), nil)
	require.Error(t, err)
}

func TestResolveSessionOrder(t *testing.T) {
	sandbox(t)
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags(nil))
	cfg, err := config.Load(cmd.Flags())
	require.NoError(t, err)
	cfg.Remote.Session = "from-config"

	require.Equal(t, "from-config", resolveSession(cmd, cfg))

	require.NoError(t, secrets.StoreSession(account(cfg), "from-store"))
	require.Equal(t, "from-store", resolveSession(cmd, cfg))

	t.Setenv("CANVASPAINT_SESSION", "from-env")
	require.Equal(t, "from-env", resolveSession(cmd, cfg))

	require.NoError(t, cmd.PersistentFlags().Set("session", "from-flag"))
	require.Equal(t, "from-flag", resolveSession(cmd, cfg))
}

func TestAccount(t *testing.T) {
	require.Equal(t, "backend.wplace.live", account(config.Config{Remote: config.RemoteConfig{BaseURL: "https://backend.wplace.live"}}))
	require.Equal(t, "not a url", account(config.Config{Remote: config.RemoteConfig{BaseURL: "not a url"}}))
}

func TestPrintPalette(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printPalette(&buf, palette.Palette{{ID: 7, Name: "red", RGB: [3]uint8{0xed, 0x1c, 0x24}}}))
	require.Contains(t, buf.String(), "#ed1c24")
	require.Contains(t, buf.String(), "red")
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printHistory(&buf, nil))
	require.Equal(t, "no runs recorded\n", buf.String())

	buf.Reset()
	require.NoError(t, printHistory(&buf, []service.RunSummary{{
		Run: repository.Run{
			Image: "/tmp/art.png", Status: "stopped", OriginX: 1, OriginY: 2,
			Painted: 3, Total: 9, StartedAt: time.Now(),
		},
		Outcomes: map[string]int{"transient": 2, "challenge": 1},
	}}))
	out := buf.String()
	require.Contains(t, out, "art.png")
	require.NotContains(t, out, "/tmp/")
	require.Contains(t, out, "3/9")
}

func TestPaletteCommandExcludesByDefault(t *testing.T) {
	sandbox(t)
	out, err := execute(t, "palette")
	require.NoError(t, err)
	require.NotContains(t, out, "transparent")
	require.NotContains(t, out, " white")
	require.Contains(t, out, "beige")

	out, err = execute(t, "palette", "--all")
	require.NoError(t, err)
	require.Contains(t, out, "transparent")

	_, err = execute(t, "palette", "--exclude", "whyte")
	require.ErrorIs(t, err, palette.ErrUnknownColor)
}

func TestLoginStoresSession(t *testing.T) {
	sandbox(t)
	out, err := execute(t, "login", "--base-url", "https://canvas.example", "j=tok-1")
	require.NoError(t, err)
	require.Contains(t, out, "canvas.example")

	got, err := secrets.FetchSession("canvas.example")
	require.NoError(t, err)
	require.Equal(t, "tok-1", got)

	out, err = execute(t, "login", "--list")
	require.NoError(t, err)
	require.Contains(t, out, "canvas.example")
	require.NotContains(t, out, "tok-1")

	_, err = execute(t, "login", "--base-url", "https://canvas.example", "two words")
	require.ErrorIs(t, err, secrets.ErrInvalidToken)

	_, err = execute(t, "login", "--base-url", "https://canvas.example", "--logout")
	require.NoError(t, err)
	_, err = secrets.FetchSession("canvas.example")
	require.ErrorIs(t, err, secrets.ErrNotFound)

	out, err = execute(t, "login", "--list")
	require.NoError(t, err)
	require.Contains(t, out, "no stored sessions")
}

type canvasServer struct {
	mu     sync.Mutex
	writes []string
	cookie string
}

func (c *canvasServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ck, err := r.Cookie("j"); err == nil {
		c.cookie = ck.Value
	}
	switch {
	case r.URL.Path == "/me":
		_, _ = w.Write([]byte(`{"charges":{"count":20,"cooldownMs":30000}}`))
	case strings.HasPrefix(r.URL.Path, "/s0/pixel/"):
		c.writes = append(c.writes, r.URL.Path)
		_, _ = w.Write([]byte(`{"painted":1}`))
	default:
		http.NotFound(w, r)
	}
}

func TestPaintPlainEndToEnd(t *testing.T) {
	dir := sandbox(t)
	backend := &canvasServer{}
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 10, B: 10, A: 255})
	img.SetNRGBA(1, 1, color.NRGBA{R: 237, G: 28, B: 36, A: 255})
	path := filepath.Join(dir, "art.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	out, err := execute(t, "paint", "--plain", "--base-url", srv.URL, "--session", "tok",
		"--at", "5,6", "--region", "1,2", path)
	require.NoError(t, err)
	require.Contains(t, out, "Painting complete: 2/2 pixels")
	require.Equal(t, []string{"/s0/pixel/1/2", "/s0/pixel/1/2"}, backend.writes)
	require.Equal(t, "tok", backend.cookie)

	// the target is remembered for the next run
	saved, err := prefs.LoadTarget()
	require.NoError(t, err)
	require.Equal(t, &prefs.Point{X: 5, Y: 6}, saved.Origin)

	out, err = execute(t, "history")
	require.NoError(t, err)
	require.Contains(t, out, "completed")
	require.Contains(t, out, "2/2")

	out, err = execute(t, "paint", "--plain", "--base-url", srv.URL, "--no-history")
	require.NoError(t, err)
	require.Contains(t, out, "Painting complete")
	require.Len(t, backend.writes, 4)
}

func TestPaintWithoutTargetFails(t *testing.T) {
	sandbox(t)
	_, err := execute(t, "paint", "--plain")
	require.ErrorIs(t, err, paint.ErrPrecondition)
}
