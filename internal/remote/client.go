// Package remote talks to the canvas backend: pixel writes, charge queries
// and the challenge probe.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const maxBodyBytes = 1 << 20

var ErrChallengeRequired = errors.New("remote: challenge required")

// Point is a coordinate pair on the remote canvas (pixel or region).
type Point struct {
	X int
	Y int
}

func (p Point) String() string { return fmt.Sprintf("%d,%d", p.X, p.Y) }

// Charges is one /me snapshot.
type Charges struct {
	Count    float64
	Cooldown time.Duration
}

// WriteResult is the classified result of one pixel write. Err is set for
// TransientError only.
type WriteResult struct {
	Outcome    Outcome
	StatusCode int
	Err        error
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	CanvasPath string
	CookieName string
	Session    string
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client issues canvas requests with the user's session cookie.
type Client struct {
	base       string
	canvasPath string
	cookieName string
	session    string
	userAgent  string
	timeout    time.Duration
	http       *http.Client
	log        *slog.Logger
}

func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	lg := opts.Logger
	if lg == nil {
		lg = slog.New(slog.DiscardHandler)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:       strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		canvasPath: "/" + strings.Trim(strings.TrimSpace(opts.CanvasPath), "/"),
		cookieName: opts.CookieName,
		session:    strings.TrimSpace(opts.Session),
		userAgent:  opts.UserAgent,
		timeout:    timeout,
		http:       hc,
		log:        lg,
	}
}

type pixelRequest struct {
	Coords []int `json:"coords"`
	Colors []int `json:"colors"`
}

// WritePixel paints one pixel inside region. It never returns Painted
// without an explicit confirmation from the backend.
func (c *Client) WritePixel(ctx context.Context, region Point, x, y, colorID int) WriteResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, _ := json.Marshal(pixelRequest{Coords: []int{x, y}, Colors: []int{colorID}})
	url := fmt.Sprintf("%s%s/pixel/%d/%d", c.base, strings.TrimSuffix(c.canvasPath, "/"), region.X, region.Y)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return WriteResult{Outcome: TransientError, Err: err}
	}
	req.Header.Set("Content-Type", "text/plain;charset=UTF-8")
	c.decorate(req)

	status, body, err := c.do(req)
	if err != nil {
		c.log.Debug("pixel write failed", "x", x, "y", y, "err", err)
		return WriteResult{Outcome: TransientError, Err: err}
	}
	out := Classify(status, body)
	res := WriteResult{Outcome: out, StatusCode: status}
	if out == TransientError {
		res.Err = fmt.Errorf("remote: pixel write: http %d: %s", status, snippet(body))
	}
	return res
}

type meResponse struct {
	Charges *struct {
		Count      *float64 `json:"count"`
		CooldownMs *int64   `json:"cooldownMs"`
	} `json:"charges"`
}

// Charges fetches the current charge count and cooldown. A challenge is
// reported as ErrChallengeRequired. Missing fields come back as zero.
func (c *Client) Charges(ctx context.Context) (Charges, error) {
	status, body, err := c.me(ctx)
	if err != nil {
		return Charges{}, err
	}
	if IsChallenge(status, body) {
		return Charges{}, ErrChallengeRequired
	}
	if status != http.StatusOK {
		return Charges{}, fmt.Errorf("remote: me: http %d", status)
	}
	var me meResponse
	if err := json.Unmarshal(body, &me); err != nil {
		return Charges{}, fmt.Errorf("remote: parse me: %w", err)
	}
	var out Charges
	if me.Charges != nil {
		if me.Charges.Count != nil {
			out.Count = *me.Charges.Count
		}
		if me.Charges.CooldownMs != nil {
			out.Cooldown = time.Duration(*me.Charges.CooldownMs) * time.Millisecond
		}
	}
	return out, nil
}

// Cleared reports whether the session is usable again: /me answers 200 with
// parseable JSON and no challenge text.
func (c *Client) Cleared(ctx context.Context) bool {
	status, body, err := c.me(ctx)
	if err != nil || status != http.StatusOK || IsChallenge(status, body) {
		return false
	}
	return json.Valid(body)
}

func (c *Client) me(ctx context.Context) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/me", nil)
	if err != nil {
		return 0, nil, err
	}
	c.decorate(req)
	return c.do(req)
}

func (c *Client) decorate(req *http.Request) {
	if c.session != "" && c.cookieName != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: c.session})
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("remote: read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
