package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"time"
)

// Session cookies are kept per backend host in a 0600 file. Tokens are
// sealed with AES-GCM and bound to their host, so a ciphertext copied to
// another host entry fails to open. This keeps tokens out of plain config;
// it is not a keychain.

const fileName = "sessions.json"

var (
	ErrNotFound     = errors.New("session not found")
	ErrInvalidToken = errors.New("invalid session token")
)

// Session is one stored login.
type Session struct {
	Host     string
	Token    string
	StoredAt time.Time
}

type entry struct {
	Sealed   string    `json:"sealed"` // base64(nonce|ciphertext)
	StoredAt time.Time `json:"stored_at"`
}

type sessionFile struct {
	Hosts map[string]entry `json:"hosts"`
}

// NormalizeToken accepts a bare cookie value or a pasted "name=value"
// pair and returns the value. The result must be a valid cookie value.
func NormalizeToken(raw, cookieName string) (string, error) {
	tok := strings.TrimSpace(raw)
	tok = strings.TrimSuffix(tok, ";")
	if cookieName != "" {
		tok = strings.TrimPrefix(tok, cookieName+"=")
	}
	if tok == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	// net/http accepts spaces and commas by quoting them; the canvas never
	// issues such values
	c := http.Cookie{Name: "session", Value: tok}
	if err := c.Valid(); err != nil || strings.ContainsAny(tok, " \t,") {
		return "", fmt.Errorf("%w: %q is not a cookie value", ErrInvalidToken, snip(tok))
	}
	return tok, nil
}

// StoreSession saves token for host, replacing any earlier one.
func StoreSession(host, token string) error {
	if host = norm(host); host == "" {
		return fmt.Errorf("host required")
	}
	tok, err := NormalizeToken(token, "")
	if err != nil {
		return err
	}
	path, err := filePath()
	if err != nil {
		return err
	}
	sf, err := load(path)
	if err != nil {
		return err
	}
	sealed, err := seal(host, []byte(tok))
	if err != nil {
		return err
	}
	sf.Hosts[host] = entry{
		Sealed:   base64.StdEncoding.EncodeToString(sealed),
		StoredAt: time.Now().UTC().Truncate(time.Second),
	}
	return save(path, sf)
}

// LookupSession returns the stored session for host.
func LookupSession(host string) (Session, error) {
	if host = norm(host); host == "" {
		return Session{}, fmt.Errorf("host required")
	}
	path, err := filePath()
	if err != nil {
		return Session{}, err
	}
	sf, err := load(path)
	if err != nil {
		return Session{}, err
	}
	e, ok := sf.Hosts[host]
	if !ok {
		return Session{}, fmt.Errorf("%s: %w", host, ErrNotFound)
	}
	raw, err := base64.StdEncoding.DecodeString(e.Sealed)
	if err != nil {
		return Session{}, fmt.Errorf("%s: %w", host, err)
	}
	pt, err := open(host, raw)
	if err != nil {
		return Session{}, fmt.Errorf("%s: unreadable session: %w", host, err)
	}
	return Session{Host: host, Token: string(pt), StoredAt: e.StoredAt}, nil
}

// FetchSession returns only the token for host.
func FetchSession(host string) (string, error) {
	s, err := LookupSession(host)
	return s.Token, err
}

// ListSessions reports stored hosts, without tokens, sorted by host.
func ListSessions() ([]Session, error) {
	path, err := filePath()
	if err != nil {
		return nil, err
	}
	sf, err := load(path)
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(sf.Hosts))
	for h, e := range sf.Hosts {
		out = append(out, Session{Host: h, StoredAt: e.StoredAt})
	}
	slices.SortFunc(out, func(a, b Session) int { return strings.Compare(a.Host, b.Host) })
	return out, nil
}

func DeleteSession(host string) error {
	if host = norm(host); host == "" {
		return fmt.Errorf("host required")
	}
	path, err := filePath()
	if err != nil {
		return err
	}
	sf, err := load(path)
	if err != nil {
		return err
	}
	if _, ok := sf.Hosts[host]; !ok {
		return fmt.Errorf("%s: %w", host, ErrNotFound)
	}
	delete(sf.Hosts, host)
	return save(path, sf)
}

func filePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir = filepath.Join(dir, "canvaspaint")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

func load(path string) (sessionFile, error) {
	sf := sessionFile{Hosts: map[string]entry{}}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return sf, nil
	}
	if err != nil {
		return sf, err
	}
	if err := json.Unmarshal(data, &sf); err != nil {
		return sf, fmt.Errorf("%s: %w", path, err)
	}
	if sf.Hosts == nil {
		sf.Hosts = map[string]entry{}
	}
	return sf, nil
}

func save(path string, sf sessionFile) error {
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func norm(s string) string {
	return strings.TrimSpace(strings.ToLower(s))
}

func snip(s string) string {
	if len(s) > 12 {
		return s[:12] + "…"
	}
	return s
}

func aead() (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(fmt.Sprintf("canvaspaint-%s-%s", runtime.GOOS, os.Getenv("USER"))))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// seal uses host as additional data.
func seal(host string, plain []byte) ([]byte, error) {
	gcm, err := aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plain, []byte(host)), nil
}

func open(host string, sealed []byte) ([]byte, error) {
	gcm, err := aead()
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	n := gcm.NonceSize()
	return gcm.Open(nil, sealed[:n], sealed[n:], []byte(host))
}
