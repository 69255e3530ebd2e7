package prefs

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

const targetFile = "target.json"

// Point mirrors a canvas coordinate pair.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Target is the last placement the user painted with, so the next run can
// reuse it without repeating flags.
type Target struct {
	Image   string    `json:"image,omitempty"`
	Origin  *Point    `json:"origin,omitempty"`
	Region  *Point    `json:"region,omitempty"`
	Width   int       `json:"width,omitempty"`
	Height  int       `json:"height,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

func targetPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir = filepath.Join(dir, "canvaspaint")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, targetFile), nil
}

func SaveTarget(t Target) error {
	path, err := targetPath()
	if err != nil {
		return err
	}
	if t.SavedAt.IsZero() {
		t.SavedAt = time.Now().UTC()
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// LoadTarget returns the zero Target when nothing was saved yet.
func LoadTarget() (Target, error) {
	path, err := targetPath()
	if err != nil {
		return Target{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Target{}, nil
		}
		return Target{}, err
	}
	var t Target
	if err := json.Unmarshal(data, &t); err != nil {
		return Target{}, err
	}
	return t, nil
}

// Merge fills unset fields of t from saved.
func (t Target) Merge(saved Target) Target {
	if t.Image == "" {
		t.Image = saved.Image
	}
	if t.Origin == nil {
		t.Origin = saved.Origin
	}
	if t.Region == nil {
		t.Region = saved.Region
	}
	if t.Width == 0 && t.Height == 0 {
		t.Width, t.Height = saved.Width, saved.Height
	}
	return t
}
