package service

import (
	"fmt"

	"github.com/jask/canvaspaint/internal/paint"
	"github.com/jask/canvaspaint/internal/palette"
	"github.com/jask/canvaspaint/internal/raster"
)

// JobRequest describes a job before its inputs are loaded.
type JobRequest struct {
	ImagePath   string
	PalettePath string
	Exclude     []string
	Origin      *paint.Point
	Region      *paint.Point
	Filter      paint.Filter

	// Width and Height resize the image when either is positive. The
	// result is clamped to [MinSide, MaxSide].
	Width, Height    int
	MinSide, MaxSide int

	Cursor paint.Cursor
}

// PrepareJob loads the image and palette, applies exclusions and resizing,
// and validates the result.
func PrepareJob(req JobRequest) (*paint.Job, error) {
	if req.ImagePath == "" {
		return nil, fmt.Errorf("%w: no image loaded", paint.ErrPrecondition)
	}
	img, err := raster.Load(req.ImagePath)
	if err != nil {
		return nil, err
	}
	pal, err := palette.Load(req.PalettePath)
	if err != nil {
		return nil, err
	}
	if len(req.Exclude) > 0 {
		if pal, err = pal.Exclude(req.Exclude); err != nil {
			return nil, err
		}
	}

	job, err := paint.NewJob(paint.JobSpec{
		Raster:  img,
		Palette: pal,
		Origin:  req.Origin,
		Region:  req.Region,
		Filter:  req.Filter,
	})
	if err != nil {
		return nil, err
	}

	if req.Width > 0 || req.Height > 0 {
		w, h := scaledSize(img.Width, img.Height, req.Width, req.Height)
		lo, hi := req.MinSide, req.MaxSide
		if lo <= 0 {
			lo = 1
		}
		if hi < lo {
			hi = lo
		}
		w, h = raster.ClampSize(w, h, lo, hi)
		if err := job.Resize(w, h); err != nil {
			return nil, err
		}
	}
	job.Cursor = req.Cursor
	return job, nil
}

// scaledSize fills in a missing side keeping the aspect ratio.
func scaledSize(srcW, srcH, w, h int) (int, int) {
	switch {
	case w > 0 && h > 0:
		return w, h
	case w > 0:
		return w, max(1, (srcH*w+srcW/2)/srcW)
	default:
		return max(1, (srcW*h+srcH/2)/srcH), h
	}
}
