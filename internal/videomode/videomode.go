// Package videomode implements the mode-selection policy the Ultra protocol
// driver runs immediately before handover: given a requested mode and the
// list firmware enumerates, pick the concrete mode to program. There's no
// firmware here to enumerate against, so the package only owns the pure
// selection logic; callers supply the candidate list.
package videomode

import "fmt"

// Format mirrors the attribute-array framebuffer format tag.
type Format uint16

const (
	// FormatAuto is only ever valid on a Request: it means "accept any
	// format firmware reports." It never appears on a firmware-reported Mode.
	FormatAuto Format = 0

	FormatRGB888   Format = 1
	FormatBGR888   Format = 2
	FormatRGBX8888 Format = 3
	FormatXRGB8888 Format = 4
)

func (f Format) String() string {
	switch f {
	case FormatAuto:
		return "auto"
	case FormatRGB888:
		return "RGB888"
	case FormatBGR888:
		return "BGR888"
	case FormatRGBX8888:
		return "RGBX8888"
	case FormatXRGB8888:
		return "XRGB8888"
	default:
		return fmt.Sprintf("Format(%d)", uint16(f))
	}
}

// Constraint is how strictly a requested mode must match what firmware
// offers.
type Constraint int

const (
	AtLeast Constraint = iota
	Exactly
)

// Mode is one concrete mode, either firmware-reported or selected.
type Mode struct {
	Width  uint32
	Height uint32
	Bpp    uint32
	Format Format
}

func (m Mode) String() string {
	return fmt.Sprintf("%dx%dx%d %s", m.Width, m.Height, m.Bpp, m.Format)
}

// less orders modes for the "largest match by width, then height, then bpp"
// tie-break.
func (m Mode) less(o Mode) bool {
	if m.Width != o.Width {
		return m.Width < o.Width
	}
	if m.Height != o.Height {
		return m.Height < o.Height
	}
	return m.Bpp < o.Bpp
}

// Request is the parsed `video-mode` config value.
type Request struct {
	Width      uint32
	Height     uint32
	Bpp        uint32
	Format     Format
	Constraint Constraint
}

// Default is the mode used when `video-mode` is absent from the config.
func Default() Request {
	return Request{Width: 1024, Height: 768, Bpp: 32, Format: FormatAuto, Constraint: AtLeast}
}

func (r Request) formatMatches(m Mode) bool {
	return r.Format == FormatAuto || r.Format == m.Format
}

// Select picks the mode to program out of available, given native (the
// current/boot-time resolution firmware reports) and the requested mode.
// Under AtLeast a mode is within native when its pixel count (width times
// height) and its bpp do not exceed native's.
func Select(native Mode, available []Mode, req Request) (Mode, error) {
	switch req.Constraint {
	case Exactly:
		for _, m := range available {
			if m.Width == req.Width && m.Height == req.Height && m.Bpp == req.Bpp && req.formatMatches(m) {
				return m, nil
			}
		}
		return Mode{}, fmt.Errorf("videomode: no exact match for %s", Mode{req.Width, req.Height, req.Bpp, req.Format})

	case AtLeast:
		var best Mode
		found := false
		for _, m := range available {
			if m.Width < req.Width || m.Height < req.Height || m.Bpp < req.Bpp {
				continue
			}
			if uint64(m.Width)*uint64(m.Height) > uint64(native.Width)*uint64(native.Height) || m.Bpp > native.Bpp {
				continue
			}
			if !req.formatMatches(m) {
				continue
			}
			if !found || best.less(m) {
				best = m
				found = true
			}
		}
		if !found {
			return Mode{}, fmt.Errorf("videomode: no mode at-least %s within native %s", Mode{req.Width, req.Height, req.Bpp, req.Format}, native)
		}
		return best, nil

	default:
		return Mode{}, fmt.Errorf("videomode: unknown constraint %d", req.Constraint)
	}
}
