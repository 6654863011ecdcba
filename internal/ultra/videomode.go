package ultra

import (
	"fmt"

	"github.com/ultraos/hyper/internal/cfg"
	"github.com/ultraos/hyper/internal/videomode"
)

func parseVideoFormat(s string) (videomode.Format, error) {
	switch s {
	case "auto":
		return videomode.FormatAuto, nil
	case "rgb888":
		return videomode.FormatRGB888, nil
	case "bgr888":
		return videomode.FormatBGR888, nil
	case "rgbx8888":
		return videomode.FormatRGBX8888, nil
	case "xrgb8888":
		return videomode.FormatXRGB8888, nil
	default:
		return videomode.FormatAuto, fmt.Errorf("ultra: video-mode: unknown format %q", s)
	}
}

// resolveVideoMode reads `video-mode = auto|unset|{width,height,bpp,format,
// constraint}`. ok is false only for the explicit "unset" form, meaning the
// driver must skip framebuffer setup (and the FRAMEBUFFER_INFO attribute)
// entirely.
func resolveVideoMode(c *cfg.Config, scope cfg.Scope) (req videomode.Request, ok bool, err error) {
	v, present, err := c.GetOneOf(scope, "video-mode", cfg.ValueString|cfg.ValueObject)
	if err != nil {
		return videomode.Request{}, false, err
	}
	if !present {
		return videomode.Default(), true, nil
	}

	if v.Type == cfg.ValueString {
		switch v.String {
		case "auto":
			return videomode.Request{Constraint: videomode.AtLeast, Format: videomode.FormatAuto}, true, nil
		case "unset":
			return videomode.Request{}, false, nil
		default:
			return videomode.Request{}, false, fmt.Errorf("ultra: video-mode: unrecognized string value %q", v.String)
		}
	}

	objScope := v.Scope()
	req.Constraint = videomode.AtLeast
	req.Format = videomode.FormatAuto

	if width, has, err := c.GetUnsigned(objScope, "width"); err != nil {
		return videomode.Request{}, false, err
	} else if has {
		req.Width = uint32(width)
	}
	if height, has, err := c.GetUnsigned(objScope, "height"); err != nil {
		return videomode.Request{}, false, err
	} else if has {
		req.Height = uint32(height)
	}
	if bpp, has, err := c.GetUnsigned(objScope, "bpp"); err != nil {
		return videomode.Request{}, false, err
	} else if has {
		req.Bpp = uint32(bpp)
	}
	if formatStr, has, err := c.GetString(objScope, "format"); err != nil {
		return videomode.Request{}, false, err
	} else if has {
		if req.Format, err = parseVideoFormat(formatStr); err != nil {
			return videomode.Request{}, false, err
		}
	}
	if constraintStr, has, err := c.GetString(objScope, "constraint"); err != nil {
		return videomode.Request{}, false, err
	} else if has {
		switch constraintStr {
		case "exactly":
			req.Constraint = videomode.Exactly
		case "at-least":
			req.Constraint = videomode.AtLeast
		default:
			return videomode.Request{}, false, fmt.Errorf("ultra: video-mode: unknown constraint %q", constraintStr)
		}
	}

	return req, true, nil
}
