package ultra

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultraos/hyper/internal/cfg"
	"github.com/ultraos/hyper/internal/videomode"
)

func TestResolveVideoModeAbsentUsesDefault(t *testing.T) {
	c, err := cfg.Parse("[main]\nprotocol = \"ultra\"\n")
	require.NoError(t, err)
	entry, _ := c.GetLoadableEntry("main")

	req, ok, err := resolveVideoMode(c, entry.Scope())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, videomode.Default(), req)
}

func TestResolveVideoModeAuto(t *testing.T) {
	c, err := cfg.Parse("[main]\nvideo-mode = \"auto\"\n")
	require.NoError(t, err)
	entry, _ := c.GetLoadableEntry("main")

	req, ok, err := resolveVideoMode(c, entry.Scope())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, videomode.AtLeast, req.Constraint)
	require.Equal(t, videomode.FormatAuto, req.Format)
	require.Zero(t, req.Width)
}

func TestResolveVideoModeUnsetDisablesFramebuffer(t *testing.T) {
	c, err := cfg.Parse("[main]\nvideo-mode = \"unset\"\n")
	require.NoError(t, err)
	entry, _ := c.GetLoadableEntry("main")

	_, ok, err := resolveVideoMode(c, entry.Scope())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestResolveVideoModeObjectForm(t *testing.T) {
	c, err := cfg.Parse(
		"[main]\n" +
			"video-mode:\n" +
			"\twidth = 1920\n" +
			"\theight = 1080\n" +
			"\tbpp = 32\n" +
			"\tformat = \"xrgb8888\"\n" +
			"\tconstraint = \"exactly\"\n")
	require.NoError(t, err)
	entry, _ := c.GetLoadableEntry("main")

	req, ok, err := resolveVideoMode(c, entry.Scope())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1920), req.Width)
	require.Equal(t, uint32(1080), req.Height)
	require.Equal(t, uint32(32), req.Bpp)
	require.Equal(t, videomode.FormatXRGB8888, req.Format)
	require.Equal(t, videomode.Exactly, req.Constraint)
}

func TestResolveVideoModeUnknownFormatIsError(t *testing.T) {
	c, err := cfg.Parse("[main]\nvideo-mode:\n\tformat = \"nonsense\"\n")
	require.NoError(t, err)
	entry, _ := c.GetLoadableEntry("main")

	_, _, err = resolveVideoMode(c, entry.Scope())
	require.Error(t, err)
}
