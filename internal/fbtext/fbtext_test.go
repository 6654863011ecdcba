package fbtext

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultraos/hyper/internal/videomode"
)

func TestNewCanvasSizesToMode(t *testing.T) {
	c, err := NewCanvas(videomode.Mode{Width: 64, Height: 32, Bpp: 32, Format: videomode.FormatXRGB8888})
	require.NoError(t, err)
	require.NotNil(t, c)
}

func TestFlushRejectsUndersizedBuffer(t *testing.T) {
	c, err := NewCanvas(videomode.Mode{Width: 64, Height: 32, Bpp: 32, Format: videomode.FormatXRGB8888})
	require.NoError(t, err)

	err = c.Flush(make([]byte, 10), 64*4)
	require.Error(t, err)
}

func TestFlushPacksXRGB8888(t *testing.T) {
	mode := videomode.Mode{Width: 4, Height: 2, Bpp: 32, Format: videomode.FormatXRGB8888}
	c, err := NewCanvas(mode)
	require.NoError(t, err)

	stride := 4 * 4
	dst := make([]byte, stride*2)
	require.NoError(t, c.Flush(dst, stride))

	for i := 0; i < len(dst); i += 4 {
		require.Zero(t, dst[i+3])
	}
}

func TestPackerForRejectsUnknownFormat(t *testing.T) {
	_, err := packerFor(videomode.Format(99))
	require.Error(t, err)
}

func TestPackerForRGB888PreservesChannelOrder(t *testing.T) {
	pack, err := packerFor(videomode.FormatRGB888)
	require.NoError(t, err)

	dst := make([]byte, 3)
	pack(dst, 10, 20, 30)
	require.Equal(t, []byte{10, 20, 30}, dst)
}

func TestPackerForBGR888SwapsChannels(t *testing.T) {
	pack, err := packerFor(videomode.FormatBGR888)
	require.NoError(t, err)

	dst := make([]byte, 3)
	pack(dst, 10, 20, 30)
	require.Equal(t, []byte{30, 20, 10}, dst)
}
