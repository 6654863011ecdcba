package ultra

import (
	"encoding/binary"
	"testing"

	"github.com/go-restruct/restruct"
	"github.com/stretchr/testify/require"

	"github.com/ultraos/hyper/internal/videomode"
)

func TestBuildPlatformInfoEncodesHeaderAndFields(t *testing.T) {
	b, err := buildPlatformInfo(PlatformUEFI, 3, 1, "hyper", 0xdeadbeef)
	require.NoError(t, err)

	var w platformInfoWire
	require.NoError(t, restructUnpack(b, &w))
	require.Equal(t, attrPlatformInfo, w.Header.Type)
	require.Equal(t, uint32(PlatformUEFI), w.PlatformType)
	require.Equal(t, uint16(3), w.LoaderMajor)
	require.Equal(t, uint16(1), w.LoaderMinor)
	require.Equal(t, uint64(0xdeadbeef), w.ACPIRSDPAddress)
	require.Equal(t, "hyper", cStringOf(w.LoaderName[:]))
}

func TestBuildKernelInfoEncodesOrigin(t *testing.T) {
	origin := KernelOrigin{
		PartitionType:  PartitionTypeGPT,
		DiskIndex:      1,
		PartitionIndex: 2,
		PathOnDisk:     "/boot/kernel.elf",
	}
	b, err := buildKernelInfo(0x100000, 0xFFFFFFFF80000000, 0x4000, origin)
	require.NoError(t, err)

	var w kernelInfoWire
	require.NoError(t, restructUnpack(b, &w))
	require.Equal(t, attrKernelInfo, w.Header.Type)
	require.Equal(t, uint64(0x100000), w.PhysicalBase)
	require.Equal(t, uint64(0xFFFFFFFF80000000), w.VirtualBase)
	require.Equal(t, uint64(0x4000), w.RangeLength)
	require.Equal(t, uint64(PartitionTypeGPT), w.PartitionType)
	require.Equal(t, uint32(1), w.DiskIndex)
	require.Equal(t, uint32(2), w.PartitionIndex)
	require.Equal(t, "/boot/kernel.elf", cStringOf(w.PathOnDisk[:]))
}

func TestBuildModuleInfoEncodesNameAndPlacement(t *testing.T) {
	b, err := buildModuleInfo(LoadedModule{Name: "initrd", PhysicalAddress: 0x200000, Length: 4096})
	require.NoError(t, err)

	var w moduleInfoWire
	require.NoError(t, restructUnpack(b, &w))
	require.Equal(t, attrModuleInfo, w.Header.Type)
	require.Equal(t, "initrd", cStringOf(w.Name[:]))
	require.Equal(t, uint64(0x200000), w.PhysicalAddress)
	require.Equal(t, uint64(4096), w.Length)
}

func TestBuildCommandLinePadsToEightBytes(t *testing.T) {
	b := buildCommandLine("console=ttyS0")
	require.Zero(t, len(b)%8)

	hdrSize := int(binary.Size(attributeHeader{}))
	var hdr attributeHeader
	require.NoError(t, restructUnpack(b[:hdrSize], &hdr))
	require.Equal(t, attrCommandLine, hdr.Type)
	require.Equal(t, uint32(len(b)), hdr.SizeInBytes)

	body := b[hdrSize:]
	nul := indexByte(body, 0)
	require.GreaterOrEqual(t, nul, 0)
	require.Equal(t, "console=ttyS0", string(body[:nul]))
}

func TestBuildMemoryMapEncodesAllEntries(t *testing.T) {
	entries := []memoryMapEntryWire{
		{PhysicalAddress: 0, SizeInBytes: 0x1000, Type: wireMemFree},
		{PhysicalAddress: 0x1000, SizeInBytes: 0x2000, Type: wireMemReserved},
	}
	b, err := buildMemoryMap(entries)
	require.NoError(t, err)

	hdrSize := int(binary.Size(attributeHeader{}))
	var hdr attributeHeader
	require.NoError(t, restructUnpack(b[:hdrSize], &hdr))
	require.Equal(t, attrMemoryMap, hdr.Type)

	entrySize := int(binary.Size(memoryMapEntryWire{}))
	require.Equal(t, hdrSize+entrySize*len(entries), len(b))
}

func TestBuildFramebufferComputesWireFields(t *testing.T) {
	mode := videomode.Mode{Width: 1024, Height: 768, Bpp: 32, Format: videomode.FormatXRGB8888}
	b, err := buildFramebuffer(mode, mode.Width*(mode.Bpp/8), 0x80000000)
	require.NoError(t, err)

	var w framebufferAttributeWire
	require.NoError(t, restructUnpack(b, &w))
	require.Equal(t, attrFramebuffer, w.Header.Type)
	require.Equal(t, uint32(1024), w.FB.Width)
	require.Equal(t, uint32(768), w.FB.Height)
	require.Equal(t, uint32(1024*4), w.FB.Pitch)
	require.Equal(t, uint16(32), w.FB.Bpp)
	require.Equal(t, uint64(0x80000000), w.FB.PhysicalAddress)
}

func TestPutCStringZeroPadsTail(t *testing.T) {
	dst := make([]byte, 8)
	for i := range dst {
		dst[i] = 0xFF
	}
	putCString(dst, "hi")
	require.Equal(t, []byte{'h', 'i', 0, 0, 0, 0, 0, 0}, dst)
}

func TestPutCStringTruncatesOverlong(t *testing.T) {
	dst := make([]byte, 4)
	putCString(dst, "toolong")
	require.Equal(t, []byte("tool"), dst)
}

func TestGuidToWireRoundTripsBytes(t *testing.T) {
	g := [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}
	w := guidToWire(g)
	require.Equal(t, uint32(0x04030201), w.Data1)
	require.Equal(t, uint16(0x0605), w.Data2)
	require.Equal(t, uint16(0x0807), w.Data3)
	require.Equal(t, [8]byte{0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}, w.Data4)
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func cStringOf(b []byte) string {
	n := indexByte(b, 0)
	if n < 0 {
		n = len(b)
	}
	return string(b[:n])
}

func restructUnpack(b []byte, v any) error {
	return restruct.Unpack(b, binary.LittleEndian, v)
}
