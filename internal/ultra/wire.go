// Package ultra implements the Ultra boot protocol driver: given a parsed
// config and a selected loadable entry, it loads the kernel ELF, builds the
// page table, loads modules, allocates a stack, picks a video mode, and
// assembles the attribute array handover.go's jump glue ultimately reads.
package ultra

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"

	"github.com/ultraos/hyper/internal/memtype"
	"github.com/ultraos/hyper/internal/videomode"
)

// Attribute type tags, matching the wire format's fixed ordering.
const (
	attrPlatformInfo  uint32 = 1
	attrKernelInfo    uint32 = 2
	attrMemoryMap     uint32 = 3
	attrModuleInfo    uint32 = 4
	attrCommandLine   uint32 = 5
	attrFramebuffer   uint32 = 6
)

// Platform identifies which firmware interface produced this boot.
type Platform uint32

const (
	PlatformInvalid Platform = iota
	PlatformBIOS
	PlatformUEFI
)

// Ultra-protocol-specific memory types, minted above memtype.ProtoSpecificBase
// so they always win overlap resolution against any standard type.
const (
	MemoryTypeLoaderReclaimable = memtype.ProtoSpecificBase + 1
	MemoryTypeModule            = memtype.ProtoSpecificBase + 2
	MemoryTypeKernelStack       = memtype.ProtoSpecificBase + 3
	MemoryTypeKernelBinary      = memtype.ProtoSpecificBase + 4
	MemoryTypePageTable         = memtype.ProtoSpecificBase + 5
	MemoryTypeAttributeArray    = memtype.ProtoSpecificBase + 6
)

type attributeHeader struct {
	Type         uint32
	SizeInBytes  uint32
}

type guidWire struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

type platformInfoWire struct {
	Header          attributeHeader
	PlatformType    uint32
	LoaderMajor     uint16
	LoaderMinor     uint16
	LoaderName      [32]byte
	ACPIRSDPAddress uint64
}

// PartitionType identifies how the kernel's origin disk was partitioned,
// matching the reference ultra_kernel_info_attribute.partition_type values.
type PartitionType uint64

const (
	PartitionTypeRaw PartitionType = iota + 1
	PartitionTypeMBR
	PartitionTypeGPT
)

type kernelInfoWire struct {
	Header          attributeHeader
	PhysicalBase    uint64
	VirtualBase     uint64
	RangeLength     uint64
	PartitionType   uint64
	DiskGUID        guidWire
	PartitionGUID   guidWire
	DiskIndex       uint32
	PartitionIndex  uint32
	PathOnDisk      [256]byte
}

type moduleInfoWire struct {
	Header          attributeHeader
	Name            [64]byte
	PhysicalAddress uint64
	Length          uint64
}

type memoryMapEntryWire struct {
	PhysicalAddress uint64
	SizeInBytes     uint64
	Type            uint64
}

type framebufferWire struct {
	Width           uint32
	Height          uint32
	Pitch           uint32
	Bpp             uint16
	Format          uint16
	PhysicalAddress uint64
}

type framebufferAttributeWire struct {
	Header attributeHeader
	FB     framebufferWire
}

func packStruct(v any) ([]byte, error) {
	b, err := restruct.Pack(binary.LittleEndian, v)
	if err != nil {
		return nil, fmt.Errorf("ultra: packing attribute record: %w", err)
	}
	return b, nil
}

func putCString(dst []byte, s string) {
	n := copy(dst, s)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}

func guidToWire(g [16]byte) guidWire {
	return guidWire{
		Data1: binary.LittleEndian.Uint32(g[0:4]),
		Data2: binary.LittleEndian.Uint16(g[4:6]),
		Data3: binary.LittleEndian.Uint16(g[6:8]),
		Data4: [8]byte(g[8:16]),
	}
}

// buildPlatformInfo encodes the PLATFORM_INFO attribute.
func buildPlatformInfo(platform Platform, loaderMajor, loaderMinor uint16, loaderName string, rsdp uint64) ([]byte, error) {
	w := platformInfoWire{
		PlatformType:    uint32(platform),
		LoaderMajor:     loaderMajor,
		LoaderMinor:     loaderMinor,
		ACPIRSDPAddress: rsdp,
	}
	putCString(w.LoaderName[:], loaderName)
	w.Header = attributeHeader{Type: attrPlatformInfo, SizeInBytes: uint32(binary.Size(w))}
	return packStruct(w)
}

// KernelOrigin is where on disk the booted kernel binary was found, used to
// populate KERNEL_INFO so the kernel can re-open its own image.
type KernelOrigin struct {
	PartitionType  PartitionType
	DiskGUID       [16]byte
	PartitionGUID  [16]byte
	DiskIndex      uint32
	PartitionIndex uint32
	PathOnDisk     string
}

func buildKernelInfo(physicalBase, virtualBase, rangeLength uint64, origin KernelOrigin) ([]byte, error) {
	w := kernelInfoWire{
		PhysicalBase:   physicalBase,
		VirtualBase:    virtualBase,
		RangeLength:    rangeLength,
		PartitionType:  uint64(origin.PartitionType),
		DiskGUID:       guidToWire(origin.DiskGUID),
		PartitionGUID:  guidToWire(origin.PartitionGUID),
		DiskIndex:      origin.DiskIndex,
		PartitionIndex: origin.PartitionIndex,
	}
	putCString(w.PathOnDisk[:], origin.PathOnDisk)
	w.Header = attributeHeader{Type: attrKernelInfo, SizeInBytes: uint32(binary.Size(w))}
	return packStruct(w)
}

// LoadedModule is one module the attribute array must describe, already
// placed in physical memory by loadModules.
type LoadedModule struct {
	Name            string
	PhysicalAddress uint64
	Length          uint64
}

func buildModuleInfo(m LoadedModule) ([]byte, error) {
	w := moduleInfoWire{PhysicalAddress: m.PhysicalAddress, Length: m.Length}
	putCString(w.Name[:], m.Name)
	w.Header = attributeHeader{Type: attrModuleInfo, SizeInBytes: uint32(binary.Size(w))}
	return packStruct(w)
}

// buildCommandLine encodes COMMAND_LINE, padded to an 8-byte multiple per
// the wire format.
func buildCommandLine(text string) []byte {
	body := append([]byte(text), 0)
	total := len(attributeHeaderBytes()) + len(body)
	if pad := total % 8; pad != 0 {
		body = append(body, make([]byte, 8-pad)...)
	}

	var buf bytes.Buffer
	hdr := attributeHeader{Type: attrCommandLine, SizeInBytes: uint32(len(attributeHeaderBytes()) + len(body))}
	binary.Write(&buf, binary.LittleEndian, hdr)
	buf.Write(body)
	return buf.Bytes()
}

func attributeHeaderBytes() []byte {
	return make([]byte, binary.Size(attributeHeader{}))
}

func buildFramebuffer(mode videomode.Mode, pitch uint32, physicalAddress uint64) ([]byte, error) {
	w := framebufferAttributeWire{
		FB: framebufferWire{
			Width: mode.Width, Height: mode.Height, Pitch: pitch,
			Bpp: uint16(mode.Bpp), Format: uint16(mode.Format),
			PhysicalAddress: physicalAddress,
		},
	}
	w.Header = attributeHeader{Type: attrFramebuffer, SizeInBytes: uint32(binary.Size(w))}
	return packStruct(w)
}

func buildMemoryMap(entries []memoryMapEntryWire) ([]byte, error) {
	var buf bytes.Buffer
	hdr := attributeHeader{
		Type:        attrMemoryMap,
		SizeInBytes: uint32(binary.Size(attributeHeader{}) + binary.Size(memoryMapEntryWire{})*len(entries)),
	}
	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return nil, err
	}
	for _, e := range entries {
		if err := binary.Write(&buf, binary.LittleEndian, e); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
