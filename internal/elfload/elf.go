package elfload

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"

	"github.com/ultraos/hyper/internal/fs"
	"github.com/ultraos/hyper/internal/memtype"
	"github.com/ultraos/hyper/internal/pmm"
)

// Arch is the machine architecture a loaded ELF targets.
type Arch int

const (
	ArchInvalid Arch = iota
	ArchI386
	ArchAMD64
	ArchAArch64
)

func (a Arch) String() string {
	switch a {
	case ArchI386:
		return "i386"
	case ArchAMD64:
		return "amd64"
	case ArchAArch64:
		return "aarch64"
	default:
		return "invalid"
	}
}

// machineToArch mirrors elf_machine_to_arch: the closed map from an ELF
// e_machine value to the architecture enum and the pointer width it implies.
func machineToArch(machine uint16) (Arch, int, bool) {
	switch machine {
	case em386:
		return ArchI386, 32, true
	case emAMD64:
		return ArchAMD64, 64, true
	case emAArch64:
		return ArchAArch64, 64, true
	default:
		return ArchInvalid, 0, false
	}
}

// BinaryInfo summarizes a successfully loaded binary's placement, enough
// for the protocol driver to build page tables and hand control over.
type BinaryInfo struct {
	EntrypointAddress uint64

	VirtualBase    uint64
	VirtualCeiling uint64

	PhysicalBase    uint64
	PhysicalCeiling uint64
	PhysicalValid   bool

	Arch    Arch
	Bitness int
}

// Spec describes how to load one ELF binary.
type Spec struct {
	// Binary is the already-open kernel file. elfload only ever reads it.
	Binary fs.File

	// UseVA maps PT_LOAD segments at their p_vaddr; otherwise they are
	// placed at p_paddr (or, if AllocAnywhere, relative to one fresh
	// contiguous physical range).
	UseVA bool

	// AllocAnywhere ignores p_paddr and allocates one contiguous physical
	// range sized to cover the virtual envelope. Mutually exclusive with
	// UseVA.
	AllocAnywhere bool

	// HigherHalfBase is the arch policy's higher-half split address (e.g.
	// 0xFFFFFFFF80000000 for x86-64). Zero disables the higher-half
	// adjustment entirely (e.g. for architectures without one).
	HigherHalfBase uint64

	// BinaryCeiling bounds every physical placement the loader picks on
	// the binary's behalf, supplied by the protocol driver.
	BinaryCeiling uint64

	// MemoryType tags the physical ranges the kernel occupies once loaded.
	MemoryType memtype.Type

	// PMM services every physical allocation this load performs.
	PMM *pmm.PMM

	// Memory writes the decoded segment bytes into physical memory. A
	// real loader backs this with identity-mapped physical RAM access;
	// tests back it with a plain byte slice.
	Memory Memory
}

// Memory is the physical-memory write surface a loaded binary's segments
// are copied into. However the firmware glue actually reaches physical
// RAM (identity-mapped pages, a BIOS real-mode copy, whatever), it plugs
// in here.
type Memory interface {
	WriteAt(addr uint64, data []byte) error
	Zero(addr uint64, n uint64) error
}

const oneMB = 1 << 20

func pageRoundDown(v uint64) uint64 { return v &^ (pmm.PageSize - 1) }
func pageRoundUp(v uint64) uint64   { return pageRoundDown(v+pmm.PageSize-1) }

// DetectArch reads just enough of binary's ELF header to learn its target
// architecture and bitness, without placing or copying anything — the
// protocol driver needs this before it can pick binary_ceiling and
// higher_half_base, both of which Load requires up front.
func DetectArch(binary fs.File) (Arch, int, error) {
	eh, err := decodeEhdr(binary, binary.Size())
	if err != nil {
		return ArchInvalid, 0, err
	}
	arch, bitness, ok := machineToArch(eh.machine)
	if !ok {
		return ArchInvalid, 0, fmt.Errorf("elfload: unsupported e_machine %#x", eh.machine)
	}
	return arch, bitness, nil
}

// Bitness reads EI_CLASS from an ELF header buffer (at least elf32EhdrSize
// bytes) and returns 32, 64, or 0 if the class byte is not recognized.
func Bitness(ident []byte) int {
	if len(ident) <= eiData {
		return 0
	}
	switch ident[eiClass] {
	case elfClass32:
		return 32
	case elfClass64:
		return 64
	default:
		return 0
	}
}

func readFull(f fs.File, buf []byte, off uint64) error {
	n, err := f.ReadAt(buf, off)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("elfload: short read at offset %d: got %d of %d bytes", off, n, len(buf))
	}
	return nil
}

type ehdrInfo struct {
	bitness   int
	machine   uint16
	etype     uint16
	entry     uint64
	phOff     uint64
	phEntSize uint16
	phNum     uint16
}

func decodeEhdr(f fs.File, size uint64) (ehdrInfo, error) {
	if size <= elf64EhdrSize {
		return ehdrInfo{}, fmt.Errorf("elfload: file too small to hold an ELF header")
	}

	head := make([]byte, elf64EhdrSize)
	if err := readFull(f, head, 0); err != nil {
		return ehdrInfo{}, err
	}

	if !bytes.Equal(head[0:4], []byte{elfMag0, elfMag1, elfMag2, elfMag3}) {
		return ehdrInfo{}, fmt.Errorf("elfload: invalid magic")
	}
	if head[eiData] != elfData2LSB {
		return ehdrInfo{}, fmt.Errorf("elfload: not a little-endian file")
	}

	bitness := Bitness(head)
	if bitness == 0 {
		return ehdrInfo{}, fmt.Errorf("elfload: invalid elf class")
	}

	if bitness == 32 {
		var hdr elf32Ehdr
		if err := restruct.Unpack(head[:elf32EhdrSize], binary.LittleEndian, &hdr); err != nil {
			return ehdrInfo{}, fmt.Errorf("elfload: decoding 32-bit header: %w", err)
		}
		return ehdrInfo{
			bitness: 32, machine: hdr.Machine, etype: hdr.Type,
			entry: uint64(hdr.Entry), phOff: uint64(hdr.PhOff),
			phEntSize: hdr.PhEntSize, phNum: hdr.PhNum,
		}, nil
	}

	var hdr elf64Ehdr
	if err := restruct.Unpack(head[:elf64EhdrSize], binary.LittleEndian, &hdr); err != nil {
		return ehdrInfo{}, fmt.Errorf("elfload: decoding 64-bit header: %w", err)
	}
	return ehdrInfo{
		bitness: 64, machine: hdr.Machine, etype: hdr.Type,
		entry: hdr.Entry, phOff: hdr.PhOff,
		phEntSize: hdr.PhEntSize, phNum: hdr.PhNum,
	}, nil
}

func decodePhdr(raw []byte, bitness int) (loadPH, uint32, error) {
	if bitness == 32 {
		var hdr elf32Phdr
		if err := restruct.Unpack(raw, binary.LittleEndian, &hdr); err != nil {
			return loadPH{}, 0, err
		}
		return loadPH{
			physAddr: uint64(hdr.PAddr), virtAddr: uint64(hdr.VAddr),
			memSz: uint64(hdr.MemSz), fileSz: uint64(hdr.FileSz),
			fileOff: uint64(hdr.Offset),
		}, hdr.Type, nil
	}

	var hdr elf64Phdr
	if err := restruct.Unpack(raw, binary.LittleEndian, &hdr); err != nil {
		return loadPH{}, 0, err
	}
	return loadPH{
		physAddr: hdr.PAddr, virtAddr: hdr.VAddr,
		memSz: hdr.MemSz, fileSz: hdr.FileSz,
		fileOff: hdr.Offset,
	}, hdr.Type, nil
}

func phdrSize(bitness int) int {
	if bitness == 32 {
		return elf32PhdrSize
	}
	return elf64PhdrSize
}

// Load decodes, places, and copies an ELF executable's PT_LOAD segments per
// spec. Segments are visited twice: once to compute the virtual/physical
// envelopes and relocate the entrypoint, once to actually allocate and
// write memory, exactly mirroring the reference two-pass loader.
func Load(spec Spec) (BinaryInfo, error) {
	if spec.AllocAnywhere && spec.UseVA {
		return BinaryInfo{}, fmt.Errorf("elfload: allocate-anywhere and use-virtual-addresses are mutually exclusive")
	}

	size := spec.Binary.Size()
	eh, err := decodeEhdr(spec.Binary, size)
	if err != nil {
		return BinaryInfo{}, err
	}

	arch, expectedBits, ok := machineToArch(eh.machine)
	if !ok {
		return BinaryInfo{}, fmt.Errorf("elfload: unrecognized machine type %d", eh.machine)
	}
	if expectedBits != eh.bitness {
		return BinaryInfo{}, fmt.Errorf("elfload: machine type does not match ELF class")
	}
	if eh.etype != etExec {
		return BinaryInfo{}, fmt.Errorf("elfload: not an executable")
	}
	if eh.phNum == 0 || eh.phNum == pnXNum {
		return BinaryInfo{}, fmt.Errorf("elfload: invalid number of program headers")
	}

	phEntSize := phdrSize(eh.bitness)
	if int(eh.phEntSize) < phEntSize {
		return BinaryInfo{}, fmt.Errorf("elfload: program header entry too small for this class")
	}
	phEnd := eh.phOff + uint64(eh.phEntSize)*uint64(eh.phNum)
	if phEnd < eh.phOff || size < phEnd {
		return BinaryInfo{}, fmt.Errorf("elfload: invalid program header offset/size")
	}

	phTable := make([]byte, phEnd-eh.phOff)
	if err := readFull(spec.Binary, phTable, eh.phOff); err != nil {
		return BinaryInfo{}, err
	}

	info := BinaryInfo{
		EntrypointAddress: eh.entry,
		PhysicalValid:     !spec.UseVA,
		Arch:              arch,
		Bitness:           eh.bitness,
	}
	virtualBase, virtualCeiling := ^uint64(0), uint64(0)
	physicalBase, physicalCeiling := ^uint64(0), uint64(0)
	mustBeHigherHalf := spec.AllocAnywhere

	for i := 0; i < int(eh.phNum); i++ {
		raw := phTable[i*int(eh.phEntSize) : i*int(eh.phEntSize)+phEntSize]
		hdr, ptype, err := decodePhdr(raw, eh.bitness)
		if err != nil {
			return BinaryInfo{}, err
		}
		if ptype != ptLoad {
			continue
		}

		if spec.HigherHalfBase != 0 && hdr.virtAddr < spec.HigherHalfBase && mustBeHigherHalf {
			return BinaryInfo{}, fmt.Errorf("elfload: invalid load address")
		}

		if hdr.virtAddr < virtualBase {
			virtualBase = hdr.virtAddr
		}
		if end := hdr.virtAddr + hdr.memSz; end > virtualCeiling {
			virtualCeiling = end
		}

		if !spec.UseVA && info.EntrypointAddress >= hdr.virtAddr && info.EntrypointAddress < hdr.virtAddr+hdr.memSz {
			info.EntrypointAddress = info.EntrypointAddress - hdr.virtAddr + hdr.physAddr
		}

		if hdr.physAddr < physicalBase {
			physicalBase = hdr.physAddr
		}
		if end := hdr.physAddr + hdr.memSz; end > physicalCeiling {
			physicalCeiling = end
		}
	}

	referenceBase, referenceCeiling := physicalBase, physicalCeiling
	if spec.UseVA {
		referenceBase, referenceCeiling = virtualBase, virtualCeiling
	}
	if info.EntrypointAddress >= referenceCeiling || info.EntrypointAddress < referenceBase {
		return BinaryInfo{}, fmt.Errorf("elfload: invalid entrypoint")
	}

	info.VirtualBase = pageRoundDown(virtualBase)
	info.VirtualCeiling = pageRoundUp(virtualCeiling)
	info.PhysicalBase = pageRoundDown(physicalBase)
	info.PhysicalCeiling = pageRoundUp(physicalCeiling)

	if spec.AllocAnywhere {
		pages := (info.VirtualCeiling - info.VirtualBase) / pmm.PageSize
		info.PhysicalBase = spec.PMM.MustAllocatePages(pages, spec.BinaryCeiling, spec.MemoryType)
		info.PhysicalCeiling = info.PhysicalBase + pages*pmm.PageSize
		info.PhysicalValid = true
	}

	for i := 0; i < int(eh.phNum); i++ {
		raw := phTable[i*int(eh.phEntSize) : i*int(eh.phEntSize)+phEntSize]
		hdr, ptype, err := decodePhdr(raw, eh.bitness)
		if err != nil {
			return BinaryInfo{}, err
		}
		if ptype != ptLoad {
			continue
		}

		if err := loadSegment(spec, info, hdr, size); err != nil {
			return BinaryInfo{}, err
		}
	}

	return info, nil
}

func loadSegment(spec Spec, info BinaryInfo, hdr loadPH, fileSize uint64) error {
	addr := hdr.physAddr
	if spec.UseVA {
		addr = hdr.virtAddr
	}
	if addr+hdr.memSz < addr {
		return fmt.Errorf("elfload: invalid load address")
	}

	fileEnd := hdr.fileOff + hdr.fileSz
	if fileEnd < hdr.fileOff || hdr.memSz < hdr.fileSz || fileSize < fileEnd {
		return fmt.Errorf("elfload: invalid program header")
	}

	if spec.HigherHalfBase != 0 && addr >= spec.HigherHalfBase {
		if !spec.UseVA {
			return fmt.Errorf("elfload: invalid load address")
		}
		addr -= spec.HigherHalfBase
		if addr < oneMB && !spec.AllocAnywhere {
			return fmt.Errorf("elfload: invalid load address")
		}
	}

	var loadBase uint64
	if !spec.AllocAnywhere {
		begin := pageRoundDown(addr)
		end := pageRoundUp(begin + hdr.memSz)
		pages := (end - begin) / pmm.PageSize

		if spec.BinaryCeiling != 0 && end > spec.BinaryCeiling {
			return fmt.Errorf("elfload: invalid load address")
		}

		spec.PMM.MustAllocatePagesAt(begin, pages, spec.MemoryType)
		loadBase = begin + (addr - begin)
	} else {
		loadBase = info.PhysicalBase + (hdr.virtAddr - info.VirtualBase)
	}

	if hdr.fileSz != 0 {
		buf := make([]byte, hdr.fileSz)
		if err := readFull(spec.Binary, buf, hdr.fileOff); err != nil {
			return err
		}
		if err := spec.Memory.WriteAt(loadBase, buf); err != nil {
			return err
		}
		loadBase += hdr.fileSz
	}

	if bytesToZero := hdr.memSz - hdr.fileSz; bytesToZero != 0 {
		if err := spec.Memory.Zero(loadBase, bytesToZero); err != nil {
			return err
		}
	}

	return nil
}
