package elfload

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ultraos/hyper/internal/memtype"
	"github.com/ultraos/hyper/internal/pmm"
)

type memFile struct{ data []byte }

func (f *memFile) Size() uint64 { return uint64(len(f.data)) }
func (f *memFile) Close() error { return nil }
func (f *memFile) ReadAt(buf []byte, offset uint64) (int, error) {
	n := copy(buf, f.data[offset:])
	return n, nil
}

type fakeMemory struct{ buf []byte }

func newFakeMemory(size int) *fakeMemory { return &fakeMemory{buf: make([]byte, size)} }

func (m *fakeMemory) WriteAt(addr uint64, data []byte) error {
	copy(m.buf[addr:], data)
	return nil
}

func (m *fakeMemory) Zero(addr uint64, n uint64) error {
	for i := uint64(0); i < n; i++ {
		m.buf[addr+i] = 0
	}
	return nil
}

const segmentContent = "ELFSEGMENTDATA!!" // 16 bytes

func buildELF64(vaddr, paddr uint64, entry uint64) []byte {
	const (
		phoff     = elf64EhdrSize
		phentsize = elf64PhdrSize
		fileoff   = phoff + phentsize
	)

	data := make([]byte, fileoff+len(segmentContent))

	data[0], data[1], data[2], data[3] = elfMag0, elfMag1, elfMag2, elfMag3
	data[eiClass] = elfClass64
	data[eiData] = elfData2LSB

	binary.LittleEndian.PutUint16(data[16:], etExec)
	binary.LittleEndian.PutUint16(data[18:], emAMD64)
	binary.LittleEndian.PutUint64(data[24:], entry)
	binary.LittleEndian.PutUint64(data[32:], phoff)
	binary.LittleEndian.PutUint16(data[54:], phentsize)
	binary.LittleEndian.PutUint16(data[56:], 1)

	ph := data[phoff:]
	binary.LittleEndian.PutUint32(ph[0:], ptLoad)
	binary.LittleEndian.PutUint64(ph[8:], fileoff)
	binary.LittleEndian.PutUint64(ph[16:], vaddr)
	binary.LittleEndian.PutUint64(ph[24:], paddr)
	binary.LittleEndian.PutUint64(ph[32:], uint64(len(segmentContent)))
	binary.LittleEndian.PutUint64(ph[40:], uint64(len(segmentContent))*2)

	copy(data[fileoff:], segmentContent)
	return data
}

func newTestPMM() *pmm.PMM {
	return pmm.New([]pmm.Entry{{Base: 0, Size: 16 * 1024 * 1024, Type: memtype.Free}}, pmm.DefaultKnownTypes())
}

func TestLoadUseVAPlacesAtLinkAddress(t *testing.T) {
	const vaddr = 0x100000
	bin := buildELF64(vaddr, vaddr, vaddr+4)

	mem := newFakeMemory(2 * 1024 * 1024)
	info, err := Load(Spec{
		Binary:     &memFile{data: bin},
		UseVA:      true,
		MemoryType: memtype.LoaderReclaimable,
		PMM:        newTestPMM(),
		Memory:     mem,
	})
	require.NoError(t, err)
	require.Equal(t, ArchAMD64, info.Arch)
	require.Equal(t, 64, info.Bitness)
	require.EqualValues(t, vaddr+4, info.EntrypointAddress)
	require.EqualValues(t, vaddr, info.VirtualBase)
	require.True(t, info.PhysicalValid)

	require.Equal(t, segmentContent, string(mem.buf[vaddr:vaddr+len(segmentContent)]))
	zeroTail := mem.buf[vaddr+len(segmentContent) : vaddr+len(segmentContent)*2]
	for _, b := range zeroTail {
		require.Zero(t, b)
	}
}

func TestLoadAllocateAnywhereRelocatesEntrypoint(t *testing.T) {
	const vaddr = 0xFFFFFFFF80000000
	bin := buildELF64(vaddr, 0, vaddr+4)

	mem := newFakeMemory(2 * 1024 * 1024)
	info, err := Load(Spec{
		Binary:        &memFile{data: bin},
		UseVA:         false,
		AllocAnywhere: true,
		BinaryCeiling: 16 * 1024 * 1024,
		MemoryType:    memtype.LoaderReclaimable,
		PMM:           newTestPMM(),
		Memory:        mem,
	})
	require.NoError(t, err)
	require.True(t, info.PhysicalValid)
	require.EqualValues(t, info.PhysicalBase+4, info.EntrypointAddress)
	require.Equal(t, segmentContent, string(mem.buf[info.PhysicalBase:uint64(info.PhysicalBase)+uint64(len(segmentContent))]))
}

func TestLoadRejectsWrongMachineType(t *testing.T) {
	bin := buildELF64(0x100000, 0x100000, 0x100004)
	binary.LittleEndian.PutUint16(bin[18:], em386) // claims 32-bit machine in a 64-bit class file

	_, err := Load(Spec{
		Binary: &memFile{data: bin},
		UseVA:  true,
		PMM:    newTestPMM(),
		Memory: newFakeMemory(2 * 1024 * 1024),
	})
	require.Error(t, err)
}

func TestLoadRejectsAllocAnywhereWithUseVA(t *testing.T) {
	_, err := Load(Spec{UseVA: true, AllocAnywhere: true})
	require.Error(t, err)
}

func TestBitness(t *testing.T) {
	ident := make([]byte, identSize)
	ident[eiClass] = elfClass32
	require.Equal(t, 32, Bitness(ident))
	ident[eiClass] = elfClass64
	require.Equal(t, 64, Bitness(ident))
	ident[eiClass] = 0
	require.Equal(t, 0, Bitness(ident))
}
