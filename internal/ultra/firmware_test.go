package ultra

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanForRSDPFindsAlignedSignature(t *testing.T) {
	window := make([]byte, 64)
	copy(window[32:], rsdpSignature)

	off, ok := scanForRSDP(window)
	require.True(t, ok)
	require.Equal(t, uint64(32), off)
}

func TestScanForRSDPIgnoresUnaligned(t *testing.T) {
	window := make([]byte, 64)
	copy(window[5:], rsdpSignature)

	_, ok := scanForRSDP(window)
	require.False(t, ok)
}

// fakeBIOSMemory serves fixed byte windows keyed by exact (addr, n) reads,
// enough to drive BIOSFirmware without a real physical address space.
type fakeBIOSMemory struct {
	windows map[uint64][]byte
}

func (m *fakeBIOSMemory) ReadPhysical(addr uint64, n uint64) ([]byte, error) {
	w, ok := m.windows[addr]
	if !ok {
		return nil, fmt.Errorf("no window at %#x", addr)
	}
	if uint64(len(w)) < n {
		buf := make([]byte, n)
		copy(buf, w)
		return buf, nil
	}
	return w[:n], nil
}

func TestBIOSFirmwareFindRSDPViaEBDA(t *testing.T) {
	ebdaWindow := make([]byte, biosEBDASearchSize)
	copy(ebdaWindow[48:], rsdpSignature)

	mem := &fakeBIOSMemory{windows: map[uint64][]byte{
		biosEBDAPointerAddr: {0x00, 0x50}, // segment 0x5000 -> ebda = 0x50000
		0x50000:             ebdaWindow,
	}}
	fw := BIOSFirmware{Memory: mem}

	addr, err := fw.FindRSDP()
	require.NoError(t, err)
	require.Equal(t, uint64(0x50000+48), addr)
}

func TestBIOSFirmwareFindRSDPFallsBackToROMArea(t *testing.T) {
	romWindow := make([]byte, biosAreaSearchLength)
	copy(romWindow[160:], rsdpSignature)

	mem := &fakeBIOSMemory{windows: map[uint64][]byte{
		biosEBDAPointerAddr:  {0x00, 0x00}, // no EBDA
		biosAreaSearchBase:   romWindow,
	}}
	fw := BIOSFirmware{Memory: mem}

	addr, err := fw.FindRSDP()
	require.NoError(t, err)
	require.Equal(t, uint64(biosAreaSearchBase+160), addr)
}

func TestBIOSFirmwareFindRSDPNotFound(t *testing.T) {
	mem := &fakeBIOSMemory{windows: map[uint64][]byte{
		biosEBDAPointerAddr: {0x00, 0x00},
		biosAreaSearchBase:  make([]byte, biosAreaSearchLength),
	}}
	fw := BIOSFirmware{Memory: mem}

	_, err := fw.FindRSDP()
	require.Error(t, err)
}

func TestBIOSFirmwareFindDTBAlwaysNone(t *testing.T) {
	fw := BIOSFirmware{Memory: &fakeBIOSMemory{}}
	addr, err := fw.FindDTB()
	require.NoError(t, err)
	require.Zero(t, addr)
}

func TestBIOSFirmwareFindSMBIOS(t *testing.T) {
	romWindow := make([]byte, biosAreaSearchLength)
	copy(romWindow[32:], smbiosAnchor)

	mem := &fakeBIOSMemory{windows: map[uint64][]byte{biosAreaSearchBase: romWindow}}
	fw := BIOSFirmware{Memory: mem}

	addr, bitness, err := fw.FindSMBIOS()
	require.NoError(t, err)
	require.Equal(t, uint64(biosAreaSearchBase+32), addr)
	require.Equal(t, 32, bitness)
}

func TestUEFIFirmwarePrefersACPI20Over10(t *testing.T) {
	fw := UEFIFirmware{ConfigurationTable: map[EFIGUID]uint64{
		efiACPI20TableGUID: 0x1000,
		efiACPI10TableGUID: 0x2000,
	}}

	addr, err := fw.FindRSDP()
	require.NoError(t, err)
	require.Equal(t, uint64(0x1000), addr)
}

func TestUEFIFirmwareFallsBackToACPI10(t *testing.T) {
	fw := UEFIFirmware{ConfigurationTable: map[EFIGUID]uint64{efiACPI10TableGUID: 0x2000}}

	addr, err := fw.FindRSDP()
	require.NoError(t, err)
	require.Equal(t, uint64(0x2000), addr)
}

func TestUEFIFirmwareFindDTBMissingIsError(t *testing.T) {
	fw := UEFIFirmware{ConfigurationTable: map[EFIGUID]uint64{}}
	_, err := fw.FindDTB()
	require.Error(t, err)
}

func TestUEFIFirmwarePrefersSMBIOS3(t *testing.T) {
	fw := UEFIFirmware{ConfigurationTable: map[EFIGUID]uint64{
		efiSMBIOSTableGUID:  0x3000,
		efiSMBIOS3TableGUID: 0x4000,
	}}

	addr, bitness, err := fw.FindSMBIOS()
	require.NoError(t, err)
	require.Equal(t, uint64(0x4000), addr)
	require.Equal(t, 64, bitness)
}

// fakeFirmware lets QueryTables's aggregation behavior be tested independent
// of any real BIOS/UEFI discovery logic.
type fakeFirmware struct {
	rsdp, dtb, smbios       uint64
	rsdpErr, dtbErr, smErr  error
	smbiosBitness           int
}

func (f fakeFirmware) FindRSDP() (uint64, error)       { return f.rsdp, f.rsdpErr }
func (f fakeFirmware) FindDTB() (uint64, error)        { return f.dtb, f.dtbErr }
func (f fakeFirmware) FindSMBIOS() (uint64, int, error) { return f.smbios, f.smbiosBitness, f.smErr }

func TestQueryTablesAggregatesPartialFailures(t *testing.T) {
	fw := fakeFirmware{
		rsdpErr: errors.New("no rsdp"),
		dtb:     0x9000,
		smErr:   errors.New("no smbios"),
	}

	tables, err := QueryTables(fw)
	require.Error(t, err)
	require.Equal(t, uint64(0x9000), tables.DTB)
	require.Zero(t, tables.RSDP)
	require.Zero(t, tables.SMBIOS)
}

func TestQueryTablesNoErrorWhenAllSucceed(t *testing.T) {
	fw := fakeFirmware{rsdp: 0x1, dtb: 0x2, smbios: 0x3, smbiosBitness: 64}

	tables, err := QueryTables(fw)
	require.NoError(t, err)
	require.Equal(t, uint64(0x1), tables.RSDP)
	require.Equal(t, uint64(0x2), tables.DTB)
	require.Equal(t, uint64(0x3), tables.SMBIOS)
	require.Equal(t, 64, tables.SMBIOSBitness)
}
