package ultra

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Tables holds whatever firmware-specific descriptor addresses step 7 of the
// driver managed to find. A zero field means that table was not found;
// QueryTables's error names the lookups that failed.
type Tables struct {
	RSDP          uint64
	DTB           uint64
	SMBIOS        uint64
	SMBIOSBitness int
}

// Firmware abstracts the BIOS-vs-UEFI difference in how ACPI/devicetree/
// SMBIOS tables are discovered. A zero address with a nil error means the
// platform has no source for that table at all (BIOSFirmware.FindDTB); a
// table that is searched for and not found is reported as an error.
type Firmware interface {
	FindRSDP() (uint64, error)
	FindDTB() (uint64, error)
	FindSMBIOS() (uint64, int, error)
}

// QueryTables runs every Firmware lookup and returns whatever it found,
// folding failures into a single *multierror.Error rather than letting one
// missing table abort the others — ACPI, DTB and SMBIOS discovery are
// independent and a kernel built for a DTB-less platform doesn't care that
// DTB lookup failed.
func QueryTables(fw Firmware) (Tables, error) {
	var result *multierror.Error
	var t Tables

	if rsdp, err := fw.FindRSDP(); err != nil {
		result = multierror.Append(result, fmt.Errorf("rsdp: %w", err))
	} else {
		t.RSDP = rsdp
	}

	if dtb, err := fw.FindDTB(); err != nil {
		result = multierror.Append(result, fmt.Errorf("dtb: %w", err))
	} else {
		t.DTB = dtb
	}

	if smbios, bitness, err := fw.FindSMBIOS(); err != nil {
		result = multierror.Append(result, fmt.Errorf("smbios: %w", err))
	} else {
		t.SMBIOS = smbios
		t.SMBIOSBitness = bitness
	}

	return t, result.ErrorOrNil()
}

const rsdpAlignment = 16

var rsdpSignature = []byte("RSD PTR ")

// scanForRSDP mirrors bios_find_rsdp: a 16-byte-aligned linear scan of a
// physical memory window for the 8-byte RSDP signature. Checksum validation
// is left to the kernel, matching the reference loader's own TODO.
func scanForRSDP(window []byte) (uint64, bool) {
	for off := 0; off+len(rsdpSignature) <= len(window); off += rsdpAlignment {
		if bytes.Equal(window[off:off+len(rsdpSignature)], rsdpSignature) {
			return uint64(off), true
		}
	}
	return 0, false
}

// BIOSMemory is the physical-memory seam BIOSFirmware reads through: BIOS
// tables are found by scanning real memory windows, not by querying a
// service.
type BIOSMemory interface {
	ReadPhysical(addr uint64, n uint64) ([]byte, error)
}

// BIOSFirmware locates ACPI and SMBIOS tables the way BIOS-era loaders do:
// scanning the EBDA and the BIOS read-only area for fixed signatures. BIOS
// systems have no standard devicetree source, so FindDTB always reports
// none found.
type BIOSFirmware struct {
	Memory BIOSMemory
}

const (
	biosEBDAPointerAddr  = 0x0040E
	biosEBDASearchSize   = 1 << 10
	biosAreaSearchBase   = 0xE0000
	biosAreaSearchLength = 0x20000
)

func (b BIOSFirmware) FindRSDP() (uint64, error) {
	ptr, err := b.Memory.ReadPhysical(biosEBDAPointerAddr, 2)
	if err != nil {
		return 0, fmt.Errorf("ultra: reading EBDA pointer: %w", err)
	}
	ebda := uint64(binary.LittleEndian.Uint16(ptr)) << 4

	if ebda > biosEBDAPointerAddr {
		if window, err := b.Memory.ReadPhysical(ebda, biosEBDASearchSize); err == nil {
			if off, ok := scanForRSDP(window); ok {
				return ebda + off, nil
			}
		}
	}

	window, err := b.Memory.ReadPhysical(biosAreaSearchBase, biosAreaSearchLength)
	if err != nil {
		return 0, fmt.Errorf("ultra: reading BIOS ROM area: %w", err)
	}
	if off, ok := scanForRSDP(window); ok {
		return biosAreaSearchBase + off, nil
	}

	return 0, fmt.Errorf("ultra: no RSDP signature found")
}

func (b BIOSFirmware) FindDTB() (uint64, error) {
	return 0, nil
}

var smbiosAnchor = []byte("_SM_")

func (b BIOSFirmware) FindSMBIOS() (uint64, int, error) {
	window, err := b.Memory.ReadPhysical(biosAreaSearchBase, biosAreaSearchLength)
	if err != nil {
		return 0, 0, fmt.Errorf("ultra: reading BIOS ROM area: %w", err)
	}
	for off := 0; off+len(smbiosAnchor) <= len(window); off += rsdpAlignment {
		if bytes.Equal(window[off:off+len(smbiosAnchor)], smbiosAnchor) {
			return biosAreaSearchBase + uint64(off), 32, nil
		}
	}
	return 0, 0, fmt.Errorf("ultra: no SMBIOS anchor found")
}

// EFIGUID is a 16-byte little-endian-encoded EFI_GUID, matching
// EFI_ACPI_20_TABLE_GUID/EFI_DTB_TABLE_GUID/SMBIOS3_TABLE_GUID.
type EFIGUID [16]byte

var (
	efiACPI20TableGUID = EFIGUID{0x71, 0xe8, 0x68, 0x88, 0xf1, 0xe4, 0xd3, 0x11, 0xbc, 0x22, 0x00, 0x80, 0xc7, 0x3c, 0x88, 0x81}
	efiACPI10TableGUID = EFIGUID{0x30, 0x2d, 0x9d, 0xeb, 0x88, 0x2d, 0xd3, 0x11, 0x9a, 0x16, 0x00, 0x90, 0x27, 0x3f, 0xc1, 0x4d}
	efiDTBTableGUID    = EFIGUID{0xd5, 0x21, 0xb6, 0xb1, 0x9c, 0xf1, 0xa5, 0x41, 0x83, 0x0b, 0xd9, 0x15, 0x2c, 0x69, 0xaa, 0xe0}
	efiSMBIOSTableGUID = EFIGUID{0x31, 0x2d, 0x9d, 0xeb, 0x88, 0x2d, 0xd3, 0x11, 0x9a, 0x16, 0x00, 0x90, 0x27, 0x3f, 0xc1, 0x4d}
	efiSMBIOS3TableGUID = EFIGUID{0x44, 0x15, 0xfd, 0xf2, 0x94, 0x97, 0x2c, 0x4a, 0x99, 0x2e, 0xe5, 0xbb, 0xcf, 0x20, 0xe3, 0x94}
)

// UEFIFirmware locates tables via the EFI Configuration Table, the way
// services_find_rsdp/services_find_dtb/services_find_smbios do: a lookup by
// well-known GUID.
type UEFIFirmware struct {
	ConfigurationTable map[EFIGUID]uint64
}

func (u UEFIFirmware) lookup(guids ...EFIGUID) (uint64, bool) {
	for _, g := range guids {
		if addr, ok := u.ConfigurationTable[g]; ok && addr != 0 {
			return addr, true
		}
	}
	return 0, false
}

func (u UEFIFirmware) FindRSDP() (uint64, error) {
	if addr, ok := u.lookup(efiACPI20TableGUID, efiACPI10TableGUID); ok {
		return addr, nil
	}
	return 0, fmt.Errorf("ultra: no ACPI configuration table entry, host may not support ACPI")
}

func (u UEFIFirmware) FindDTB() (uint64, error) {
	if addr, ok := u.lookup(efiDTBTableGUID); ok {
		return addr, nil
	}
	return 0, fmt.Errorf("ultra: no devicetree configuration table entry")
}

func (u UEFIFirmware) FindSMBIOS() (uint64, int, error) {
	if addr, ok := u.lookup(efiSMBIOS3TableGUID); ok {
		return addr, 64, nil
	}
	if addr, ok := u.lookup(efiSMBIOSTableGUID); ok {
		return addr, 32, nil
	}
	return 0, 0, fmt.Errorf("ultra: no SMBIOS configuration table entry")
}
