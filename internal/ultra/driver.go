package ultra

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/ultraos/hyper/internal/asmjump"
	"github.com/ultraos/hyper/internal/cfg"
	"github.com/ultraos/hyper/internal/elfload"
	"github.com/ultraos/hyper/internal/fs"
	"github.com/ultraos/hyper/internal/handover"
	"github.com/ultraos/hyper/internal/memtype"
	"github.com/ultraos/hyper/internal/pagetable"
	"github.com/ultraos/hyper/internal/pmm"
	"github.com/ultraos/hyper/internal/videomode"
)

// Environment bundles the platform-specific seams Boot needs: the already-
// mounted filesystem table, the physical memory manager, the two distinct
// memory surfaces elfload/modules and pagetable write through, the firmware
// table finder, the available video modes, and the per-arch jump glue. A
// real build supplies these from the firmware layer; tests supply fakes.
type Environment struct {
	Filesystem   *fs.Table
	PMM          *pmm.PMM
	ELFMemory    elfload.Memory
	TableMemory  pagetable.Memory
	Firmware     Firmware
	NativeMode   videomode.Mode
	AvailableModes []videomode.Mode
	Origin       KernelOrigin
	Platform     Platform
	LoaderMajor  uint16
	LoaderMinor  uint16
	LoaderName   string
	Jumpers      map[elfload.Arch]asmjump.Jumper

	// FramebufferAddress is where firmware already placed (or mapped) the
	// selected video mode's backing store. Only read if a mode is selected.
	FramebufferAddress uint64
}

// Boot runs the full Ultra protocol driver over one selected loadable
// entry: load the kernel, build its page table, load modules, allocate a
// stack, query firmware tables, pick a video mode, assemble the attribute
// array, and jump. On success it never returns (Jump panics in place of a
// real mode switch); on any failure before the jump it returns an error.
func Boot(c *cfg.Config, entry cfg.LoadableEntry, env Environment) error {
	scope := entry.Scope()
	log := logrus.WithField("entry", entry.Name)

	protocol, ok, err := c.GetString(scope, "protocol")
	if err != nil {
		return err
	}
	if ok && protocol != "ultra" {
		return fmt.Errorf("ultra: entry %q: unsupported protocol %q", entry.Name, protocol)
	}

	// Step 1: resolve and open the kernel binary.
	binSpec, err := resolveBinary(c, scope)
	if err != nil {
		return err
	}
	binFile, err := fs.Open(env.Filesystem, binSpec.Path)
	if err != nil {
		return fmt.Errorf("ultra: opening binary %q: %w", binSpec.Path, err)
	}
	defer binFile.Close()
	log.WithField("size", humanize.Bytes(binFile.Size())).Info("opened kernel binary")

	higherHalfExclusive, _, err := c.GetBool(scope, "higher-half-exclusive")
	if err != nil {
		return err
	}
	kernelAsModule, _, err := c.GetBool(scope, "kernel-as-module")
	if err != nil {
		return err
	}

	ptSpec, err := resolvePageTable(c, scope)
	if err != nil {
		return err
	}

	// Step 2: peek the ELF header to learn the arch before placing anything.
	arch, _, err := elfload.DetectArch(binFile)
	if err != nil {
		return fmt.Errorf("ultra: reading ELF header: %w", err)
	}
	policy := archPolicyFor(arch)
	log.WithField("arch", arch).Info("derived arch policy")

	// Step 3: load the kernel at its chosen virtual/physical placement.
	info, err := elfload.Load(elfload.Spec{
		Binary:         binFile,
		UseVA:          true,
		AllocAnywhere:  binSpec.AllocateAnywhere,
		HigherHalfBase: policy.HigherHalfBase,
		BinaryCeiling:  policy.BinaryCeiling,
		MemoryType:     memTypeForKernel(kernelAsModule),
		PMM:            env.PMM,
		Memory:         env.ELFMemory,
	})
	if err != nil {
		return fmt.Errorf("ultra: loading kernel: %w", err)
	}
	log.WithFields(logrus.Fields{
		"entrypoint": fmt.Sprintf("%#x", info.EntrypointAddress),
		"phys_base":  fmt.Sprintf("%#x", info.PhysicalBase),
	}).Info("loaded kernel segments")

	// Step 4: build the page table.
	pt, err := buildPageTable(env.TableMemory, info.Arch, ptSpec, env.PMM,
		policy.DirectMapBase, higherHalfExclusive, policy.HigherHalfBase, binSpec.AllocateAnywhere)
	if err != nil {
		return fmt.Errorf("ultra: building page table: %w", err)
	}

	// Step 5: load modules.
	moduleSpecs, err := resolveModules(c, scope)
	if err != nil {
		return err
	}
	modules, err := loadModules(env.Filesystem, env.PMM, env.ELFMemory, policy.BinaryCeiling, moduleSpecs)
	if err != nil {
		return err
	}
	log.WithField("count", len(modules)).Info("loaded modules")

	// Step 6: allocate the stack.
	stackSpec, err := resolveStack(c, scope)
	if err != nil {
		return err
	}
	stackTop, err := allocateStack(env.PMM, policy.BinaryCeiling, stackSpec)
	if err != nil {
		return err
	}

	// Step 7: query firmware tables, best-effort.
	tables, err := QueryTables(env.Firmware)
	if err != nil {
		log.WithError(err).Warn("some firmware tables were not found")
	}

	// Step 8: set the video mode last, since it disables legacy TTY logging.
	videoReq, videoWanted, err := resolveVideoMode(c, scope)
	if err != nil {
		return err
	}
	var mode videomode.Mode
	if videoWanted {
		mode, err = videomode.Select(env.NativeMode, env.AvailableModes, videoReq)
		if err != nil {
			return fmt.Errorf("ultra: selecting video mode: %w", err)
		}
	}

	// Step 9: release config and prepare handover.
	cmdline, _, err := c.GetString(scope, "cmdline")
	if err != nil {
		return err
	}

	directMapBase := policy.DirectMapBase
	flags := policy.HandoverFlags
	if higherHalfExclusive {
		flags |= uint32(handover.HigherHalfOnly)
	}
	hi := handover.Info{
		Entrypoint:    info.EntrypointAddress,
		Stack:         stackTop,
		PtRoot:        pt.Root(),
		Arg0:          0, // filled in once the attribute array is placed
		Arg1:          handover.UltraMagic,
		DirectMapBase: directMapBase,
		Flags:         flags,
	}
	if err := handover.PrepareFor(&hi); err != nil {
		return fmt.Errorf("ultra: preparing handover: %w", err)
	}

	// Step 10+11: assemble and place the attribute array.
	arg0, err := assembleAttributes(env.PMM, env.ELFMemory, assembleInputs{
		platform:      env.Platform,
		loaderMajor:   env.LoaderMajor,
		loaderMinor:   env.LoaderMinor,
		loaderName:    env.LoaderName,
		rsdp:          tables.RSDP,
		origin:        env.Origin,
		kernel:        info,
		modules:       modules,
		cmdline:       cmdline,
		videoWanted:   videoWanted,
		mode:          mode,
		framebufferAt: env.FramebufferAddress,
		binaryCeiling: policy.BinaryCeiling,
	})
	if err != nil {
		return fmt.Errorf("ultra: assembling attribute array: %w", err)
	}
	hi.Arg0 = arg0

	jumper, ok := env.Jumpers[info.Arch]
	if !ok {
		return fmt.Errorf("ultra: no jump glue registered for arch %s", info.Arch)
	}

	// Step 12: jump. A successful Jumper never returns.
	return jumper.Jump(hi)
}

func memTypeForKernel(kernelAsModule bool) memtype.Type {
	if kernelAsModule {
		return memtype.Type(MemoryTypeModule)
	}
	return memtype.Type(MemoryTypeKernelBinary)
}
