package core

import (
	"fmt"

	"github.com/gekko3d/tunnel"

	"github.com/google/uuid"
)

type Role int

const (
	RoleConstruct Role = iota
	RoleSurfaceA
	RoleSurfaceB
	RoleLine
	RoleDebug
	roleCount
)

var roleKinds = [roleCount]ProgramKind{
	RoleConstruct: ProgramConstruct,
	RoleSurfaceA:  ProgramSurface,
	RoleSurfaceB:  ProgramSurface,
	RoleLine:      ProgramLine,
	RoleDebug:     ProgramDebug,
}

var roleNames = [roleCount]string{"construct", "surface-a", "surface-b", "line", "debug"}

func (r Role) String() string {
	if r >= 0 && r < roleCount {
		return roleNames[r]
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Binding records that a program slot samples a specific buffer generation.
type Binding struct {
	Role       Role
	Slot       string
	Target     uuid.UUID
	Generation uint64
}

// KernelSet owns the program instances. Programs survive rebuilds; only
// missing or released ones are recreated.
type KernelSet struct {
	dev      Device
	log      tunnel.Logger
	programs [roleCount]Program
	bindings []Binding
}

func NewKernelSet(dev Device, log tunnel.Logger) *KernelSet {
	return &KernelSet{dev: dev, log: tunnel.OrNop(log)}
}

// Ensure creates every missing program. Failing to create the debug program
// only disables the overlay.
func (k *KernelSet) Ensure() error {
	for role := Role(0); role < roleCount; role++ {
		if alive(k.programs[role]) {
			continue
		}
		p, err := k.dev.CreateProgram(roleKinds[role])
		if err != nil {
			if role == RoleDebug {
				k.log.Warnf("debug program unavailable, overlay disabled: %v", err)
				k.programs[role] = nil
				continue
			}
			return fmt.Errorf("%s program: %w: %w", role, ErrResourceAllocation, err)
		}
		if k.programs[role] != nil {
			k.log.Warnf("%s program was released externally, recreated", role)
		}
		k.programs[role] = p
	}
	return nil
}

// Bind points the surface and line programs at b. Any earlier binding
// records are discarded.
func (k *KernelSet) Bind(b *Buffers) {
	k.bindings = k.bindings[:0]
	k.bind(RoleSurfaceA, SlotPosition, b.Position, b.Generation)
	k.bind(RoleSurfaceB, SlotPosition, b.Position, b.Generation)
	k.bind(RoleLine, SlotPosition, b.Position, b.Generation)
	k.bind(RoleSurfaceA, SlotNormal, b.NormalA, b.Generation)
	k.bind(RoleSurfaceB, SlotNormal, b.NormalB, b.Generation)
}

func (k *KernelSet) bind(role Role, slot string, t Target, gen uint64) {
	k.programs[role].SetTexture(slot, t)
	k.bindings = append(k.bindings, Binding{Role: role, Slot: slot, Target: t.ID(), Generation: gen})
}

func (k *KernelSet) Bindings() []Binding {
	return append([]Binding(nil), k.bindings...)
}

// BoundTo reports whether every binding refers to b and the programs still
// hold those textures.
func (k *KernelSet) BoundTo(b *Buffers) bool {
	if b == nil || len(k.bindings) == 0 {
		return false
	}
	for _, rec := range k.bindings {
		if rec.Generation != b.Generation {
			return false
		}
		p := k.programs[rec.Role]
		if !alive(p) {
			return false
		}
		t := p.Texture(rec.Slot)
		if t == nil || t.ID() != rec.Target {
			return false
		}
	}
	return true
}

// Alive reports whether every program the compute and draw steps need exists.
func (k *KernelSet) Alive() bool {
	for role := Role(0); role < roleCount; role++ {
		if role == RoleDebug {
			continue
		}
		if !alive(k.programs[role]) {
			return false
		}
	}
	return true
}

func (k *KernelSet) Program(role Role) Program {
	return k.programs[role]
}

func (k *KernelSet) Construct() Program { return k.programs[RoleConstruct] }

// Debug returns the debug program, or nil when it is unavailable.
func (k *KernelSet) Debug() Program {
	if !alive(k.programs[RoleDebug]) {
		return nil
	}
	return k.programs[RoleDebug]
}

// Materials returns the draw programs in submesh order: surface A, surface B, line.
func (k *KernelSet) Materials() []Program {
	return []Program{k.programs[RoleSurfaceA], k.programs[RoleSurfaceB], k.programs[RoleLine]}
}

func (k *KernelSet) Release() {
	for role, p := range k.programs {
		if p != nil {
			p.Release()
		}
		k.programs[role] = nil
	}
	k.bindings = nil
}
