package gpu

import "fmt"

// Slot is a positional kernel argument. Every slot maps to
// @group(0) @binding(slot) in the kernel source.
type Slot uint8

// The argument table shared with the kernel source. Slots 4-6 are bound by
// collaborators outside the context (camera and frame state).
const (
	SlotPixels Slot = iota
	SlotRandom
	SlotWidth
	SlotHeight
	SlotCamera
	SlotFrame
	SlotSamples
	SlotScene
	SlotIndices
	SlotCells

	NumSlots
)

// EntryPoint is the name of the kernel function extracted from the program.
const EntryPoint = "main"

// BindingType is the resource type a slot is declared with.
type BindingType uint8

const (
	BindingStorage BindingType = iota
	BindingReadOnlyStorage
	BindingUniform

	// BindingNone is reported for slots outside the argument table.
	BindingNone BindingType = 0xff
)

func (b BindingType) String() string {
	switch b {
	case BindingStorage:
		return "storage"
	case BindingReadOnlyStorage:
		return "read-only storage"
	case BindingUniform:
		return "uniform"
	case BindingNone:
		return "none"
	default:
		return fmt.Sprintf("binding(%d)", uint8(b))
	}
}

var slotNames = [NumSlots]string{
	"pixels", "random", "width", "height",
	"camera", "frame", "samples",
	"scene", "indices", "cells",
}

var slotBindings = [NumSlots]BindingType{
	SlotPixels:  BindingStorage,
	SlotRandom:  BindingReadOnlyStorage,
	SlotWidth:   BindingUniform,
	SlotHeight:  BindingUniform,
	SlotCamera:  BindingUniform,
	SlotFrame:   BindingUniform,
	SlotSamples: BindingUniform,
	SlotScene:   BindingReadOnlyStorage,
	SlotIndices: BindingReadOnlyStorage,
	SlotCells:   BindingReadOnlyStorage,
}

// String returns the variable name the kernel declares for the slot.
func (s Slot) String() string {
	if !s.Valid() {
		return fmt.Sprintf("slot(%d)", uint8(s))
	}
	return slotNames[s]
}

// Valid reports whether s is inside the argument table.
func (s Slot) Valid() bool { return s < NumSlots }

// Binding returns the declared resource type of the slot, or BindingNone
// outside the table.
func (s Slot) Binding() BindingType {
	if !s.Valid() {
		return BindingNone
	}
	return slotBindings[s]
}

// Reserved reports whether the slot is left to collaborators.
func (s Slot) Reserved() bool {
	return s == SlotCamera || s == SlotFrame || s == SlotSamples
}

// CoreSlots returns the slots bound by SetupBuffers, in binding order.
func CoreSlots() []Slot {
	return []Slot{SlotPixels, SlotRandom, SlotWidth, SlotHeight, SlotScene, SlotIndices, SlotCells}
}

// Layout returns the binding type of every slot, indexed by slot.
func Layout() []BindingType {
	out := make([]BindingType, NumSlots)
	copy(out, slotBindings[:])
	return out
}
