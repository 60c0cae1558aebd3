package vkframe

import (
	"fmt"
	"sort"

	"github.com/andewx/vkframe/hal"
)

// FamilyIndex is a queue family index that may be unresolved.
type FamilyIndex struct {
	index uint32
	found bool
}

func Family(index uint32) FamilyIndex { return FamilyIndex{index: index, found: true} }

func (f FamilyIndex) Found() bool { return f.found }

// Index returns the family index. It panics when the family is unresolved.
func (f FamilyIndex) Index() uint32 {
	if !f.found {
		panic("vkframe: unresolved queue family")
	}
	return f.index
}

func (f FamilyIndex) String() string {
	if !f.found {
		return "unresolved"
	}
	return fmt.Sprint(f.index)
}

// QueueFamilySelection holds the families used for graphics, presentation
// and transfer work. It is immutable once the device exists.
type QueueFamilySelection struct {
	Graphics FamilyIndex
	Present  FamilyIndex
	Transfer FamilyIndex
	// DedicatedTransfer is false when Transfer fell back to Graphics.
	DedicatedTransfer bool
}

// Complete reports whether the roles required for device creation resolved.
func (s QueueFamilySelection) Complete() bool {
	return s.Graphics.Found() && s.Present.Found()
}

// Distinct returns each resolved family index once, in ascending order.
func (s QueueFamilySelection) Distinct() []uint32 {
	seen := map[uint32]bool{}
	var out []uint32
	for _, f := range []FamilyIndex{s.Graphics, s.Present, s.Transfer} {
		if f.Found() && !seen[f.index] {
			seen[f.index] = true
			out = append(out, f.index)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SharedGraphicsPresent reports whether one family does both graphics and
// presentation, which allows exclusive swapchain sharing.
func (s QueueFamilySelection) SharedGraphicsPresent() bool {
	return s.Graphics == s.Present
}

// ResolveQueueFamilies scans the adapter's families. The first family with
// the graphics flag serves graphics, the first with transfer but without
// graphics serves transfer, and the first whose surface support query
// succeeds serves presentation. Transfer falls back to graphics.
func ResolveQueueFamilies(adapter hal.Adapter, surface hal.Surface) (QueueFamilySelection, error) {
	var sel QueueFamilySelection
	for i, fam := range adapter.QueueFamilies() {
		index := uint32(i)
		if !sel.Graphics.Found() && fam.Flags&hal.QueueGraphics != 0 {
			sel.Graphics = Family(index)
		}
		if !sel.Transfer.Found() && fam.Flags&hal.QueueTransfer != 0 && fam.Flags&hal.QueueGraphics == 0 {
			sel.Transfer = Family(index)
			sel.DedicatedTransfer = true
		}
		if !sel.Present.Found() {
			ok, err := adapter.SurfaceSupport(index, surface)
			if err == nil && ok {
				sel.Present = Family(index)
			}
		}
	}
	if !sel.Transfer.Found() {
		sel.Transfer = sel.Graphics
	}

	if !sel.Complete() {
		return sel, &NoQueueFamilyError{Missing: missingRoles(sel)}
	}
	return sel, nil
}
