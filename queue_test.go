package vkframe

import (
	"testing"

	"github.com/andewx/vkframe/hal"
	"github.com/andewx/vkframe/hal/haltest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolve(t *testing.T, spec haltest.AdapterSpec) (QueueFamilySelection, error) {
	t.Helper()
	inst := haltest.NewInstance(spec)
	adapters, err := inst.EnumerateAdapters()
	require.NoError(t, err)
	return ResolveQueueFamilies(adapters[0], inst.NewSurface(640, 480))
}

func TestResolveQueueFamiliesDedicatedTransfer(t *testing.T) {
	sel, err := resolve(t, haltest.DefaultAdapter())
	require.NoError(t, err)

	assert.Equal(t, uint32(0), sel.Graphics.Index())
	assert.Equal(t, uint32(0), sel.Present.Index())
	assert.Equal(t, uint32(1), sel.Transfer.Index())
	assert.True(t, sel.DedicatedTransfer)
	assert.True(t, sel.SharedGraphicsPresent())
	assert.Equal(t, []uint32{0, 1}, sel.Distinct())
}

func TestResolveQueueFamiliesTransferFallsBackToGraphics(t *testing.T) {
	spec := haltest.DefaultAdapter()
	spec.Families = []hal.QueueFamily{{Flags: hal.QueueGraphics | hal.QueueTransfer, Count: 1}}

	sel, err := resolve(t, spec)
	require.NoError(t, err)

	assert.Equal(t, sel.Graphics, sel.Transfer)
	assert.False(t, sel.DedicatedTransfer)
	assert.Equal(t, []uint32{0}, sel.Distinct())
}

func TestResolveQueueFamiliesSeparatePresent(t *testing.T) {
	spec := haltest.DefaultAdapter()
	spec.Families = []hal.QueueFamily{
		{Flags: hal.QueueGraphics, Count: 1},
		{Flags: hal.QueueCompute, Count: 1},
		{Flags: hal.QueueTransfer, Count: 1},
	}
	spec.PresentFamilies = []uint32{1}

	sel, err := resolve(t, spec)
	require.NoError(t, err)

	assert.Equal(t, uint32(0), sel.Graphics.Index())
	assert.Equal(t, uint32(1), sel.Present.Index())
	assert.Equal(t, uint32(2), sel.Transfer.Index())
	assert.False(t, sel.SharedGraphicsPresent())
	assert.Equal(t, []uint32{0, 1, 2}, sel.Distinct())
}

func TestResolveQueueFamiliesMissingRoles(t *testing.T) {
	spec := haltest.DefaultAdapter()
	spec.Families = []hal.QueueFamily{{Flags: hal.QueueCompute | hal.QueueTransfer, Count: 1}}
	spec.PresentFamilies = []uint32{}

	sel, err := resolve(t, spec)
	var qerr *NoQueueFamilyError
	require.True(t, errors.As(err, &qerr))
	assert.Equal(t, []string{"graphics", "present"}, qerr.Missing)
	assert.False(t, sel.Complete())
	assert.Contains(t, err.Error(), "graphics, present")
}

func TestFamilyIndex(t *testing.T) {
	var f FamilyIndex
	assert.False(t, f.Found())
	assert.Equal(t, "unresolved", f.String())
	assert.Panics(t, func() { f.Index() })

	f = Family(3)
	assert.True(t, f.Found())
	assert.Equal(t, uint32(3), f.Index())
	assert.Equal(t, "3", f.String())
}
