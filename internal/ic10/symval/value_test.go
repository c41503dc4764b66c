package symval

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeviceSlotIsNotRenderableUntilLowered(t *testing.T) {
	slot := DeviceSlot("dGen", "IGasGenerator", Static(0))
	assert.False(t, slot.Renderable())
	assert.Panics(t, func() { slot.RenderAsIC10() })
}

func TestDeviceSlotEqualComparesPinTypeAndIndex(t *testing.T) {
	a := DeviceSlot("dGen", "IGasGenerator", Static(0))
	b := DeviceSlot("dGen", "IGasGenerator", Static(0))
	c := DeviceSlot("dGen", "IGasGenerator", Static(1))
	d := DeviceSlot("dOther", "IGasGenerator", Static(0))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
}

func TestDeviceSlotKindString(t *testing.T) {
	slot := DeviceSlot("dGen", "IGasGenerator", Static(0))
	assert.Equal(t, "DeviceSlot", slot.Kind.String())
}
