package catalogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDecodesDescriptorArray(t *testing.T) {
	data := []byte(`[
		{
			"prefabName": "ItemKitLight",
			"prefabHash": 123456,
			"modes": {"0": "Idle", "1": "Running"},
			"logic": {"logicTypes": ["On", "Power"], "logicSlotTypes": ["Occupant"]}
		}
	]`)
	descriptors, err := Load(data)
	require.NoError(t, err)
	require.Len(t, descriptors, 1)
	d := descriptors[0]
	assert.Equal(t, "ItemKitLight", d.PrefabName)
	assert.Equal(t, int64(123456), d.PrefabHash)
	assert.Equal(t, "Idle", d.Modes["0"])
	assert.Equal(t, []string{"On", "Power"}, d.Logic.LogicTypes)
	assert.Equal(t, []string{"Occupant"}, d.Logic.LogicSlotTypes)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	_, err := Load([]byte(`not json`))
	assert.Error(t, err)
}

func TestSanitiseIdentifierStripsAndCapitalises(t *testing.T) {
	assert.Equal(t, "WallLight", sanitiseIdentifier("Wall Light"))
	assert.Equal(t, "X3Printer", sanitiseIdentifier("3Printer"))
	assert.Equal(t, "", sanitiseIdentifier("###"))
	assert.Equal(t, "", sanitiseIdentifier(""))
}

func TestRenderModeEnumOrdersByIndexAndBuildsString(t *testing.T) {
	modes := map[string]string{"1": "Running", "0": "Idle"}
	text, ok := renderModeEnum("Printer", modes)
	require.True(t, ok)
	assert.Contains(t, text, "type PrinterMode int")
	assert.Contains(t, text, "PrinterModeIdle PrinterMode = 0")
	assert.Contains(t, text, "PrinterModeRunning PrinterMode = 1")
	assert.Contains(t, text, `return "Idle"`)

	// Idle (index 0) must be declared before Running (index 1).
	idleAt := indexOf(text, "PrinterModeIdle PrinterMode")
	runningAt := indexOf(text, "PrinterModeRunning PrinterMode")
	assert.Less(t, idleAt, runningAt)
}

func TestRenderModeEnumRejectsNonNumericKey(t *testing.T) {
	_, ok := renderModeEnum("Printer", map[string]string{"abc": "Idle"})
	assert.False(t, ok)
}

func TestRenderModeEnumRejectsCollidingDisplayNames(t *testing.T) {
	_, ok := renderModeEnum("Printer", map[string]string{"0": "A!", "1": "A#"})
	assert.False(t, ok)
}

func TestGenerateEmitsInterfaceAndConstsForEveryDescriptor(t *testing.T) {
	descriptors := []Descriptor{
		{
			PrefabName: "ItemKitLight",
			PrefabHash: 1,
			Logic:      Logic{LogicTypes: []string{"On"}},
		},
		{
			PrefabName: "Printer",
			PrefabHash: 2,
			Modes:      map[string]string{"0": "Idle", "1": "Running"},
		},
	}
	text := Generate("devices", descriptors, nil)
	assert.Contains(t, text, "package devices")
	assert.Contains(t, text, "type ItemKitLight interface")
	assert.Contains(t, text, `ItemKitLightLogicTypeOn = "On"`)
	assert.Contains(t, text, "type Printer interface")
	assert.Contains(t, text, "type PrinterMode int")
}

func TestGenerateSkipsModeEnumOnNonIdentifierKeyWithoutFailing(t *testing.T) {
	descriptors := []Descriptor{
		{
			PrefabName: "Printer",
			PrefabHash: 2,
			Modes:      map[string]string{"abc": "Idle"},
		},
	}
	text := Generate("devices", descriptors, nil)
	assert.Contains(t, text, "type Printer interface")
	assert.NotContains(t, text, "PrinterMode")
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
