package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVendorTimeAcceptsVendorLayouts(t *testing.T) {
	cases := map[string]string{
		"compact offset": `"2024-03-10T09:15:00.000-0700"`,
		"rfc3339":        `"2024-03-10T16:15:00Z"`,
		"colon offset":   `"2024-03-10T09:15:00.123-07:00"`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var v VendorTime
			require.NoError(t, json.Unmarshal([]byte(raw), &v))
			assert.Equal(t, 16, v.UTC().Hour())
			assert.Equal(t, 15, v.UTC().Minute())
		})
	}
}

func TestVendorTimeRejectsGarbage(t *testing.T) {
	var v VendorTime
	assert.Error(t, json.Unmarshal([]byte(`"last tuesday"`), &v))
}

func TestVendorTimeNullIsZero(t *testing.T) {
	var v VendorTime
	require.NoError(t, json.Unmarshal([]byte(`null`), &v))
	assert.True(t, v.IsZero())
}

func TestBusinessDateAcceptsNumberAndString(t *testing.T) {
	var payload struct {
		A BusinessDate `json:"a"`
		B BusinessDate `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":20240115,"b":"20240116"}`), &payload))
	assert.Equal(t, BusinessDate(20240115), payload.A)
	assert.Equal(t, "20240116", payload.B.String())

	day, err := payload.A.Time(time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), day)
}

func TestBusinessDateRejectsShortValues(t *testing.T) {
	_, err := ParseBusinessDateValue("2024011")
	assert.Error(t, err)
}

func TestFlattenMenuItemsWalksNestedGroups(t *testing.T) {
	menus := []Menu{{
		GUID: "m1",
		MenuGroups: []MenuGroup{{
			GUID:      "g1",
			Name:      "Mains",
			MenuItems: []MenuItem{{GUID: "i1", Name: "Burger"}},
			MenuGroups: []MenuGroup{{
				GUID:      "g2",
				Name:      "Specials",
				MenuItems: []MenuItem{{GUID: "i2", Name: "Tacos"}},
			}},
		}},
	}, {
		GUID:       "m2",
		MenuGroups: []MenuGroup{{GUID: "g3", Name: "Drinks", MenuItems: []MenuItem{{GUID: "i3"}}}},
	}}

	items := FlattenMenuItems(menus)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"i1", "i2", "i3"}, []string{items[0].GUID, items[1].GUID, items[2].GUID})
	assert.Equal(t, "Specials", items[1].Group)
}

func TestConfigEntityKeepsUnknownFields(t *testing.T) {
	var entity ConfigEntity
	require.NoError(t, json.Unmarshal([]byte(`{"guid":"t1","name":"State tax","rate":8.25}`), &entity))
	assert.Equal(t, "t1", entity.GUID)
	assert.Equal(t, 8.25, entity.Extra["rate"])

	out, err := json.Marshal(entity)
	require.NoError(t, err)
	assert.JSONEq(t, `{"guid":"t1","name":"State tax","rate":8.25}`, string(out))
}
