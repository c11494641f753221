package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The vendor emits timestamps with and without a colon in the offset and with
// a variable number of fractional digits.
var vendorTimeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999Z07:00",
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
}

// VendorTime is a timestamp decoded from a vendor payload.
type VendorTime struct {
	time.Time
}

func ParseVendorTime(raw string) (VendorTime, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return VendorTime{}, nil
	}
	for _, layout := range vendorTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return VendorTime{Time: t}, nil
		}
	}
	return VendorTime{}, fmt.Errorf("unrecognised vendor timestamp %q", raw)
}

func (v *VendorTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*v = VendorTime{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("vendor timestamp: %w", err)
	}
	parsed, err := ParseVendorTime(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v VendorTime) MarshalJSON() ([]byte, error) {
	if v.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(v.Format("2006-01-02T15:04:05.000Z07:00"))
}

// BusinessDate is the vendor's compact yyyyMMdd day. It arrives as a JSON
// number in order payloads and as a string in some labor payloads.
type BusinessDate int

func ParseBusinessDateValue(raw string) (BusinessDate, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), "-", "")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || len(raw) != 8 {
		return 0, fmt.Errorf("invalid business date %q", raw)
	}
	return BusinessDate(n), nil
}

func (d *BusinessDate) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*d = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, err := ParseBusinessDateValue(raw)
		if err != nil {
			return err
		}
		*d = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid business date: %w", err)
	}
	*d = BusinessDate(n)
	return nil
}

func (d BusinessDate) String() string {
	if d == 0 {
		return ""
	}
	return fmt.Sprintf("%08d", int(d))
}

// Time returns midnight of the business date in loc.
func (d BusinessDate) Time(loc *time.Location) (time.Time, error) {
	if d == 0 {
		return time.Time{}, fmt.Errorf("empty business date")
	}
	return time.ParseInLocation("20060102", d.String(), loc)
}

func (c *ConfigEntity) UnmarshalJSON(data []byte) error {
	fields := make(map[string]any)
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	type plain ConfigEntity
	var head plain
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	delete(fields, "guid")
	delete(fields, "name")
	delete(fields, "entityType")
	head.Extra = fields
	*c = ConfigEntity(head)
	return nil
}

func (c ConfigEntity) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Extra)+3)
	for k, v := range c.Extra {
		out[k] = v
	}
	out["guid"] = c.GUID
	if c.Name != "" {
		out["name"] = c.Name
	}
	if c.EntityType != "" {
		out["entityType"] = c.EntityType
	}
	return json.Marshal(out)
}
