package fsm

import "testing"

func TestLayout_ColumnNames(t *testing.T) {
	testCases := []struct {
		channels int
		expected map[int]string
	}{
		{
			channels: Channels21,
			expected: map[int]string{
				0:  HostTimeColumn,
				1:  DeviceTimeColumn,
				2:  "Array A W1 PD1",
				4:  "Array A W1 PD3",
				5:  "Array A W2 PD1",
				19: "Array A W6 PD3",
				20: "Array A LED OFF PD1",
				22: "Array A LED OFF PD3",
				23: "Array B W1 PD1",
				43: "Array B LED OFF PD3",
			},
		},
		{
			channels: Channels28,
			expected: map[int]string{
				21: "Array A W7 PD2",
				23: "Array A LED OFF PD1",
				25: "Array A LED OFF PD3",
				26: "Array A AUX1",
				29: "Array A AUX4",
				30: "Array B W1 PD1",
				53: "Array B LED OFF PD3",
				57: "Array B AUX4",
			},
		},
	}

	for _, tc := range testCases {
		layout, err := NewLayout(tc.channels)
		if err != nil {
			t.Fatalf("Failed to create layout: %v", err)
		}

		names := layout.ColumnNames()
		if len(names) != 2+2*tc.channels {
			t.Fatalf("K=%d: expected %d columns, got %d", tc.channels, 2+2*tc.channels, len(names))
		}

		for i, name := range tc.expected {
			if names[i] != name {
				t.Errorf("K=%d column %d: expected %q, got %q", tc.channels, i, name, names[i])
			}
		}
	}
}

func TestLayout_Groups(t *testing.T) {
	layout, err := NewLayout(Channels21)
	if err != nil {
		t.Fatalf("Failed to create layout: %v", err)
	}

	groups := layout.Groups()
	if len(groups) != 7 || groups[0] != "784 nm" || groups[6] != LEDOff {
		t.Errorf("Unexpected groups: %v", groups)
	}

	if idx := layout.Index(6, 2); idx != 20 {
		t.Errorf("Expected LED-off PD3 at position 20, got %d", idx)
	}

	if _, err = NewLayout(Channels28, "a", "b"); err == nil {
		t.Error("Expected error for wrong number of wavelength labels")
	}

	custom, err := NewLayout(Channels28, "1", "2", "3", "4", "5", "6", "7")
	if err != nil {
		t.Fatalf("Failed to create layout with custom labels: %v", err)
	}
	if custom.NumGroups() != 8 || custom.Aux() != 4 {
		t.Errorf("Expected 8 groups and 4 auxiliary positions, got %d/%d", custom.NumGroups(), custom.Aux())
	}

	if layout.Aux() != 0 {
		t.Errorf("Expected no auxiliary positions for K=21, got %d", layout.Aux())
	}
}
