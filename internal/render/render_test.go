package render

import (
	"errors"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/roman-kulish/fsm-monitor/internal/fsm"
	"github.com/roman-kulish/fsm-monitor/internal/session"
)

func mustLayout(t *testing.T, k int) *fsm.Layout {
	t.Helper()

	layout, err := fsm.NewLayout(k)
	if err != nil {
		t.Fatalf("Failed to create layout: %v", err)
	}
	return layout
}

func testSamples(n, k int) []fsm.Sample {
	samples := make([]fsm.Sample, n)
	for i := range samples {
		samples[i] = fsm.Sample{
			HostTime: float64(i) * 0.1,
			ArrayA:   make([]float64, k),
			ArrayB:   make([]float64, k),
		}
		for j := 0; j < k; j++ {
			samples[i].ArrayA[j] = 0.001 * float64(i+j+1)
			samples[i].ArrayB[j] = 0.002 * float64(i+j+1)
		}
	}
	return samples
}

func TestHistory_Limit(t *testing.T) {
	h := NewHistory(fsm.Channels21, 5)

	h.Append(testSamples(3, fsm.Channels21))
	h.Append(testSamples(4, fsm.Channels21))
	h.Append(testSamples(1, fsm.Channels28)) // skipped

	if h.Len() != 5 {
		t.Fatalf("Expected 5 samples, got %d", h.Len())
	}

	// the oldest two samples of the first batch are gone
	expected := []float64{0.2, 0, 0.1, 0.2, 0.3}
	times := h.Times()
	for i := range expected {
		if math.Abs(times[i]-expected[i]) > 1e-9 {
			t.Errorf("Time %d: expected %f, got %f", i, expected[i], times[i])
		}
	}

	if series := h.Series(fsm.ArrayB, 0); len(series) != 5 || math.Abs(series[0]-0.006) > 1e-9 {
		t.Errorf("Unexpected array B series: %v", series)
	}
}

func TestCycle(t *testing.T) {
	tests := []struct {
		group, delta, n, expected int
	}{
		{0, 1, 7, 1},
		{6, 1, 7, 0},
		{0, -1, 7, 6},
		{3, -1, 7, 2},
	}

	for _, tt := range tests {
		if got := cycle(tt.group, tt.delta, tt.n); got != tt.expected {
			t.Errorf("cycle(%d, %d, %d): expected %d, got %d", tt.group, tt.delta, tt.n, tt.expected, got)
		}
	}
}

func TestPalette(t *testing.T) {
	colors := Palette(ClassicTheme, 3)
	if len(colors) != 3 {
		t.Fatalf("Expected 3 colors, got %d", len(colors))
	}
	if colors[0] == colors[1] || colors[1] == colors[2] {
		t.Errorf("Expected distinct colors, got %v", colors)
	}

	// hue 240 is blue
	if c := colors[0]; c.B <= c.R || c.B <= c.G {
		t.Errorf("Expected first classic color to be blue, got %v", c)
	}

	// hue 0 is red
	if c := colors[2]; c.R <= c.G || c.R <= c.B {
		t.Errorf("Expected last classic color to be red, got %v", c)
	}

	if _, err := ParseColorTheme("rainbow"); err == nil {
		t.Error("Expected error for unknown theme")
	}
}

func TestPalette_Themes(t *testing.T) {
	tests := []struct {
		theme    ColorTheme
		dominant func(c color.RGBA) bool
	}{
		{GrayscaleTheme, func(c color.RGBA) bool { return c.R == c.G && c.G == c.B }},
		{JungleTheme, func(c color.RGBA) bool { return c.G >= c.R && c.G > c.B }},
		{MarineTheme, func(c color.RGBA) bool { return c.B >= c.G && c.B > c.R }},
	}

	for _, tt := range tests {
		t.Run(string(tt.theme), func(t *testing.T) {
			for i, c := range Palette(tt.theme, 5) {
				if c.A != 0xff {
					t.Errorf("Expected opaque color %d, got alpha %d", i, c.A)
				}
				if !tt.dominant(c) {
					t.Errorf("Unexpected color %d for %s: %v", i, tt.theme, c)
				}
			}
		})
	}

	if colors := Palette(ClassicTheme, 1); len(colors) != 1 || colors[0] != Palette(ClassicTheme, 3)[0] {
		t.Errorf("Expected a single color palette to start the theme, got %v", colors)
	}
}

func TestNiceStep(t *testing.T) {
	tests := []struct {
		span     float64
		pixels   int
		expected float64
	}{
		{10, 800, 1},
		{10, 400, 2},
		{0.003, 800, 0.0005},
		{95, 160, 50},
	}

	for _, tt := range tests {
		got := niceStep(tt.span, tt.pixels)
		if math.Abs(got-tt.expected) > 1e-12 {
			t.Errorf("niceStep(%g, %d): expected %g, got %g", tt.span, tt.pixels, tt.expected, got)
		}
	}
}

func TestChart_Draw(t *testing.T) {
	for _, scale := range []Scale{ScaleLinear, ScaleLog} {
		t.Run(string(scale), func(t *testing.T) {
			layout := mustLayout(t, fsm.Channels21)
			chart, err := NewChart(layout, "", ChartConfig{Width: 600, Height: 400, Scale: scale})
			if err != nil {
				t.Fatalf("NewChart failed: %v", err)
			}

			chart.Render(session.Update{Appended: testSamples(50, fsm.Channels21), Total: 50})

			img, err := chart.Draw()
			if err != nil {
				t.Fatalf("Draw failed: %v", err)
			}
			if b := img.Bounds(); b.Dx() != 600 || b.Dy() != 400 {
				t.Errorf("Expected 600x400 image, got %dx%d", b.Dx(), b.Dy())
			}

			// every photodiode line is drawn in its own color
			for pd, c := range chart.colors {
				if !containsColor(img, c) {
					t.Errorf("PD%d line not found", pd+1)
				}
			}
		})
	}
}

func containsColor(img *image.RGBA, c color.RGBA) bool {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y) == c {
				return true
			}
		}
	}
	return false
}

func TestChart_InvalidSelection(t *testing.T) {
	layout := mustLayout(t, fsm.Channels21)

	if _, err := NewChart(layout, "", ChartConfig{Selection: Selection{A: 7}}); err == nil {
		t.Error("Expected error for out of range selection")
	}

	chart, err := NewChart(layout, "", ChartConfig{})
	if err != nil {
		t.Fatalf("NewChart failed: %v", err)
	}
	if err = chart.SetSelection(Selection{A: 6, B: 6}); err != nil {
		t.Errorf("Expected LED OFF group to be selectable, got %v", err)
	}
	if err = chart.SetSelection(Selection{B: -1}); err == nil {
		t.Error("Expected error for negative selection")
	}
}

func TestChart_RenderThrottle(t *testing.T) {
	layout := mustLayout(t, fsm.Channels21)
	path := filepath.Join(t.TempDir(), "snapshot.png")

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	chart, err := NewChart(layout, path, ChartConfig{Width: 400, Height: 300, Interval: time.Second},
		WithChartClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewChart failed: %v", err)
	}

	chart.Render(session.Update{Appended: testSamples(2, fsm.Channels21), Total: 2})
	if _, err = os.Stat(path); err != nil {
		t.Fatalf("Expected snapshot to be written: %v", err)
	}

	if err = os.Remove(path); err != nil {
		t.Fatalf("Failed to remove snapshot: %v", err)
	}

	now = now.Add(500 * time.Millisecond)
	chart.Render(session.Update{Total: 2})
	if _, err = os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected no snapshot within the interval, got %v", err)
	}

	chart.Render(session.Update{Total: 2, Final: true})
	if _, err = os.Stat(path); err != nil {
		t.Errorf("Expected final snapshot to be written: %v", err)
	}
}

func newTestModel(t *testing.T) (dashboardModel, *Dashboard, *[]Selection) {
	t.Helper()

	var selections []Selection
	d := NewDashboard("FSM Monitor", mustLayout(t, fsm.Channels21),
		WithWindow(10),
		WithSelectionHandler(func(s Selection) { selections = append(selections, s) }))
	return d.model(), d, &selections
}

func key(s string) tea.KeyMsg {
	if s == "ctrl+c" {
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestDashboard_SelectGroups(t *testing.T) {
	m, _, selections := newTestModel(t)

	steps := []struct {
		key      string
		expected Selection
	}{
		{"a", Selection{A: 1}},
		{"a", Selection{A: 2}},
		{"A", Selection{A: 1}},
		{"B", Selection{A: 1, B: 6}},
		{"b", Selection{A: 1, B: 0}},
		{"x", Selection{A: 1, B: 0}},
	}

	var model tea.Model = m
	for _, step := range steps {
		model, _ = model.Update(key(step.key))
		if got := model.(dashboardModel).selection; got != step.expected {
			t.Errorf("After %q: expected %+v, got %+v", step.key, step.expected, got)
		}
	}

	if len(*selections) != 5 {
		t.Errorf("Expected 5 selection changes, got %d", len(*selections))
	}
	if !strings.Contains(model.View(), "LED B: 784 nm") {
		t.Errorf("Expected selected group in view:\n%s", model.View())
	}
}

func TestDashboard_Quit(t *testing.T) {
	for _, k := range []string{"q", "ctrl+c"} {
		t.Run(k, func(t *testing.T) {
			m, d, _ := newTestModel(t)

			model, cmd := m.Update(key(k))
			if cmd == nil {
				t.Fatal("Expected quit command")
			}
			if !model.(dashboardModel).quitting {
				t.Error("Expected model to be quitting")
			}

			select {
			case <-d.Done():
			default:
				t.Error("Expected stop signal")
			}
		})
	}
}

func TestDashboard_View(t *testing.T) {
	m, d, _ := newTestModel(t)

	d.Render(session.Update{
		Appended: testSamples(20, fsm.Channels21),
		Total:    20,
		Stats:    session.Stats{Frames: 21, Decoded: 20, DecodeErrors: 1},
	})

	var model tea.Model = m
	model, _ = model.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	model, _ = model.Update(refreshMsg{total: 20, stats: session.Stats{Frames: 21, Decoded: 20, DecodeErrors: 1}})

	view := model.View()
	for _, expected := range []string{"Samples:", "20", "Decode errors: 1", "Array A", "Array B", "PD3", "mean"} {
		if !strings.Contains(view, expected) {
			t.Errorf("Expected %q in view:\n%s", expected, view)
		}
	}

	if d.History().Len() != 10 {
		t.Errorf("Expected window of 10 samples, got %d", d.History().Len())
	}
}

func TestSparkline(t *testing.T) {
	if got := sparkline([]float64{0, 7, 3.5}, 10); got != "▁█▄" {
		t.Errorf("Expected ▁█▄, got %s", got)
	}
	if got := sparkline([]float64{1, 1, 1, 1}, 2); got != "▁▁" {
		t.Errorf("Expected ▁▁, got %s", got)
	}
}
