package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/roman-kulish/fsm-monitor/internal/fsm"
	"github.com/roman-kulish/fsm-monitor/internal/session"
)

const (
	dpi            = 72.0
	fontSize       = 12.0
	tickMarkSize   = 5
	pixelsPerLabel = 80.0

	defaultWidth    = 1200
	defaultHeight   = 800
	defaultInterval = time.Second

	// Default border sizes in pixels
	defaultTopBorder    = 30
	defaultLeftBorder   = 90
	defaultBottomBorder = 30
	defaultRightBorder  = 20
	panelGap            = 50
)

// Scale is the Y axis scale of a chart.
type Scale string

const (
	ScaleLinear Scale = "linear"
	ScaleLog    Scale = "log"
)

// ParseScale validates a scale name, an empty name selects ScaleLinear.
func ParseScale(s string) (Scale, error) {
	switch sc := Scale(s); sc {
	case "":
		return ScaleLinear, nil
	case ScaleLinear, ScaleLog:
		return sc, nil
	default:
		return "", fmt.Errorf("unsupported plot style '%s'", s)
	}
}

// BorderConfig defines the sizes of white space around the panels
type BorderConfig struct {
	Top    int // Space for panel titles
	Left   int // Space for the value scale
	Bottom int // Space for the time scale
	Right  int // Right padding
}

// ChartConfig holds all configuration options for chart snapshots
type ChartConfig struct {
	Width      int           // Image width in pixels
	Height     int           // Image height in pixels
	Scale      Scale         // Y axis scale
	FontSize   float64       // Font size in points
	ColorTheme ColorTheme    // Colors of the photodiode series
	Interval   time.Duration // Minimum time between two snapshots, the final one is always written
	Selection  Selection     // LED groups plotted for arrays A and B

	BorderConfig BorderConfig
}

// WithChartLogger sets the logger for the chart
func WithChartLogger(logger *slog.Logger) func(c *Chart) {
	return func(c *Chart) {
		c.logger = logger.With(slog.String("snapshot", c.path))
	}
}

// WithChartClock overrides time.Now for snapshot throttling.
func WithChartClock(now func() time.Time) func(c *Chart) {
	return func(c *Chart) {
		c.now = now
	}
}

// Chart draws PNG snapshots of the selected LED groups of arrays A and B: one
// panel per array, one line per photodiode, over host time.
type Chart struct {
	config  ChartConfig
	layout  *fsm.Layout
	history *History
	path    string
	colors  []color.RGBA

	font *truetype.Font
	face font.Face

	mu        sync.Mutex
	selection Selection

	last   time.Time
	now    func() time.Time
	logger *slog.Logger
}

// NewChart creates a chart writing snapshots to path on Render. An empty path
// disables writing, Draw and WritePNG can still be used.
func NewChart(layout *fsm.Layout, path string, config ChartConfig, options ...func(c *Chart)) (*Chart, error) {
	// Set defaults for zero values
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
	}
	if config.Scale == "" {
		config.Scale = ScaleLinear
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.Interval == 0 {
		config.Interval = defaultInterval
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	if err := validSelection(layout, config.Selection); err != nil {
		return nil, err
	}

	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	c := Chart{
		config:  config,
		layout:  layout,
		history: NewHistory(layout.Channels(), 0),
		path:    path,
		colors:  Palette(config.ColorTheme, fsm.PhotodiodesPerGroup),

		selection: config.Selection,

		font: parsedFont,
		face: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&c)
	}

	return &c, nil
}

func validSelection(layout *fsm.Layout, selection Selection) error {
	if selection.A < 0 || selection.A >= layout.NumGroups() ||
		selection.B < 0 || selection.B >= layout.NumGroups() {
		return fmt.Errorf("invalid group selection %+v, %d groups available", selection, layout.NumGroups())
	}
	return nil
}

// SetSelection changes the plotted LED groups.
func (c *Chart) SetSelection(selection Selection) error {
	if err := validSelection(c.layout, selection); err != nil {
		return err
	}

	c.mu.Lock()
	c.selection = selection
	c.mu.Unlock()
	return nil
}

// Selection returns the plotted LED groups.
func (c *Chart) Selection() Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection
}

// History returns the samples the chart draws from.
func (c *Chart) History() *History {
	return c.history
}

// Render records the appended samples and writes a snapshot at most once per
// interval, and always on the final update.
func (c *Chart) Render(update session.Update) {
	c.history.Append(update.Appended)

	if c.path == "" {
		return
	}

	now := c.now()
	if !update.Final && now.Sub(c.last) < c.config.Interval {
		return
	}
	c.last = now

	if err := c.WritePNG(c.path); err != nil {
		c.logger.Error("failed to write snapshot", slog.Any("error", err))
	}
}

// WritePNG draws the chart and writes it to path atomically.
func (c *Chart) WritePNG(path string) (err error) {
	img, err := c.Draw()
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err = png.Encode(f, img); err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}

	return os.Rename(f.Name(), path)
}

// Draw renders the current history.
func (c *Chart) Draw() (*image.RGBA, error) {
	img := image.NewRGBA(image.Rect(0, 0, c.config.Width, c.config.Height))

	// Fill with white background
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	borders := c.config.BorderConfig
	panelHeight := (c.config.Height - borders.Top - borders.Bottom - panelGap) / 2
	if panelHeight <= 0 || c.config.Width-borders.Left-borders.Right <= 0 {
		return nil, fmt.Errorf("chart size %dx%d is too small", c.config.Width, c.config.Height)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(c.font)
	ctx.SetFontSize(c.config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetClip(img.Bounds())
	ctx.SetDst(img)

	times := c.history.Times()
	selection := c.Selection()

	for i, array := range []fsm.Array{fsm.ArrayA, fsm.ArrayB} {
		top := borders.Top + i*(panelHeight+panelGap)
		area := image.Rect(borders.Left, top, c.config.Width-borders.Right, top+panelHeight)

		group := selection.Group(array)
		series := make([][]float64, fsm.PhotodiodesPerGroup)
		for pd := range series {
			series[pd] = c.history.Series(array, c.layout.Index(group, pd))
		}

		p := panel{
			chart:  c,
			ctx:    ctx,
			img:    img,
			area:   area,
			title:  fmt.Sprintf("Array %s: %s", array, c.layout.Groups()[group]),
			times:  times,
			series: series,
		}
		if err := p.draw(); err != nil {
			return nil, fmt.Errorf("drawing array %s: %w", array, err)
		}
	}

	return img, nil
}

// panel is one array plot of a chart.
type panel struct {
	chart  *Chart
	ctx    *freetype.Context
	img    *image.RGBA
	area   image.Rectangle
	title  string
	times  []float64
	series [][]float64
}

func (p *panel) draw() error {
	scale := p.chart.config.Scale

	xMin, xMax := axisRange(p.times, ScaleLinear)
	yMin, yMax := axisRange(concat(p.series), scale)

	p.drawFrame()

	if err := p.drawText(p.title, p.area.Min.X, p.area.Min.Y-8, color.Black); err != nil {
		return fmt.Errorf("drawing title: %w", err)
	}
	if err := p.drawLegend(); err != nil {
		return fmt.Errorf("drawing legend: %w", err)
	}
	if err := p.drawTimeScale(xMin, xMax); err != nil {
		return fmt.Errorf("drawing time scale: %w", err)
	}
	if err := p.drawValueScale(yMin, yMax, scale); err != nil {
		return fmt.Errorf("drawing value scale: %w", err)
	}

	if len(p.times) == 0 {
		return p.drawText("No data", p.area.Min.X+10, p.area.Min.Y+20, color.Gray{Y: 0x80})
	}

	for pd, values := range p.series {
		p.drawSeries(values, xMin, xMax, yMin, yMax, scale, p.chart.colors[pd])
	}

	return nil
}

func (p *panel) drawFrame() {
	r := p.area
	for x := r.Min.X; x <= r.Max.X; x++ {
		p.img.Set(x, r.Min.Y, color.Black)
		p.img.Set(x, r.Max.Y, color.Black)
	}
	for y := r.Min.Y; y <= r.Max.Y; y++ {
		p.img.Set(r.Min.X, y, color.Black)
		p.img.Set(r.Max.X, y, color.Black)
	}
}

func (p *panel) drawLegend() error {
	x := p.area.Max.X
	for pd := fsm.PhotodiodesPerGroup - 1; pd >= 0; pd-- {
		label := fmt.Sprintf("PD%d", pd+1)
		x -= font.MeasureString(p.chart.face, label).Round() + 15

		if err := p.drawText(label, x, p.area.Min.Y-8, p.chart.colors[pd]); err != nil {
			return err
		}
	}
	return nil
}

func (p *panel) drawTimeScale(xMin, xMax float64) error {
	step := niceStep(xMax-xMin, p.area.Dx())
	metrics := p.chart.face.Metrics()
	textY := p.area.Max.Y + tickMarkSize + metrics.Ascent.Round()

	for v := math.Ceil(xMin/step) * step; v <= xMax; v += step {
		x := p.xPixel(v, xMin, xMax)

		// Draw tick mark
		for y := p.area.Max.Y; y < p.area.Max.Y+tickMarkSize; y++ {
			p.img.Set(x, y, color.Black)
		}

		label := fmt.Sprintf("%g s", roundStep(v, step))
		width := font.MeasureString(p.chart.face, label).Round()
		if err := p.drawText(label, x-width/2, textY, color.Black); err != nil {
			return err
		}
	}
	return nil
}

func (p *panel) drawValueScale(yMin, yMax float64, scale Scale) error {
	metrics := p.chart.face.Metrics()

	// log scale ticks are decades, the range is in log10 units
	step := 1.0
	if scale == ScaleLinear {
		step = niceStep(yMax-yMin, p.area.Dy())
	}

	for v := math.Ceil(yMin/step) * step; v <= yMax; v += step {
		y := p.yPixel(v, yMin, yMax)

		// Draw tick mark
		for x := p.area.Min.X - tickMarkSize; x < p.area.Min.X; x++ {
			p.img.Set(x, y, color.Black)
		}

		value := roundStep(v, step)
		if scale == ScaleLog {
			value = math.Pow(10, v)
		}

		label := formatVolts(value)
		width := font.MeasureString(p.chart.face, label).Round()
		textY := y + metrics.Ascent.Round()/2
		if err := p.drawText(label, p.area.Min.X-tickMarkSize-3-width, textY, color.Black); err != nil {
			return err
		}
	}
	return nil
}

func (p *panel) drawSeries(values []float64, xMin, xMax, yMin, yMax float64, scale Scale, c color.Color) {
	var (
		prev    image.Point
		hasPrev bool
	)

	for i, v := range values {
		if i >= len(p.times) {
			break
		}

		y, ok := project(v, scale)
		if !ok {
			hasPrev = false // gap in log scale
			continue
		}

		pt := image.Pt(p.xPixel(p.times[i], xMin, xMax), p.yPixel(y, yMin, yMax))
		if hasPrev {
			drawLine(p.img, prev, pt, c)
		} else {
			p.img.Set(pt.X, pt.Y, c)
		}
		prev, hasPrev = pt, true
	}
}

func (p *panel) drawText(s string, x, y int, c color.Color) error {
	p.ctx.SetSrc(image.NewUniform(c))
	_, err := p.ctx.DrawString(s, freetype.Pt(x, y))
	return err
}

func (p *panel) xPixel(v, lo, hi float64) int {
	return p.area.Min.X + int(math.Round((v-lo)/(hi-lo)*float64(p.area.Dx())))
}

func (p *panel) yPixel(v, lo, hi float64) int {
	return p.area.Max.Y - int(math.Round((v-lo)/(hi-lo)*float64(p.area.Dy())))
}

// project maps a value onto the axis scale. Non-positive values have no log.
func project(v float64, scale Scale) (float64, bool) {
	if scale == ScaleLog {
		if v <= 0 {
			return 0, false
		}
		return math.Log10(v), true
	}
	return v, true
}

// axisRange returns the projected range of values, widened when degenerate.
func axisRange(values []float64, scale Scale) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if y, ok := project(v, scale); ok {
			lo = math.Min(lo, y)
			hi = math.Max(hi, y)
		}
	}

	switch {
	case math.IsInf(lo, 1):
		return 0, 1
	case lo == hi:
		return lo - 0.5, hi + 0.5
	default:
		return lo, hi
	}
}

func concat(series [][]float64) []float64 {
	var n int
	for _, s := range series {
		n += len(s)
	}
	values := make([]float64, 0, n)
	for _, s := range series {
		values = append(values, s...)
	}
	return values
}

// niceStep returns a 1, 2 or 5 times power of ten step giving roughly one
// label per pixelsPerLabel pixels.
func niceStep(span float64, pixels int) float64 {
	desiredSteps := math.Max(1, float64(pixels)/pixelsPerLabel)
	targetStep := span / desiredSteps

	magnitude := math.Pow(10, math.Floor(math.Log10(targetStep)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= targetStep {
			return step
		}
	}
	return 10 * magnitude
}

// roundStep removes floating point noise from a tick value.
func roundStep(v, step float64) float64 {
	return math.Round(v/step) * step
}

func formatVolts(v float64) string {
	if v == 0 {
		return "0 V"
	}
	fract, suffix := humanize.ComputeSI(v)
	return fmt.Sprintf("%.4g %sV", fract, suffix)
}

// drawLine draws a line with Bresenham's algorithm.
func drawLine(img *image.RGBA, from, to image.Point, c color.Color) {
	dx := abs(to.X - from.X)
	dy := -abs(to.Y - from.Y)
	sx, sy := 1, 1
	if from.X > to.X {
		sx = -1
	}
	if from.Y > to.Y {
		sy = -1
	}

	err := dx + dy
	x, y := from.X, from.Y
	for {
		img.Set(x, y, c)
		if x == to.X && y == to.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
