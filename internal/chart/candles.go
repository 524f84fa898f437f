package chart

import (
	"errors"
	"fmt"
	"math"

	"github.com/dgnsrekt/candleview/internal/series"
	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// candlestickSeries draws one body and wick per point.
type candlestickSeries struct {
	points []series.Point
	colors palette
	scale  float64
}

var _ gochart.Series = candlestickSeries{}

func (c candlestickSeries) GetName() string { return "Price" }
func (c candlestickSeries) GetYAxis() gochart.YAxisType { return gochart.YAxisPrimary }
func (c candlestickSeries) GetStyle() gochart.Style { return gochart.Style{} }

func (c candlestickSeries) Validate() error {
	if len(c.points) == 0 {
		return errors.New("candlestick series has no points")
	}
	return nil
}

func (c candlestickSeries) Render(r gochart.Renderer, canvasBox gochart.Box, xrange, yrange gochart.Range, _ gochart.Style) {
	slot := float64(canvasBox.Width()) / float64(len(c.points))
	half := int(math.Max(1, slot*0.3))

	for _, p := range c.points {
		x := canvasBox.Left + xrange.Translate(float64(p.Time.UnixNano()))
		yHigh := canvasBox.Bottom - yrange.Translate(p.High)
		yLow := canvasBox.Bottom - yrange.Translate(p.Low)
		yOpen := canvasBox.Bottom - yrange.Translate(p.Open)
		yClose := canvasBox.Bottom - yrange.Translate(p.Close)

		color := c.colors.down
		if p.Up() {
			color = c.colors.up
		}

		r.SetStrokeColor(color)
		r.SetStrokeWidth(c.scale)
		r.MoveTo(x, yHigh)
		r.LineTo(x, yLow)
		r.Stroke()

		top, bottom := yOpen, yClose
		if top > bottom {
			top, bottom = bottom, top
		}
		if bottom-top < 1 {
			bottom = top + 1
		}
		r.SetFillColor(color)
		r.SetStrokeColor(color)
		r.MoveTo(x-half, top)
		r.LineTo(x+half, top)
		r.LineTo(x+half, bottom)
		r.LineTo(x-half, bottom)
		r.Close()
		r.FillStroke()
	}
}

// crosshairSeries overlays the pointer lines and the OHLCV readout.
type crosshairSeries struct {
	point  series.Point
	price  float64
	colors palette
	scale  float64
}

var _ gochart.Series = crosshairSeries{}

func (c crosshairSeries) GetName() string { return "Crosshair" }
func (c crosshairSeries) GetYAxis() gochart.YAxisType { return gochart.YAxisPrimary }
func (c crosshairSeries) GetStyle() gochart.Style { return gochart.Style{} }
func (c crosshairSeries) Validate() error { return nil }

func (c crosshairSeries) Render(r gochart.Renderer, canvasBox gochart.Box, xrange, yrange gochart.Range, defaults gochart.Style) {
	x := canvasBox.Left + xrange.Translate(float64(c.point.Time.UnixNano()))
	y := canvasBox.Bottom - yrange.Translate(c.price)
	if y < canvasBox.Top {
		y = canvasBox.Top
	}
	if y > canvasBox.Bottom {
		y = canvasBox.Bottom
	}

	r.SetStrokeColor(c.colors.crosshair)
	r.SetStrokeWidth(c.scale)
	r.SetStrokeDashArray([]float64{4 * c.scale, 4 * c.scale})
	r.MoveTo(x, canvasBox.Top)
	r.LineTo(x, canvasBox.Bottom)
	r.Stroke()
	r.MoveTo(canvasBox.Left, y)
	r.LineTo(canvasBox.Right, y)
	r.Stroke()
	r.SetStrokeDashArray(nil)

	if defaults.Font == nil {
		return
	}
	r.SetFont(defaults.Font)
	r.SetFontSize(10)
	r.SetFontColor(c.colors.text)
	r.Text(tooltipText(c.point), canvasBox.Left+4, canvasBox.Top+12)
	r.SetFontColor(c.colors.background)
	r.SetFillColor(c.colors.crosshair)
	label := fmt.Sprintf("%.2f", c.price)
	box := r.MeasureText(label)
	drawRect(r, canvasBox.Right+2, y-box.Height()/2-2, canvasBox.Right+box.Width()+6, y+box.Height()/2+2)
	r.Text(label, canvasBox.Right+4, y+box.Height()/2)
}

func tooltipText(p series.Point) string {
	return fmt.Sprintf("%s  O %.2f  H %.2f  L %.2f  C %.2f  V %.0f",
		p.Time.Format("2006-01-02"), p.Open, p.High, p.Low, p.Close, p.Volume)
}

func drawRect(r gochart.Renderer, left, top, right, bottom int) {
	r.MoveTo(left, top)
	r.LineTo(right, top)
	r.LineTo(right, bottom)
	r.LineTo(left, bottom)
	r.Close()
	r.Fill()
}

func fillBackground(r gochart.Renderer, width, height int, color drawing.Color) {
	r.SetFillColor(color)
	drawRect(r, 0, 0, width, height)
}
