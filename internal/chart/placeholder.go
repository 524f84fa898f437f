package chart

import (
	"bytes"
	"fmt"

	gochart "github.com/wcharczuk/go-chart/v2"
)

const (
	msgEmpty   = "No chart data available"
	msgInvalid = "Invalid chart data format"
)

// placeholder draws a centered message on a blank surface.
func placeholder(format Format, width, height int, colors palette, message string) ([]byte, error) {
	r, err := format.provider()(width, height)
	if err != nil {
		return nil, fmt.Errorf("chart: placeholder renderer: %w", err)
	}
	font, err := gochart.GetDefaultFont()
	if err != nil {
		return nil, fmt.Errorf("chart: placeholder font: %w", err)
	}

	fillBackground(r, width, height, colors.background)

	r.SetFont(font)
	r.SetFontSize(14)
	r.SetFontColor(colors.text)
	box := r.MeasureText(message)
	r.Text(message, (width-box.Width())/2, (height+box.Height())/2)

	var buf bytes.Buffer
	if err := r.Save(&buf); err != nil {
		return nil, fmt.Errorf("chart: placeholder save: %w", err)
	}
	return buf.Bytes(), nil
}
