package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/dgnsrekt/candleview/internal/chart"
)

// ErrUnavailable wraps failures to reach the browser's CDP endpoint.
var ErrUnavailable = errors.New("browser unavailable")

const defaultCaptureTimeout = 20 * time.Second

// Capturer rasterizes SVG charts in a remote Chromium so PNG snapshots use
// the browser's text rendering at the requested device pixel ratio.
type Capturer struct {
	cdpURL  string
	timeout time.Duration
}

// NewCapturer targets the CDP HTTP endpoint at cdpURL.
func NewCapturer(cdpURL string, timeout time.Duration) *Capturer {
	if timeout <= 0 {
		timeout = defaultCaptureTimeout
	}
	return &Capturer{cdpURL: cdpURL, timeout: timeout}
}

// Ping checks that a tab can be opened.
func (c *Capturer) Ping(ctx context.Context) error {
	tabCtx, cancel := c.newTab(ctx)
	defer cancel()
	if err := chromedp.Run(tabCtx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// CaptureSVG loads svg into a fresh tab sized to vp and returns a PNG
// screenshot of vp.Width*PixelRatio by vp.Height*PixelRatio pixels.
func (c *Capturer) CaptureSVG(ctx context.Context, svg []byte, vp chart.Viewport) ([]byte, error) {
	if !vp.Valid() {
		return nil, fmt.Errorf("browser: invalid viewport %+v", vp)
	}
	tabCtx, cancel := c.newTab(ctx)
	defer cancel()

	doc := fmt.Sprintf(`<!doctype html><html><body style="margin:0;overflow:hidden">%s</body></html>`, svg)
	var shot []byte
	start := time.Now()
	err := chromedp.Run(tabCtx,
		emulation.SetDeviceMetricsOverride(int64(vp.Width), int64(vp.Height), vp.PixelRatio, false),
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(tree.Frame.ID, doc).Do(ctx)
		}),
		chromedp.CaptureScreenshot(&shot),
	)
	if err != nil {
		if ctx.Err() == nil && tabCtx.Err() != nil {
			return nil, fmt.Errorf("%w: capture timed out after %s: %w", ErrUnavailable, c.timeout, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	slog.Debug("browser capture complete", "width", vp.Width, "height", vp.Height,
		"pixel_ratio", vp.PixelRatio, "bytes", len(shot), "elapsed", time.Since(start))
	return shot, nil
}

func (c *Capturer) newTab(ctx context.Context) (context.Context, context.CancelFunc) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, c.cdpURL)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	timeoutCtx, timeoutCancel := context.WithTimeout(tabCtx, c.timeout)
	return timeoutCtx, func() {
		timeoutCancel()
		tabCancel()
		allocCancel()
	}
}
