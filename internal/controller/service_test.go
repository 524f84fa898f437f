package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/dgnsrekt/candleview/internal/chart"
	"github.com/dgnsrekt/candleview/internal/market"
	"github.com/dgnsrekt/candleview/internal/relay"
	"github.com/dgnsrekt/candleview/internal/series"
	"github.com/dgnsrekt/candleview/internal/snapshot"
	"github.com/dgnsrekt/candleview/internal/timeframe"
	"github.com/dgnsrekt/candleview/internal/types"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeCapturer struct {
	calls int
	svg   []byte
	vp    chart.Viewport
	out   []byte
	err   error
}

func (f *fakeCapturer) CaptureSVG(_ context.Context, svg []byte, vp chart.Viewport) ([]byte, error) {
	f.calls++
	f.svg, f.vp = svg, vp
	return f.out, f.err
}

func newTestService(t *testing.T, mutate func(*Deps)) *Service {
	t.Helper()
	catalog, err := market.Embedded()
	if err != nil {
		t.Fatalf("Embedded() error: %v", err)
	}
	store, err := snapshot.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error: %v", err)
	}
	d := Deps{
		Catalog:          catalog,
		Book:             market.NewBook(rand.New(rand.NewSource(7)), func() time.Time { return fixedNow }),
		Snapshots:        store,
		Broker:           relay.NewBroker(),
		Viewport:         chart.Viewport{Width: 320, Height: 200, PixelRatio: 1},
		DefaultTimeframe: timeframe.Month,
		CarouselInterval: time.Hour,
		SeriesOptions: []series.Option{
			series.WithClock(func() time.Time { return fixedNow }),
			series.WithRand(rand.New(rand.NewSource(42))),
		},
	}
	if mutate != nil {
		mutate(&d)
	}
	svc := NewService(d)
	t.Cleanup(svc.Close)
	return svc
}

func assertCode(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := types.Code(err); got != want {
		t.Fatalf("code = %q, want %q (err: %v)", got, want, err)
	}
}

func TestNewServiceDefaults(t *testing.T) {
	svc := NewService(Deps{})
	if got, want := svc.DefaultTimeframe(), timeframe.Month; got != want {
		t.Fatalf("DefaultTimeframe() = %q, want %q", got, want)
	}
	if !svc.DefaultViewport().Valid() {
		t.Fatalf("DefaultViewport() = %+v, want valid", svc.DefaultViewport())
	}
	if svc.Theme() != chart.DefaultTheme() {
		t.Fatal("expected default theme")
	}
}

func TestGetPropertyByIDAndSymbol(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	byID, err := svc.GetProperty(ctx, "1")
	if err != nil {
		t.Fatalf("GetProperty(1) error: %v", err)
	}
	bySymbol, err := svc.GetProperty(ctx, "karen-villas")
	if err != nil {
		t.Fatalf("GetProperty(karen-villas) error: %v", err)
	}
	if byID.ID != bySymbol.ID {
		t.Fatalf("ids differ: %q vs %q", byID.ID, bySymbol.ID)
	}
	if byID.Timeframe != timeframe.Month {
		t.Fatalf("timeframe = %q, want 1M", byID.Timeframe)
	}
	if byID.LatestPrice <= 0 {
		t.Fatalf("latest price = %v, want positive", byID.LatestPrice)
	}
}

func TestGetPropertyErrors(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.GetProperty(ctx, "  ")
	assertCode(t, err, types.CodeValidation)

	_, err = svc.GetProperty(ctx, "999")
	assertCode(t, err, types.CodePropertyNotFound)
	if !errors.Is(err, market.ErrNotFound) {
		t.Fatalf("expected wrapped market.ErrNotFound, got %v", err)
	}
}

func TestSeriesLengthFollowsTimeframe(t *testing.T) {
	svc := newTestService(t, nil)
	for _, tf := range timeframe.All() {
		res, err := svc.Series(context.Background(), "1", tf.String())
		if err != nil {
			t.Fatalf("Series(%s) error: %v", tf, err)
		}
		if got, want := res.Points.Len(), tf.Days()+1; got != want {
			t.Fatalf("Series(%s) len = %d, want %d", tf, got, want)
		}
		if got := len(res.Sparkline); got == 0 || got > sparklinePoints+1 {
			t.Fatalf("Series(%s) sparkline len = %d", tf, got)
		}
		last, _ := res.Points.Last()
		if !last.Time.Equal(fixedNow) {
			t.Fatalf("last point at %v, want %v", last.Time, fixedNow)
		}
	}
}

func TestSeriesDefaultsAndRejectsTimeframe(t *testing.T) {
	svc := newTestService(t, nil)
	res, err := svc.Series(context.Background(), "1", "")
	if err != nil {
		t.Fatalf("Series() error: %v", err)
	}
	if res.Timeframe != timeframe.Month {
		t.Fatalf("timeframe = %q, want default 1M", res.Timeframe)
	}
	if got, want := res.BasePrice, 25000.0; got != want {
		t.Fatalf("base price = %v, want %v", got, want)
	}

	_, err = svc.Series(context.Background(), "1", "5Y")
	assertCode(t, err, types.CodeValidation)
}

func TestRenderChartPublishesEvent(t *testing.T) {
	svc := newTestService(t, nil)
	id, events := svc.Broker().Subscribe()
	defer svc.Broker().Unsubscribe(id)

	res, err := svc.RenderChart(context.Background(), ChartRequest{PropertyID: "1", Timeframe: "1W", Format: "svg"})
	if err != nil {
		t.Fatalf("RenderChart() error: %v", err)
	}
	if res.Frame.State != chart.StateReady {
		t.Fatalf("state = %q, want ready (message %q)", res.Frame.State, res.Frame.Message)
	}
	if !bytes.Contains(res.Frame.Image, []byte("<svg")) {
		t.Fatal("expected svg image")
	}
	if got, want := res.Viewport.Width, 320; got != want {
		t.Fatalf("viewport width = %d, want %d", got, want)
	}

	select {
	case evt := <-events:
		if evt.Feed != relay.FeedChart {
			t.Fatalf("feed = %q, want chart", evt.Feed)
		}
		if !strings.Contains(evt.Payload, `"timeframe":"1W"`) {
			t.Fatalf("payload = %s", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no chart event published")
	}
}

func TestRenderChartValidatesRequest(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.RenderChart(ctx, ChartRequest{PropertyID: "1", Format: "gif"})
	assertCode(t, err, types.CodeValidation)

	_, err = svc.RenderChart(ctx, ChartRequest{PropertyID: "1", Width: -5})
	assertCode(t, err, types.CodeValidation)

	_, err = svc.RenderChart(ctx, ChartRequest{PropertyID: "nope"})
	assertCode(t, err, types.CodePropertyNotFound)
}

func TestOrderBook(t *testing.T) {
	svc := newTestService(t, nil)
	res, err := svc.OrderBook(context.Background(), "KAREN-VILLAS")
	if err != nil {
		t.Fatalf("OrderBook() error: %v", err)
	}
	if got, want := len(res.Book.Asks), 10; got != want {
		t.Fatalf("asks = %d, want %d", got, want)
	}
	if got, want := len(res.Trades), 10; got != want {
		t.Fatalf("trades = %d, want %d", got, want)
	}
	if got, want := res.Spread, "200"; got != want {
		t.Fatalf("spread = %s, want %s", got, want)
	}
	if got, want := res.Price, 25000000.0; got != want {
		t.Fatalf("price = %v, want %v", got, want)
	}
}

func TestOrderBookFallbackPropertyHasPositiveBids(t *testing.T) {
	svc := newTestService(t, func(d *Deps) { d.Catalog = market.Fallback() })
	res, err := svc.OrderBook(context.Background(), "PROP1")
	if err != nil {
		t.Fatalf("OrderBook() error: %v", err)
	}
	if got, want := len(res.Book.Bids), 10; got != want {
		t.Fatalf("bids = %d, want %d", got, want)
	}
	for i, lv := range res.Book.Bids {
		if !lv.Price.IsPositive() || !lv.Total.IsPositive() {
			t.Fatalf("bid %d price %s total %s, want positive", i, lv.Price, lv.Total)
		}
	}
	for i, tr := range res.Trades {
		if !tr.Price.IsPositive() {
			t.Fatalf("trade %d price %s, want positive", i, tr.Price)
		}
	}
}

func TestNormalizeSeriesReportsRecord(t *testing.T) {
	svc := newTestService(t, nil)
	records := []series.Record{
		{"time": "2025-01-01", "open": 10, "high": 12, "low": 9, "close": 11, "volume": 100},
		{"time": "2025-01-02", "open": 10, "high": 8, "low": 9, "close": 11, "volume": 100},
	}
	_, err := svc.NormalizeSeries(context.Background(), records)
	assertCode(t, err, types.CodeValidation)
	if !strings.Contains(err.Error(), "record 1") {
		t.Fatalf("error %q does not name the record", err)
	}
	if !errors.Is(err, series.ErrInvalidSeries) {
		t.Fatalf("expected wrapped ErrInvalidSeries, got %v", err)
	}
}

func TestRenderRecordsSortsAndRejects(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	unsorted := []series.Record{
		{"time": "2025-01-03", "open": 11, "high": 13, "low": 10, "close": 12, "volume": 100},
		{"time": "2025-01-01", "open": 10, "high": 12, "low": 9, "close": 11, "volume": 100},
		{"time": "2025-01-02", "open": 11, "high": 12, "low": 10, "close": 11, "volume": 100},
	}
	frame, err := svc.RenderRecords(ctx, unsorted, 0, 0, 0, "svg")
	if err != nil {
		t.Fatalf("RenderRecords() error: %v", err)
	}
	if frame.State != chart.StateReady {
		t.Fatalf("state = %q, want ready", frame.State)
	}
	if got, want := frame.Domains.TimeMin, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("domain start = %v, want %v", got, want)
	}

	bad := []series.Record{{"time": "2025-01-01", "open": "abc", "high": 12, "low": 9, "close": 11, "volume": 100}}
	frame, err = svc.RenderRecords(ctx, bad, 0, 0, 0, "svg")
	if err != nil {
		t.Fatalf("RenderRecords(bad) error: %v", err)
	}
	if frame.State != chart.StateInvalid {
		t.Fatalf("state = %q, want invalid", frame.State)
	}

	frame, err = svc.RenderRecords(ctx, nil, 0, 0, 0, "svg")
	if err != nil {
		t.Fatalf("RenderRecords(nil) error: %v", err)
	}
	if frame.State != chart.StateEmpty {
		t.Fatalf("state = %q, want empty", frame.State)
	}
}

func TestGalleryNavigation(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	st, err := svc.GetGallery(ctx, "1")
	if err != nil {
		t.Fatalf("GetGallery() error: %v", err)
	}
	if st.Index != 0 || st.Total != 4 || !st.Running {
		t.Fatalf("initial state = %+v", st)
	}
	st, _ = svc.PrevImage(ctx, "1")
	if got, want := st.Index, 3; got != want {
		t.Fatalf("prev index = %d, want %d", got, want)
	}
	st, _ = svc.NextImage(ctx, "1")
	if got, want := st.Index, 0; got != want {
		t.Fatalf("next index = %d, want %d", got, want)
	}
	st, _ = svc.SelectImage(ctx, "1", 6)
	if got, want := st.Index, 2; got != want {
		t.Fatalf("select index = %d, want %d", got, want)
	}

	again, _ := svc.GetGallery(ctx, "KAREN-VILLAS")
	if again.Index != 2 {
		t.Fatalf("symbol lookup returned a different gallery: %+v", again)
	}
}

func TestGalleryWithoutImages(t *testing.T) {
	catalog, err := market.Parse([]byte(`{"properties":[{"id":"9","symbol":"BARE","type":"Land","current_price":1000}]}`), market.SourceRemote)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	svc := newTestService(t, func(d *Deps) { d.Catalog = catalog })
	_, err = svc.GetGallery(context.Background(), "9")
	assertCode(t, err, types.CodeGalleryNotFound)
	if got := svc.StartGalleries(); got != 0 {
		t.Fatalf("StartGalleries() = %d, want 0", got)
	}
}

func TestStartGalleriesAndClose(t *testing.T) {
	svc := newTestService(t, nil)
	if got, want := svc.StartGalleries(), 6; got != want {
		t.Fatalf("StartGalleries() = %d, want %d", got, want)
	}
	svc.Close()
	st, err := svc.GetGallery(context.Background(), "2")
	if err != nil {
		t.Fatalf("GetGallery() after close error: %v", err)
	}
	if st.Running {
		t.Fatal("gallery still running after Close")
	}
}

func TestTakeSnapshotRendererPath(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	meta, err := svc.TakeSnapshot(ctx, SnapshotRequest{ChartRequest: ChartRequest{PropertyID: "1", Timeframe: "1W", Format: "svg"}, Trigger: "api"})
	if err != nil {
		t.Fatalf("TakeSnapshot() error: %v", err)
	}
	if meta.Source != SourceRenderer || meta.Format != "svg" || meta.Symbol != "KAREN-VILLAS" {
		t.Fatalf("meta = %+v", meta)
	}

	img, got, err := svc.ReadSnapshotImage(ctx, meta.ID)
	if err != nil {
		t.Fatalf("ReadSnapshotImage() error: %v", err)
	}
	if got.ID != meta.ID || !bytes.Contains(img, []byte("<svg")) {
		t.Fatalf("unexpected image for %s", got.ID)
	}

	list, err := svc.ListSnapshots(ctx, "KAREN-VILLAS")
	if err != nil {
		t.Fatalf("ListSnapshots() error: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("ListSnapshots() len = %d, want 1", len(list))
	}
	other, err := svc.ListSnapshots(ctx, "2")
	if err != nil {
		t.Fatalf("ListSnapshots(2) error: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("ListSnapshots(2) len = %d, want 0", len(other))
	}

	if err := svc.DeleteSnapshot(ctx, meta.ID); err != nil {
		t.Fatalf("DeleteSnapshot() error: %v", err)
	}
	_, err = svc.GetSnapshot(ctx, meta.ID)
	assertCode(t, err, types.CodeSnapshotNotFound)
}

func TestTakeSnapshotBrowserCapture(t *testing.T) {
	fc := &fakeCapturer{out: []byte("\x89PNGfake")}
	svc := newTestService(t, func(d *Deps) { d.Capturer = fc })

	meta, err := svc.TakeSnapshot(context.Background(), SnapshotRequest{ChartRequest: ChartRequest{PropertyID: "1", Format: "png", PixelRatio: 2}})
	if err != nil {
		t.Fatalf("TakeSnapshot() error: %v", err)
	}
	if fc.calls != 1 {
		t.Fatalf("capturer calls = %d, want 1", fc.calls)
	}
	if !bytes.Contains(fc.svg, []byte("<svg")) {
		t.Fatal("capturer did not receive svg")
	}
	if meta.Source != SourceBrowser || meta.Width != 640 || meta.Height != 400 {
		t.Fatalf("meta = %+v", meta)
	}
	if got, want := meta.SizeBytes, len(fc.out); got != want {
		t.Fatalf("size = %d, want %d", got, want)
	}
}

func TestTakeSnapshotBrowserFallback(t *testing.T) {
	fc := &fakeCapturer{err: errors.New("connection refused")}
	svc := newTestService(t, func(d *Deps) { d.Capturer = fc })

	meta, err := svc.TakeSnapshot(context.Background(), SnapshotRequest{ChartRequest: ChartRequest{PropertyID: "1", Format: "png"}})
	if err != nil {
		t.Fatalf("TakeSnapshot() error: %v", err)
	}
	if meta.Source != SourceRenderer {
		t.Fatalf("source = %q, want renderer", meta.Source)
	}
	img, _, err := svc.ReadSnapshotImage(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("ReadSnapshotImage() error: %v", err)
	}
	if !bytes.HasPrefix(img, []byte("\x89PNG")) {
		t.Fatal("fallback image is not a PNG")
	}
}

func TestTakeSnapshotForcedSource(t *testing.T) {
	ctx := context.Background()
	png := func(source string) SnapshotRequest {
		return SnapshotRequest{ChartRequest: ChartRequest{PropertyID: "1", Format: "png"}, Source: source}
	}

	svc := newTestService(t, nil)
	_, err := svc.TakeSnapshot(ctx, png(SourceBrowser))
	assertCode(t, err, types.CodeBrowserUnavailable)

	_, err = svc.TakeSnapshot(ctx, png("webcam"))
	assertCode(t, err, types.CodeValidation)

	fc := &fakeCapturer{err: fmt.Errorf("browser unavailable: capture timed out: %w", context.DeadlineExceeded)}
	svc = newTestService(t, func(d *Deps) { d.Capturer = fc })
	_, err = svc.TakeSnapshot(ctx, png(SourceBrowser))
	assertCode(t, err, types.CodeUpstreamTimeout)

	_, err = svc.TakeSnapshot(ctx, SnapshotRequest{ChartRequest: ChartRequest{PropertyID: "1", Format: "svg"}, Source: SourceBrowser})
	assertCode(t, err, types.CodeValidation)

	fc.err = errors.New("connection refused")
	_, err = svc.TakeSnapshot(ctx, png(SourceBrowser))
	assertCode(t, err, types.CodeBrowserUnavailable)
	if got, want := fc.calls, 2; got != want {
		t.Fatalf("capturer calls = %d, want %d", got, want)
	}

	meta, err := svc.TakeSnapshot(ctx, png(SourceRenderer))
	if err != nil {
		t.Fatalf("TakeSnapshot(renderer) error: %v", err)
	}
	if meta.Source != SourceRenderer || fc.calls != 2 {
		t.Fatalf("source = %q calls = %d, want renderer without capture", meta.Source, fc.calls)
	}
	metas, err := svc.ListSnapshots(ctx, "")
	if err != nil {
		t.Fatalf("ListSnapshots() error: %v", err)
	}
	if got, want := len(metas), 1; got != want {
		t.Fatalf("stored snapshots = %d, want %d", got, want)
	}
}

func TestSnapshotIDValidation(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.GetSnapshot(context.Background(), "../etc/passwd")
	assertCode(t, err, types.CodeValidation)
	err = svc.DeleteSnapshot(context.Background(), "")
	assertCode(t, err, types.CodeValidation)
}

func TestPruneSnapshots(t *testing.T) {
	svc := newTestService(t, func(d *Deps) { d.SnapshotKeep = 1 })
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := svc.TakeSnapshot(ctx, SnapshotRequest{ChartRequest: ChartRequest{PropertyID: "1", Format: "svg"}}); err != nil {
			t.Fatalf("TakeSnapshot() error: %v", err)
		}
	}
	removed, err := svc.PruneSnapshots(ctx)
	if err != nil {
		t.Fatalf("PruneSnapshots() error: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
}

func TestNotifyWithoutNotifier(t *testing.T) {
	svc := newTestService(t, nil)
	if err := svc.Notify(context.Background(), "hello"); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
}

func TestNormalizeSeriesSortsByTime(t *testing.T) {
	svc := newTestService(t, nil)
	ser, err := svc.NormalizeSeries(context.Background(), []series.Record{
		{"date": "2025-01-02", "open": "11", "high": "12", "low": "10", "close": "11.5", "volume": "300"},
		{"date": "2025-01-01", "open": 10, "high": 12, "low": 9, "close": 11, "volume": 100},
	})
	if err != nil {
		t.Fatalf("NormalizeSeries() error: %v", err)
	}
	if !ser.Sorted() {
		t.Fatal("expected sorted series")
	}
	if got, want := ser.At(1).Close, 11.5; got != want {
		t.Fatalf("last close = %v, want %v", got, want)
	}
}

func TestLiveConfig(t *testing.T) {
	svc := newTestService(t, nil)

	cfg, err := svc.LiveConfig(context.Background(), "karen-villas")
	if err != nil {
		t.Fatalf("LiveConfig() error: %v", err)
	}
	if cfg.Property.ID != "1" || cfg.Timeframe != timeframe.Month {
		t.Fatalf("config = %+v", cfg)
	}
	if got, want := cfg.Viewport, svc.DefaultViewport(); got != want {
		t.Fatalf("viewport = %+v, want %+v", got, want)
	}
	ser, err := cfg.Deriver(context.Background(), timeframe.Week)
	if err != nil {
		t.Fatalf("Deriver() error: %v", err)
	}
	if got, want := ser.Len(), 8; got != want {
		t.Fatalf("points = %d, want %d", got, want)
	}

	_, err = svc.LiveConfig(context.Background(), "nope")
	assertCode(t, err, types.CodePropertyNotFound)
}
