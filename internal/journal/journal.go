// Package journal appends relay events to date-organized JSON lines files.
package journal

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/candleview/internal/relay"
)

const (
	fileName         = "events.jsonl"
	defaultMaxSizeMB = 50
)

// Record is one journal line.
type Record struct {
	ID      uint64          `json:"id"`
	Feed    string          `json:"feed"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// Journal subscribes to a broker and writes every event to
// <dir>/<YYYY-MM-DD>/events.jsonl, keyed by the event's UTC date.
type Journal struct {
	dir       string
	maxSizeMB int
	broker    *relay.Broker
	subID     int64
	wg        sync.WaitGroup

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
}

// Open starts journaling events published on b. maxSizeMB <= 0 uses the default.
func Open(dir string, b *relay.Broker, maxSizeMB int) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}
	j := &Journal{dir: dir, maxSizeMB: maxSizeMB, broker: b}
	id, events := b.Subscribe()
	j.subID = id

	j.wg.Add(1)
	go j.writeLoop(events)
	return j, nil
}

// Close unsubscribes, writes what was already queued and closes the file.
func (j *Journal) Close() error {
	j.broker.Unsubscribe(j.subID)
	j.wg.Wait()

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.logger != nil {
		return j.logger.Close()
	}
	return nil
}

func (j *Journal) writeLoop(events <-chan relay.Event) {
	defer j.wg.Done()
	for evt := range events {
		j.write(evt)
	}
}

func (j *Journal) write(evt relay.Event) {
	data, err := json.Marshal(Record{ID: evt.ID, Feed: evt.Feed, At: evt.At.UTC(), Payload: json.RawMessage(evt.Payload)})
	if err != nil {
		slog.Error("journal: encode event", "feed", evt.Feed, "error", err)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	date := evt.At.UTC().Format("2006-01-02")
	if j.logger == nil || date != j.currentDate {
		if err := j.rotate(date); err != nil {
			slog.Error("journal: open file", "date", date, "error", err)
			return
		}
	}
	if _, err := j.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal: write event", "feed", evt.Feed, "error", err)
	}
}

func (j *Journal) rotate(date string) error {
	if j.logger != nil {
		_ = j.logger.Close()
		j.logger = nil
	}
	dir := filepath.Join(j.dir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	j.logger = &lumberjack.Logger{
		Filename:   filepath.Join(dir, fileName),
		MaxSize:    j.maxSizeMB,
		MaxBackups: 100,
		MaxAge:     30,
	}
	j.currentDate = date
	slog.Debug("journal file opened", "file", j.logger.Filename)
	return nil
}
