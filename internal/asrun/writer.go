package asrun

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-co-op/gocron/v2"
)

// Writer persists one channel's as-run timeline to a fixed-width file and
// a JSONL sidecar under dir, rolling both over to a new (channel,
// broadcast_date) pair at local midnight. Grounded on the teacher's
// Recorder: a mutex-guarded io.WriteCloser pair that never panics on a
// write error. Unlike the Recorder it does not disable itself: each
// failed write returns a wrapped error to its caller.
type Writer struct {
	mu        sync.Mutex
	dir       string
	channelID string
	log       *slog.Logger

	date        string
	fixedFile   *os.File
	fixedBuf    *bufio.Writer
	jsonlFile   *os.File
	jsonlBuf    *bufio.Writer
	seenUUIDs   map[string]struct{}
	recordCount int

	sched gocron.Scheduler
}

// NewWriter opens today's as-run files for channelID under dir and starts
// a daily rollover scheduler checking for the midnight boundary.
func NewWriter(dir, channelID string, log *slog.Logger) (*Writer, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("asrun: mkdir %s: %w", dir, err)
	}
	w := &Writer{
		dir:       dir,
		channelID: channelID,
		log:       log.With("component", "asrun_writer", "channel_id", channelID),
		seenUUIDs: make(map[string]struct{}),
	}
	if err := w.openForDate(time.Now().Format("2006-01-02")); err != nil {
		return nil, err
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("asrun: new scheduler: %w", err)
	}
	if _, err := sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 0, 0))),
		gocron.NewTask(w.rolloverToToday),
	); err != nil {
		return nil, fmt.Errorf("asrun: schedule rollover: %w", err)
	}
	sched.Start()
	w.sched = sched

	return w, nil
}

func (w *Writer) openForDate(date string) error {
	base := fmt.Sprintf("%s.%s", w.channelID, date)
	fixedPath := filepath.Join(w.dir, base+".asrun")
	jsonlPath := filepath.Join(w.dir, base+".jsonl")

	ff, err := os.OpenFile(fixedPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("asrun: open %s: %w", fixedPath, err)
	}
	jf, err := os.OpenFile(jsonlPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		ff.Close()
		return fmt.Errorf("asrun: open %s: %w", jsonlPath, err)
	}

	w.date = date
	w.fixedFile = ff
	w.fixedBuf = bufio.NewWriter(ff)
	w.jsonlFile = jf
	w.jsonlBuf = bufio.NewWriter(jf)
	w.seenUUIDs = make(map[string]struct{})
	w.recordCount = 0
	return nil
}

// rolloverToToday closes the current day's files and opens a fresh pair
// if the local date has advanced. Invoked both by the midnight scheduler
// job and defensively from WriteRecord, so a channel that is briefly idle
// across midnight still rolls over on its next write.
func (w *Writer) rolloverToToday() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rolloverToTodayLocked()
}

func (w *Writer) rolloverToTodayLocked() {
	today := time.Now().Format("2006-01-02")
	if today == w.date {
		return
	}
	prevCount := w.recordCount
	prevDate := w.date
	w.flushAndCloseLocked()
	if err := w.openForDate(today); err != nil {
		w.log.Error("asrun rollover failed to open new day's files", "error", err)
		return
	}
	w.log.Info("asrun rolled over to new broadcast date",
		"previous_date", prevDate, "previous_record_count", humanize.Comma(int64(prevCount)))
}

func (w *Writer) flushAndCloseLocked() {
	if w.fixedBuf != nil {
		_ = w.fixedBuf.Flush()
	}
	if w.jsonlBuf != nil {
		_ = w.jsonlBuf.Flush()
	}
	if w.fixedFile != nil {
		_ = w.fixedFile.Close()
	}
	if w.jsonlFile != nil {
		_ = w.jsonlFile.Close()
	}
}

// WriteRecord appends rec if and only if rec.EventUUID has not already
// been written for the current broadcast date: replaying the same
// evidence ack (and therefore the same derived event UUID) is therefore
// safe and produces exactly one as-run entry.
func (w *Writer) WriteRecord(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.rolloverToTodayLocked()

	if _, dup := w.seenUUIDs[rec.EventUUID]; dup {
		return nil
	}

	if _, err := fmt.Fprintln(w.fixedBuf, rec.fixedWidthLine()); err != nil {
		return fmt.Errorf("asrun: write fixed-width line: %w", err)
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("asrun: marshal sidecar record: %w", err)
	}
	if _, err := w.jsonlBuf.Write(body); err != nil {
		return fmt.Errorf("asrun: write sidecar line: %w", err)
	}
	if err := w.jsonlBuf.WriteByte('\n'); err != nil {
		return fmt.Errorf("asrun: write sidecar line: %w", err)
	}
	if err := w.fixedBuf.Flush(); err != nil {
		return fmt.Errorf("asrun: flush fixed-width file: %w", err)
	}
	if err := w.jsonlBuf.Flush(); err != nil {
		return fmt.Errorf("asrun: flush sidecar file: %w", err)
	}

	w.seenUUIDs[rec.EventUUID] = struct{}{}
	w.recordCount++
	return nil
}

// Close flushes and closes the current files and stops the rollover
// scheduler.
func (w *Writer) Close() error {
	w.mu.Lock()
	w.flushAndCloseLocked()
	sched := w.sched
	w.mu.Unlock()

	if sched != nil {
		return sched.Shutdown()
	}
	return nil
}
