package evidence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
)

// spool is one channel's durable append-only JSONL event log plus its
// persisted consumer acknowledgment high-water mark, modeled on the
// teacher's media.Recorder: a mutex-guarded file writer that disables
// itself on unrecoverable write failure rather than crashing the
// producing goroutine.
type spool struct {
	mu       sync.Mutex
	f        *os.File
	w        *bufio.Writer
	ackPath  string
	log      *slog.Logger
	disabled bool
}

func openSpool(dir, channelID string, log *slog.Logger) (*spool, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("evidence.spool.mkdir: %w", err)
	}
	path := filepath.Join(dir, channelID+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("evidence.spool.open: %w", err)
	}
	return &spool{
		f:       f,
		w:       bufio.NewWriter(f),
		ackPath: filepath.Join(dir, channelID+".ack"),
		log:     log.With("component", "evidence_spool", "channel_id", channelID),
	}, nil
}

// append durably writes ev, retrying the write+flush a bounded number of
// times before disabling the spool. A disabled spool never aborts
// boundary issuance or event publication — only durability is lost,
// and the caller logs a warning.
func (s *spool) append(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disabled {
		return fmt.Errorf("evidence.spool: disabled after a prior flush failure")
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("evidence.spool.marshal: %w", err)
	}
	line = append(line, '\n')

	err = retry.Do(
		func() error {
			if _, werr := s.w.Write(line); werr != nil {
				return werr
			}
			return s.w.Flush()
		},
		retry.Attempts(3),
		retry.Delay(10*time.Millisecond),
	)
	if err != nil {
		s.disabled = true
		s.log.Error("evidence spool flush failed after retries, disabling spool", "error", err)
		return fmt.Errorf("evidence.spool.flush: %w", err)
	}
	return nil
}

func (s *spool) persistAck(sequence int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(s.ackPath, []byte(fmt.Sprintf("%d", sequence)), 0o644)
}

func (s *spool) loadAck() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.ackPath)
	if err != nil {
		return 0
	}
	var v int64
	if _, err := fmt.Sscanf(string(b), "%d", &v); err != nil {
		return 0
	}
	return v
}

// replay returns every spooled event with Sequence > fromSequence, in
// spool order.
func (s *spool) replay(fromSequence int64) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		return nil, fmt.Errorf("evidence.spool.replay.flush: %w", err)
	}
	f, err := os.Open(s.f.Name())
	if err != nil {
		return nil, fmt.Errorf("evidence.spool.replay.open: %w", err)
	}
	defer f.Close()

	var events []Event
	dec := json.NewDecoder(f)
	for dec.More() {
		var ev Event
		if err := dec.Decode(&ev); err != nil {
			break
		}
		if ev.Sequence > fromSequence {
			events = append(events, ev)
		}
	}
	return events, nil
}

func (s *spool) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	_ = s.w.Flush()
	err := s.f.Close()
	s.f = nil
	return err
}
