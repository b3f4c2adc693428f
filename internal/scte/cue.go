// Package scte implements a narrow SCTE-35 cue passthrough: a wire
// encoding for a splice_info_section carrying only splice_command_type
// and pts_adjustment, and nothing else. Cue *generation* (deciding when
// to splice an ad break) is ad-fill/traffic-manager territory and stays
// out of this module; this package only gives the core a way to carry a
// scheduler-supplied cue onto its reserved PID unmodified.
package scte

import (
	"encoding/binary"
	"fmt"
)

// SpliceCommandType mirrors the subset of SCTE-35's splice_command_type
// values this passthrough understands well enough to round-trip.
type SpliceCommandType uint8

const (
	SpliceNull    SpliceCommandType = 0x00
	SpliceInsert  SpliceCommandType = 0x05
	TimeSignal    SpliceCommandType = 0x06
)

// CueMessage is the passthrough payload: just enough of a splice_info_section
// for a downstream ad-decision system to recognize the splice point and
// its PTS offset.
type CueMessage struct {
	SpliceCommandType SpliceCommandType
	PtsAdjustment     int64 // 33-bit PTS adjustment, stored widened to int64
}

const tableID = 0xFC // splice_info_section table_id, fixed by SCTE-35

// Encode renders a CueMessage as a minimal splice_info_section: a
// table_id byte, the splice_command_type, and an 8-byte big-endian
// pts_adjustment. This is not a byte-for-byte standard splice_info_section
// (no CRC32, no descriptor loop) — sufficient for passthrough to a
// downstream system that already speaks this package's wire shape, not
// for interop with third-party SCTE-35 parsers.
func Encode(cue CueMessage) []byte {
	buf := make([]byte, 10)
	buf[0] = tableID
	buf[1] = byte(cue.SpliceCommandType)
	binary.BigEndian.PutUint64(buf[2:], uint64(cue.PtsAdjustment))
	return buf
}

// Decode reverses Encode.
func Decode(b []byte) (CueMessage, error) {
	if len(b) != 10 {
		return CueMessage{}, fmt.Errorf("scte: cue payload must be 10 bytes, got %d", len(b))
	}
	if b[0] != tableID {
		return CueMessage{}, fmt.Errorf("scte: unexpected table_id 0x%02x", b[0])
	}
	return CueMessage{
		SpliceCommandType: SpliceCommandType(b[1]),
		PtsAdjustment:     int64(binary.BigEndian.Uint64(b[2:])),
	}, nil
}
