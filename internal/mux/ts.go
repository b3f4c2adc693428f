// Package mux implements the Encoder/Mux Sink: a persistent per-channel
// MPEG-TS muxer with fixed PIDs, monotone PTS/DTS, periodic PAT/PMT
// re-emission on a wall-clock heartbeat that never gates control-plane
// discoverability on media availability. The PCR is carried only on audio
// packets, so no PCR is emitted while no audio is being muxed.
//
// TS packet and PES structuring is hand-rolled rather than imported
// from a third-party remux library: the retrieval pack's closest match
// (KELL066-lal's pkg/remux/rtmp2mpegts.go, zsiec-prism's
// internal/demux/mpegts.go) are single retrieved files, not full
// modules with a go.mod this project can depend on, so their Frame/
// PID/CC/PTS-DTS structuring is followed as a pattern, not an import.
package mux

import "encoding/binary"

// Pid is a fixed 13-bit MPEG-TS packet identifier.
type Pid uint16

const (
	PidPat   Pid = 0x0000
	PidPmt   Pid = 0x1000
	PidVideo Pid = 0x0100
	PidAudio Pid = 0x0101
	PidScte  Pid = 0x0102
)

// StreamType is the PMT stream_type value for a PID's elementary stream.
type StreamType uint8

const (
	StreamTypeH264 StreamType = 0x1B
	StreamTypeAAC  StreamType = 0x0F
	StreamTypeSCTE StreamType = 0x86
)

const (
	tsPacketSize = 188
	syncByte     = 0x47
	pesStreamIDVideo = 0xE0
	pesStreamIDAudio = 0xC0
)

// Frame is one elementary-stream access unit ready for PES wrapping.
// Pts and Dts are in 90kHz clock units, per MPEG-TS convention; the
// muxer converts from the pipeline's microsecond clock at the call
// site so this package has no dependency on internal/rational.
type Frame struct {
	Pid     Pid
	StreamID uint8
	Pts     uint64
	Dts     uint64
	Key     bool // IDR / keyframe, for adaptation-field random_access_indicator
	Payload []byte
}

// ccTracker holds one 4-bit continuity counter per PID, wrapping at 16.
type ccTracker struct {
	counters map[Pid]uint8
}

func newCCTracker() *ccTracker { return &ccTracker{counters: make(map[Pid]uint8)} }

func (c *ccTracker) next(pid Pid) uint8 {
	v := c.counters[pid]
	c.counters[pid] = (v + 1) & 0x0F
	return v
}

// packetizePES splits one PES-wrapped frame into 188-byte TS packets.
// The first packet carries the PES header with payload_unit_start_indicator
// set and, for the first packet of a keyframe, an adaptation field with
// the random_access_indicator and (if pcr90k >= 0) a PCR.
func packetizePES(f Frame, cc *ccTracker, pcr90k int64) [][]byte {
	pes := buildPESHeader(f)
	data := append(pes, f.Payload...)

	var packets [][]byte
	first := true
	for len(data) > 0 || first {
		pkt := make([]byte, tsPacketSize)
		pkt[0] = syncByte
		pusi := byte(0)
		if first {
			pusi = 1
		}
		pkt[1] = pusi<<6 | byte(f.Pid>>8)&0x1F
		pkt[2] = byte(f.Pid)

		headerLen := 4
		hasAdaptation := first && (f.Key || pcr90k >= 0)
		if hasAdaptation {
			af := buildAdaptationField(first && f.Key, pcr90k)
			pkt[3] = 0x30 | cc.next(f.Pid)
			copy(pkt[4:], af)
			headerLen = 4 + len(af)
		} else {
			pkt[3] = 0x10 | cc.next(f.Pid)
		}

		room := tsPacketSize - headerLen
		n := len(data)
		if n > room {
			n = room
		}
		copy(pkt[headerLen:], data[:n])
		for i := headerLen + n; i < tsPacketSize; i++ {
			pkt[i] = 0xFF
		}
		data = data[n:]
		packets = append(packets, pkt)
		first = false
	}
	return packets
}

// buildAdaptationField constructs a minimal adaptation field. randomAccess
// marks a keyframe access unit start; pcr90k >= 0 includes a PCR field.
func buildAdaptationField(randomAccess bool, pcr90k int64) []byte {
	flags := byte(0)
	if randomAccess {
		flags |= 0x40
	}
	var pcrBytes []byte
	if pcr90k >= 0 {
		flags |= 0x10
		pcrBytes = encodePCR(pcr90k)
	}
	length := 1 + len(pcrBytes)
	af := make([]byte, 1+length)
	af[0] = byte(length)
	af[1] = flags
	copy(af[2:], pcrBytes)
	return af
}

// encodePCR packs a 90kHz PCR base (27MHz extension fixed at 0) into the
// standard 6-byte program_clock_reference field.
func encodePCR(pcr90k int64) []byte {
	base := uint64(pcr90k) & 0x1FFFFFFFF // 33 bits
	out := make([]byte, 6)
	out[0] = byte(base >> 25)
	out[1] = byte(base >> 17)
	out[2] = byte(base >> 9)
	out[3] = byte(base >> 1)
	out[4] = byte(base<<7) | 0x7E // reserved bits + extension high bit
	out[5] = 0x00
	return out
}

func buildPESHeader(f Frame) []byte {
	hasDts := f.Dts != f.Pts
	ptsDtsFlags := byte(0x80)
	headerDataLen := 5
	if hasDts {
		ptsDtsFlags = 0xC0
		headerDataLen = 10
	}
	hdr := make([]byte, 9+headerDataLen)
	hdr[0], hdr[1], hdr[2] = 0x00, 0x00, 0x01
	hdr[3] = f.StreamID
	hdr[4], hdr[5] = 0x00, 0x00 // PES_packet_length left unbounded (video) per spec allowance
	hdr[6] = 0x80
	hdr[7] = ptsDtsFlags
	hdr[8] = byte(headerDataLen)
	ptsMarker := byte(0x02)
	if hasDts {
		ptsMarker = 0x03
	}
	writePTSDTS(hdr[9:14], ptsMarker, f.Pts)
	if hasDts {
		writePTSDTS(hdr[14:19], 0x01, f.Dts)
	}
	return hdr
}

// writePTSDTS packs a 33-bit timestamp into the 5-byte PTS/DTS field with
// the given 4-bit marker prefix (0010 for PTS-only, 0011 for PTS-of-pair,
// 0001 for DTS).
func writePTSDTS(out []byte, marker byte, ts uint64) {
	t := ts & 0x1FFFFFFFF
	out[0] = marker<<4 | byte(t>>29)&0x0E | 0x01
	binary.BigEndian.PutUint16(out[1:3], uint16(t>>14)&0xFFFE|0x0001)
	binary.BigEndian.PutUint16(out[3:5], uint16(t<<1)&0xFFFE|0x0001)
}

// packetizePAT builds the single PAT packet mapping program 1 to the PMT PID.
func packetizePAT(cc *ccTracker, programNumber uint16) []byte {
	section := make([]byte, 0, 13)
	section = append(section, 0x00) // table_id
	lengthPlaceholderIdx := len(section) + 1
	section = append(section, 0xB0, 0x00) // section_length placeholder
	section = append(section, 0x00, 0x01) // transport_stream_id
	section = append(section, 0xC1, 0x00, 0x00) // version/current/section/last
	section = append(section, byte(programNumber>>8), byte(programNumber))
	section = append(section, byte(PidPmt>>8)&0x1F|0xE0, byte(PidPmt))
	section[lengthPlaceholderIdx] = byte(len(section) - lengthPlaceholderIdx - 1 + 4)
	section = appendCRC32(section)
	return wrapSectionInTSPacket(PidPat, section, cc)
}

// packetizePMT builds the single PMT packet listing the video/audio (and
// optional SCTE) elementary streams.
func packetizePMT(cc *ccTracker, programNumber uint16, streams map[Pid]StreamType) []byte {
	section := make([]byte, 0, 32)
	section = append(section, 0x02) // table_id
	lengthPlaceholderIdx := len(section) + 1
	section = append(section, 0xB0, 0x00)
	section = append(section, byte(programNumber>>8), byte(programNumber))
	section = append(section, 0xC1, 0x00, 0x00)
	// Audio is PCR master from session start (spec's "audio authority at
	// startup": video PTS is derived relative to audio, not the reverse).
	pcrPid := PidAudio
	section = append(section, byte(pcrPid>>8)&0x1F|0xE0, byte(pcrPid))
	section = append(section, 0xF0, 0x00) // program_info_length = 0

	for pid, st := range streams {
		section = append(section, byte(st))
		section = append(section, byte(pid>>8)&0x1F|0xE0, byte(pid))
		section = append(section, 0xF0, 0x00)
	}
	section[lengthPlaceholderIdx] = byte(len(section) - lengthPlaceholderIdx - 1 + 4)
	section = appendCRC32(section)
	return wrapSectionInTSPacket(PidPmt, section, cc)
}

func wrapSectionInTSPacket(pid Pid, section []byte, cc *ccTracker) []byte {
	pkt := make([]byte, tsPacketSize)
	pkt[0] = syncByte
	pkt[1] = 0x40 | byte(pid>>8)&0x1F // payload_unit_start_indicator=1
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | cc.next(pid)
	pkt[4] = 0x00 // pointer_field
	copy(pkt[5:], section)
	for i := 5 + len(section); i < tsPacketSize; i++ {
		pkt[i] = 0xFF
	}
	return pkt
}

// appendCRC32 appends the MPEG-2 CRC32 of section (table_id through the
// byte before the CRC) to section, as required by PAT/PMT sections.
func appendCRC32(section []byte) []byte {
	crc := crc32Mpeg2(section)
	out := make([]byte, len(section)+4)
	copy(out, section)
	binary.BigEndian.PutUint32(out[len(section):], crc)
	return out
}

var crc32MpegTable [256]uint32

func init() {
	const poly = 0x04C11DB7
	for i := 0; i < 256; i++ {
		crc := uint32(i) << 24
		for b := 0; b < 8; b++ {
			if crc&0x80000000 != 0 {
				crc = (crc << 1) ^ poly
			} else {
				crc <<= 1
			}
		}
		crc32MpegTable[i] = crc
	}
}

func crc32Mpeg2(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc = (crc << 8) ^ crc32MpegTable[byte(crc>>24)^b]
	}
	return crc
}
