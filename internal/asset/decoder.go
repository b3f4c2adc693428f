// Package asset supplies the concrete pipeline.DecoderFactory cmd/airengine
// wires into internal/control.Registry. No third-party codec SDK exists in
// this module's dependency surface, so every asset_uri scheme this package
// understands resolves to a synthetic or raw-format decoder rather than a
// real H.264/AAC bitstream decode.
package asset

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/slbailey/airengine/internal/pipeline"
	"github.com/slbailey/airengine/internal/producer"
)

// NewDecoderFactory builds a pipeline.DecoderFactory that dispatches on the
// asset_uri scheme of the segment it is asked to resolve. width, height,
// sampleRateHz, and audioChannels fix the house format every decoder this
// factory returns must produce, mirroring producer.NewPadProducer's own
// fixed-format contract.
func NewDecoderFactory(width, height, sampleRateHz, audioChannels int, log *slog.Logger) pipeline.DecoderFactory {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "asset_decoder_factory")

	return func(seg pipeline.Segment) (producer.Decoder, error) {
		u, err := url.Parse(seg.AssetURI)
		if err != nil {
			return nil, fmt.Errorf("asset: parse asset_uri %q: %w", seg.AssetURI, err)
		}

		switch u.Scheme {
		case "file":
			return newFileDecoder(u.Path, log)
		case "testpattern", "bars", "":
			return newBarsDecoder(seg, width, height, sampleRateHz, audioChannels), nil
		default:
			log.Warn("unknown asset_uri scheme, falling back to bars", "scheme", u.Scheme, "event_id", seg.EventID)
			return newBarsDecoder(seg, width, height, sampleRateHz, audioChannels), nil
		}
	}
}
