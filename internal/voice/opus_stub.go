//go:build !opus

package voice

import "errors"

// Builds without the opus tag carry no libopus; the Discord adapters then
// fail at construction and tests use fake codecs.
var errOpusUnavailable = errors.New("opus support not compiled in (build with -tags opus)")

func newOpusDecoder() (opusDecoder, error) { return nil, errOpusUnavailable }

func newOpusEncoder() (opusEncoder, error) { return nil, errOpusUnavailable }
