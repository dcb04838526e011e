// Package types defines the data that crosses package boundaries in UrbanSense:
// encoded camera frames and speech-recognition events. Domain-specific types
// (routes, settings, view states) live in their own packages; only the values
// shared by providers, devices and the session orchestrator are kept here to
// avoid import cycles.
package types

import (
	"encoding/base64"
	"strings"
)

// DefaultImageMIMEType is assumed when a frame carries no MIME type.
const DefaultImageMIMEType = "image/jpeg"

// Image is one encoded camera frame.
type Image struct {
	// Data is the encoded image (JPEG or PNG).
	Data []byte

	// MIMEType describes Data, e.g. "image/jpeg". Empty means
	// [DefaultImageMIMEType].
	MIMEType string
}

// MIME returns the frame's MIME type, falling back to [DefaultImageMIMEType].
func (i Image) MIME() string {
	if i.MIMEType == "" {
		return DefaultImageMIMEType
	}
	return i.MIMEType
}

// Base64 returns Data encoded as standard base64 without a data-URL prefix.
func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// DataURL returns the frame as a data: URL suitable for vision APIs that
// accept inline image URLs.
func (i Image) DataURL() string {
	return "data:" + i.MIME() + ";base64," + i.Base64()
}

// ImageFromDataURL decodes a "data:<mime>;base64,<payload>" URL. A bare base64
// payload is accepted and assumed to be JPEG.
func ImageFromDataURL(s string) (Image, error) {
	mime := DefaultImageMIMEType
	payload := s
	if rest, ok := strings.CutPrefix(s, "data:"); ok {
		header, data, found := strings.Cut(rest, ",")
		if found {
			payload = data
			if m, _, _ := strings.Cut(header, ";"); m != "" {
				mime = m
			}
		}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, err
	}
	return Image{Data: data, MIMEType: mime}, nil
}

// RecognitionKind discriminates [RecognitionEvent] values.
type RecognitionKind int

const (
	// RecognitionResult carries a final transcript.
	RecognitionResult RecognitionKind = iota

	// RecognitionEnd signals the recognizer stopped listening after an
	// utterance, a timeout, or an explicit stop.
	RecognitionEnd

	// RecognitionError carries an error code in [RecognitionEvent.Error].
	RecognitionError
)

// String implements [fmt.Stringer].
func (k RecognitionKind) String() string {
	switch k {
	case RecognitionResult:
		return "result"
	case RecognitionEnd:
		return "end"
	case RecognitionError:
		return "error"
	default:
		return "unknown"
	}
}

// Recognition error codes reported by device recognizers.
const (
	RecognitionErrNoSpeech          = "no-speech"
	RecognitionErrAudioCapture      = "audio-capture"
	RecognitionErrAborted           = "aborted"
	RecognitionErrNetwork           = "network"
	RecognitionErrNotAllowed        = "not-allowed"
	RecognitionErrServiceNotAllowed = "service-not-allowed"
)

// RecognitionEvent is one lifecycle event from a single-utterance recognizer.
type RecognitionEvent struct {
	Kind RecognitionKind

	// Transcript is the best alternative of the final result. Only set for
	// [RecognitionResult].
	Transcript string

	// Confidence of Transcript in [0, 1]. Zero when the recognizer does not
	// report one.
	Confidence float64

	// Error is the recognizer error code. Only set for [RecognitionError].
	Error string
}
