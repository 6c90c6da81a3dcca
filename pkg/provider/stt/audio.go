package stt

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Audio container formats recognised by [DetectFormat].
const (
	FormatPCM  = "pcm"
	FormatWAV  = "wav"
	FormatWebM = "webm"
	FormatOgg  = "ogg"
	FormatMP3  = "mp3"
)

const bitsPerSample = 16

// DetectFormat sniffs the container format of audio from its magic bytes.
// Anything unrecognised is assumed to be raw 16-bit PCM.
func DetectFormat(audio []byte) string {
	switch {
	case len(audio) >= 12 && bytes.Equal(audio[0:4], []byte("RIFF")) && bytes.Equal(audio[8:12], []byte("WAVE")):
		return FormatWAV
	case len(audio) >= 4 && bytes.Equal(audio[0:4], []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return FormatWebM
	case len(audio) >= 4 && bytes.Equal(audio[0:4], []byte("OggS")):
		return FormatOgg
	case len(audio) >= 3 && bytes.Equal(audio[0:3], []byte("ID3")):
		return FormatMP3
	case len(audio) >= 2 && audio[0] == 0xFF && audio[1]&0xE0 == 0xE0:
		return FormatMP3
	default:
		return FormatPCM
	}
}

// MIMEType returns the content type for a format reported by [DetectFormat].
func MIMEType(format string) string {
	switch format {
	case FormatWAV:
		return "audio/wav"
	case FormatWebM:
		return "audio/webm"
	case FormatOgg:
		return "audio/ogg"
	case FormatMP3:
		return "audio/mpeg"
	default:
		return "audio/l16"
	}
}

// FileExtension returns a file name extension for format.
func FileExtension(format string) string {
	switch format {
	case FormatPCM:
		return "wav"
	default:
		return format
	}
}

// AsContainer returns the clip in req as a self-describing container. Raw PCM
// is wrapped in WAV; containers are returned unchanged.
func AsContainer(req Request) (data []byte, format string) {
	format = DetectFormat(req.Audio)
	if format != FormatPCM {
		return req.Audio, format
	}
	sr, ch := req.SampleRate, req.Channels
	if sr <= 0 {
		sr = 16000
	}
	if ch <= 0 {
		ch = 1
	}
	return EncodeWAV(req.Audio, sr, ch), FormatWAV
}

// EncodeWAV wraps raw 16-bit signed little-endian PCM data in a standard
// RIFF/WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// RMS returns the root-mean-square amplitude of 16-bit little-endian PCM.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}
