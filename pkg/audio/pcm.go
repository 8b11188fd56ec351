// Package audio holds total, allocation-predictable helpers for the one
// format conversion this module actually needs: raw little-endian 16-bit
// PCM bytes to/from int16 samples, plus wrapping a PCM payload in a WAV
// container for providers that require one. A pure helper package with
// explicit error returns, so byte-twiddling doesn't scatter across call
// sites.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// BytesToInt16 decodes little-endian 16-bit PCM bytes into samples.
// len(raw) must be even; callers that accept untrusted frame lengths
// should validate that before calling (see dialog.IngestionBuffer).
func BytesToInt16(raw []byte) []int16 {
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
	}
	return out
}

// Int16ToBytes encodes samples into little-endian 16-bit PCM bytes.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(s))
	}
	return out
}

// ValidateFrameLength reports whether a raw byte frame is a whole number
// of 16-bit samples.
func ValidateFrameLength(raw []byte) error {
	if len(raw)%2 != 0 {
		return fmt.Errorf("audio: frame length %d is not a multiple of sample width 2", len(raw))
	}
	return nil
}

// RMSEnergy computes the root-mean-square energy of a sample window,
// normalized to [0,1] assuming full-scale int16. Used by the default VAD
// and by echo-correlation heuristics.
func RMSEnergy(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// WrapWAV wraps raw 16-bit mono PCM in a canonical WAV container, the
// format most REST ASR providers (Groq, OpenAI Whisper) expect as an
// upload rather than bare PCM.
func WrapWAV(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))                 // PCM
	binary.Write(buf, binary.LittleEndian, uint16(1))                 // mono
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))        // sample rate
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))      // byte rate (16-bit mono)
	binary.Write(buf, binary.LittleEndian, uint16(2))                 // block align
	binary.Write(buf, binary.LittleEndian, uint16(16))                // bits per sample

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// WrapWAVFromSamples is WrapWAV for already-decoded int16 samples.
func WrapWAVFromSamples(samples []int16, sampleRate int) []byte {
	return WrapWAV(Int16ToBytes(samples), sampleRate)
}
