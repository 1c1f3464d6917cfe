package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// DecodeWAV parses a RIFF/WAVE file into mono PCM16 samples. Stereo input
// is collapsed by taking the left channel. The sample rate must match the
// engine's configured rate exactly; no resampling is performed at runtime.
func DecodeWAV(data []byte, wantRate int) ([]int16, error) {
	if len(data) < 44 {
		return nil, fmt.Errorf("wav data too short")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a valid WAV file")
	}

	var (
		channels   int
		sampleRate int
		bits       int
		pcm        []byte
	)

	// Walk chunks to find "fmt " and "data".
	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8

		switch chunkID {
		case "fmt ":
			if body+16 > len(data) {
				return nil, fmt.Errorf("truncated fmt chunk")
			}
			format := int(binary.LittleEndian.Uint16(data[body : body+2]))
			if format != 1 {
				return nil, fmt.Errorf("unsupported WAV format %d (want PCM)", format)
			}
			channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			bits = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
		case "data":
			end := body + chunkSize
			if end > len(data) {
				end = len(data)
			}
			pcm = data[body:end]
		}

		pos = body + chunkSize
		// Chunks are word-aligned.
		if chunkSize%2 != 0 {
			pos++
		}
	}

	if pcm == nil {
		return nil, fmt.Errorf("data chunk not found in WAV")
	}
	if bits != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d (want 16)", bits)
	}
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("unsupported channel count %d", channels)
	}
	if wantRate > 0 && sampleRate != wantRate {
		return nil, fmt.Errorf("sample rate mismatch: file is %d Hz, engine configured for %d Hz", sampleRate, wantRate)
	}

	frameBytes := 2 * channels
	n := len(pcm) / frameBytes
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		// Left channel only for stereo sources.
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*frameBytes : i*frameBytes+2]))
	}
	return samples, nil
}

// LoadWAVFile reads and decodes a WAV file from disk.
func LoadWAVFile(path string, wantRate int) ([]int16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeWAV(data, wantRate)
}

// EncodeWAV wraps mono PCM16 samples in a WAV container.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAV(&buf, samples, sampleRate); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteWAV writes mono PCM16 samples to out as a WAV stream.
func WriteWAV(out io.Writer, samples []int16, sampleRate int) error {
	const (
		numChannels   = 1
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	dataSize := uint32(len(samples) * 2)
	byteRate := uint32(sampleRate * numChannels * bitsPerSample / 8)
	blockAlign := uint16(numChannels * bitsPerSample / 8)

	if _, err := out.Write([]byte("RIFF")); err != nil {
		return err
	}
	if err := binary.Write(out, binary.LittleEndian, uint32(36)+dataSize); err != nil {
		return err
	}
	if _, err := out.Write([]byte("WAVE")); err != nil {
		return err
	}

	if _, err := out.Write([]byte("fmt ")); err != nil {
		return err
	}
	if err := binary.Write(out, binary.LittleEndian, uint32(16)); err != nil {
		return err
	}
	if err := binary.Write(out, binary.LittleEndian, uint16(audioFormat)); err != nil {
		return err
	}
	if err := binary.Write(out, binary.LittleEndian, uint16(numChannels)); err != nil {
		return err
	}
	if err := binary.Write(out, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return err
	}
	if err := binary.Write(out, binary.LittleEndian, byteRate); err != nil {
		return err
	}
	if err := binary.Write(out, binary.LittleEndian, blockAlign); err != nil {
		return err
	}
	if err := binary.Write(out, binary.LittleEndian, uint16(bitsPerSample)); err != nil {
		return err
	}

	if _, err := out.Write([]byte("data")); err != nil {
		return err
	}
	if err := binary.Write(out, binary.LittleEndian, dataSize); err != nil {
		return err
	}
	return binary.Write(out, binary.LittleEndian, samples)
}
