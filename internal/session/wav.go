package session

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

const (
	wavPCMFormat      = 1
	wavBytesPerSample = 2
	wavBitsPerSample  = 16
)

// EncodeWAV renders mono 16-bit PCM samples as a complete wave file:
// RIFF/WAVE header, fmt chunk, then the samples little-endian.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	dataLen := len(samples) * wavBytesPerSample
	byteRate := sampleRate * wavBytesPerSample

	var buf bytes.Buffer
	buf.Grow(44 + dataLen)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavPCMFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(wavBytesPerSample))
	binary.Write(&buf, binary.LittleEndian, uint16(wavBitsPerSample))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// writeWAVFile writes the samples to path in a single pass.
func writeWAVFile(path string, samples []int16, sampleRate int) error {
	if err := os.WriteFile(path, EncodeWAV(samples, sampleRate), 0o644); err != nil {
		return fmt.Errorf("write wave file %s: %w", path, err)
	}
	return nil
}
