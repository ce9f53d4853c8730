package voice

import (
	"encoding/binary"
	"testing"
)

func TestRenderToneProducesValidWAV(t *testing.T) {
	data := renderTone(523.25, 783.99, 350)

	if len(data) < 44 {
		t.Fatalf("wav too short: %d bytes", len(data))
	}
	if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE markers")
	}
	dataLen := binary.LittleEndian.Uint32(data[40:44])
	if int(dataLen) != len(data)-44 {
		t.Errorf("data chunk length %d does not match payload %d", dataLen, len(data)-44)
	}

	wantSamples := cueSampleRate * 350 / 1000
	if int(dataLen)/2 != wantSamples {
		t.Errorf("got %d samples, want %d", dataLen/2, wantSamples)
	}
}

func TestRenderToneFadesToSilence(t *testing.T) {
	data := renderTone(440, 440, 100)
	pcm := data[44:]

	first := int16(binary.LittleEndian.Uint16(pcm[:2]))
	last := int16(binary.LittleEndian.Uint16(pcm[len(pcm)-2:]))
	if first != 0 {
		t.Errorf("first sample = %d, want 0", first)
	}
	if last > 100 || last < -100 {
		t.Errorf("last sample = %d, want near 0", last)
	}
}
