package sensor

import (
	"fmt"
	"time"
)

// dataRateBits maps an ADS1115 sample rate (SPS) to its config bits.
// Unknown rates fall back to 128 SPS.
func dataRateBits(sampleRate int) byte {
	switch sampleRate {
	case 8:
		return 0x0
	case 16:
		return 0x1
	case 32:
		return 0x2
	case 64:
		return 0x3
	case 128:
		return 0x4
	case 250:
		return 0x5
	case 475:
		return 0x6
	case 860:
		return 0x7
	}
	return 0x4
}

// muxBits maps a single-ended input channel to its multiplexer bits.
func muxBits(channel int) (byte, error) {
	if channel < 0 || channel > 3 {
		return 0, fmt.Errorf("invalid channel %d", channel)
	}
	return 0x4 + byte(channel), nil
}

// conversionDelay is how long a single-shot conversion takes, plus margin.
func conversionDelay(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		sampleRate = 128
	}
	delayMs := int(1000.0/float64(sampleRate)) + 2
	return time.Duration(delayMs) * time.Millisecond
}
