// ABOUTME: Microphone capture using malgo (miniaudio)
// ABOUTME: Delivers mono float32 samples from the default capture device
package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/Ashama-AI/ashama-go/internal/device/category"
	"github.com/gen2brain/malgo"
	"go.uber.org/zap"
)

// Microphone is an open capture device
type Microphone struct {
	mu         sync.Mutex
	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate int
	closed     bool
	logger     *zap.SugaredLogger
}

// MicrophoneSource opens the default capture device on demand
type MicrophoneSource struct {
	Logger *zap.SugaredLogger
}

// Open starts capturing at sampleRate. onSamples runs on the audio thread
// and must not block.
func (ms MicrophoneSource) Open(ctx context.Context, sampleRate int, onSamples func([]float32)) (*Microphone, error) {
	logger := ms.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}

	m := &Microphone{
		malgoCtx:   malgoCtx,
		sampleRate: sampleRate,
		logger:     logger,
	}

	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}
	if len(infos) == 0 {
		m.Close()
		return nil, category.ErrNotFound
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, frameCount uint32) {
			onSamples(decodeF32(pInputSamples, int(frameCount)))
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to initialize capture device: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		m.Close()
		return nil, fmt.Errorf("failed to start capture device: %w", err)
	}

	logger.Infow("microphone opened", "sample_rate", sampleRate, "device", infos[0].Name())
	return m, nil
}

// SampleRate returns the capture rate
func (m *Microphone) SampleRate() int {
	return m.sampleRate
}

// Close stops capture and releases the device. Safe to call repeatedly.
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.device != nil {
		m.device.Stop()
		m.device.Uninit()
		m.device = nil
	}
	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			m.logger.Warnw("failed to uninit malgo context", "error", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	m.logger.Infow("microphone closed")
	return nil
}

// decodeF32 converts little-endian float32 bytes to samples
func decodeF32(data []byte, frames int) []float32 {
	n := len(data) / 4
	if frames > 0 && frames < n {
		n = frames
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
