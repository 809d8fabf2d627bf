package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/sonroyaalmerol/kumavoice/internal/utils"
)

const (
	SampleRate = 48000
	Channels   = 2
	// FrameSize is samples per channel in one 20 ms Opus frame.
	FrameSize = 960
)

var ErrNoAudioStream = errors.New("input has no audio stream")

func init() {
	astiav.SetLogLevel(astiav.LogLevelFatal)
}

// Transcoder decodes a remote media URL and re-encodes it as 48 kHz stereo
// Opus frames ready for a voice connection.
type Transcoder struct {
	input       *astiav.FormatContext
	decoder     *astiav.CodecContext
	encoder     *astiav.CodecContext
	resampler   *astiav.SoftwareResampleContext
	fifo        *astiav.AudioFifo
	packet      *astiav.Packet
	frame       *astiav.Frame
	resampled   *astiav.Frame
	streamIndex int
	pts         int64

	// interrupter aborts blocking demuxer I/O once the caller's ctx is done
	interrupter   *astiav.IOInterrupter
	stopInterrupt func() bool
	interruptMu   sync.Mutex
	closed        bool
}

// Open prepares the demuxer, decoder and libopus encoder for url.
// headers are sent with every HTTP request the demuxer makes. Cancelling ctx
// aborts a pending open or read, including after Open has returned.
func Open(ctx context.Context, url string, headers map[string]string, bitrate int) (*Transcoder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := &Transcoder{
		packet:      astiav.AllocPacket(),
		frame:       astiav.AllocFrame(),
		resampled:   astiav.AllocFrame(),
		streamIndex: -1,
		interrupter: astiav.NewIOInterrupter(),
	}
	t.stopInterrupt = context.AfterFunc(ctx, t.interrupt)

	if err := t.openInput(url, headers); err != nil {
		t.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if err := t.openDecoder(); err != nil {
		t.Close()
		return nil, err
	}
	if err := t.openEncoder(bitrate); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

func (t *Transcoder) openInput(url string, headers map[string]string) error {
	t.input = astiav.AllocFormatContext()
	if t.input == nil {
		return errors.New("alloc format context")
	}
	t.input.SetIOInterrupter(t.interrupter)

	opts := astiav.NewDictionary()
	defer opts.Free()
	if strings.HasPrefix(url, "http") {
		_ = opts.Set("reconnect", "1", 0)
		_ = opts.Set("reconnect_streamed", "1", 0)
		_ = opts.Set("reconnect_delay_max", "5", 0)
		_ = opts.Set("timeout", "30000000", 0)
		if ua := headers["User-Agent"]; ua != "" {
			_ = opts.Set("user_agent", ua, 0)
		}
		if h := utils.BuildFFmpegHeaders(headers); h != "" {
			_ = opts.Set("headers", h, 0)
		}
	}

	if err := t.input.OpenInput(url, nil, opts); err != nil {
		// OpenInput frees the context on failure
		t.input = nil
		return fmt.Errorf("open input: %w", err)
	}
	if err := t.input.FindStreamInfo(nil); err != nil {
		return fmt.Errorf("find stream info: %w", err)
	}
	for _, s := range t.input.Streams() {
		if s.CodecParameters().MediaType() == astiav.MediaTypeAudio {
			t.streamIndex = s.Index()
			break
		}
	}
	if t.streamIndex < 0 {
		return ErrNoAudioStream
	}
	return nil
}

func (t *Transcoder) openDecoder() error {
	params := t.input.Streams()[t.streamIndex].CodecParameters()
	codec := astiav.FindDecoder(params.CodecID())
	if codec == nil {
		return fmt.Errorf("no decoder for %s", params.CodecID())
	}
	t.decoder = astiav.AllocCodecContext(codec)
	if t.decoder == nil {
		return errors.New("alloc decoder context")
	}
	if err := params.ToCodecContext(t.decoder); err != nil {
		return fmt.Errorf("decoder parameters: %w", err)
	}
	if err := t.decoder.Open(codec, nil); err != nil {
		return fmt.Errorf("open decoder: %w", err)
	}
	return nil
}

func (t *Transcoder) openEncoder(bitrate int) error {
	codec := astiav.FindEncoderByName("libopus")
	if codec == nil {
		codec = astiav.FindEncoder(astiav.CodecIDOpus)
	}
	if codec == nil {
		return errors.New("opus encoder not found (check ffmpeg installation)")
	}
	t.encoder = astiav.AllocCodecContext(codec)
	if t.encoder == nil {
		return errors.New("alloc encoder context")
	}
	t.encoder.SetBitRate(int64(bitrate))
	t.encoder.SetSampleRate(SampleRate)
	t.encoder.SetChannelLayout(astiav.ChannelLayoutStereo)
	t.encoder.SetSampleFormat(astiav.SampleFormatS16)
	t.encoder.SetTimeBase(astiav.NewRational(1, SampleRate))

	opts := astiav.NewDictionary()
	defer opts.Free()
	_ = opts.Set("application", "audio", 0)
	_ = opts.Set("frame_duration", "20", 0)
	_ = opts.Set("vbr", "on", 0)
	if err := t.encoder.Open(codec, opts); err != nil {
		return fmt.Errorf("open opus encoder: %w", err)
	}

	t.resampler = astiav.AllocSoftwareResampleContext()
	if t.resampler == nil {
		return errors.New("alloc resampler")
	}
	t.fifo = astiav.AllocAudioFifo(t.encoder.SampleFormat(), t.encoder.ChannelLayout().Channels(), FrameSize*2)
	if t.fifo == nil {
		return errors.New("alloc audio fifo")
	}
	return nil
}

// Run decodes until end of input, calling emit with each Opus frame.
// It stops early when ctx is done or emit returns an error.
func (t *Transcoder) Run(ctx context.Context, emit func([]byte) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transcoder panic: %v", r)
		}
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		t.packet.Unref()
		if err := t.input.ReadFrame(t.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if t.packet.StreamIndex() != t.streamIndex {
			continue
		}
		if err := t.decoder.SendPacket(t.packet); err != nil {
			if errors.Is(err, astiav.ErrEagain) {
				continue
			}
			return fmt.Errorf("decode: %w", err)
		}
		if err := t.drainDecoder(emit); err != nil {
			return err
		}
	}

	// flush decoder, fifo remainder and encoder
	_ = t.decoder.SendPacket(nil)
	if err := t.drainDecoder(emit); err != nil {
		return err
	}
	if err := t.processFifo(true, emit); err != nil {
		return err
	}
	if err := t.encoder.SendFrame(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return fmt.Errorf("flush encoder: %w", err)
	}
	return t.drainEncoder(emit)
}

func (t *Transcoder) drainDecoder(emit func([]byte) error) error {
	for {
		if err := t.decoder.ReceiveFrame(t.frame); err != nil {
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
				return nil
			}
			return fmt.Errorf("receive frame: %w", err)
		}
		err := t.pushToFifo(emit)
		t.frame.Unref()
		if err != nil {
			return err
		}
	}
}

func (t *Transcoder) pushToFifo(emit func([]byte) error) error {
	nb := int(astiav.RescaleQ(
		int64(t.frame.NbSamples()),
		astiav.NewRational(1, t.frame.SampleRate()),
		astiav.NewRational(1, SampleRate),
	))
	if nb <= 0 {
		return nil
	}

	t.resampled.Unref()
	t.resampled.SetChannelLayout(t.encoder.ChannelLayout())
	t.resampled.SetSampleFormat(t.encoder.SampleFormat())
	t.resampled.SetSampleRate(SampleRate)
	t.resampled.SetNbSamples(nb)
	if err := t.resampled.AllocBuffer(0); err != nil {
		return fmt.Errorf("alloc resample buffer: %w", err)
	}
	if err := t.resampler.ConvertFrame(t.frame, t.resampled); err != nil {
		return fmt.Errorf("resample: %w", err)
	}
	if _, err := t.fifo.Write(t.resampled); err != nil {
		return fmt.Errorf("fifo write: %w", err)
	}
	return t.processFifo(false, emit)
}

// processFifo encodes every full 20 ms frame in the fifo. With drain set the
// short tail is encoded too.
func (t *Transcoder) processFifo(drain bool, emit func([]byte) error) error {
	for {
		size := FrameSize
		if t.fifo.Size() < size {
			if !drain || t.fifo.Size() == 0 {
				return nil
			}
			size = t.fifo.Size()
		}

		t.resampled.Unref()
		t.resampled.SetNbSamples(size)
		t.resampled.SetChannelLayout(t.encoder.ChannelLayout())
		t.resampled.SetSampleFormat(t.encoder.SampleFormat())
		t.resampled.SetSampleRate(SampleRate)
		if err := t.resampled.AllocBuffer(0); err != nil {
			return fmt.Errorf("alloc encode buffer: %w", err)
		}
		if _, err := t.fifo.Read(t.resampled); err != nil {
			return fmt.Errorf("fifo read: %w", err)
		}

		t.resampled.SetPts(t.pts)
		t.pts += int64(size)
		if err := t.encoder.SendFrame(t.resampled); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		if err := t.drainEncoder(emit); err != nil {
			return err
		}
	}
}

func (t *Transcoder) drainEncoder(emit func([]byte) error) error {
	for {
		t.packet.Unref()
		if err := t.encoder.ReceivePacket(t.packet); err != nil {
			if errors.Is(err, astiav.ErrEof) || errors.Is(err, astiav.ErrEagain) {
				return nil
			}
			return fmt.Errorf("receive packet: %w", err)
		}
		data := t.packet.Data()
		frame := make([]byte, len(data))
		copy(frame, data)
		if err := emit(frame); err != nil {
			return err
		}
	}
}

func (t *Transcoder) interrupt() {
	t.interruptMu.Lock()
	defer t.interruptMu.Unlock()
	if !t.closed {
		t.interrupter.Interrupt()
	}
}

func (t *Transcoder) Close() {
	if t.stopInterrupt != nil {
		t.stopInterrupt()
	}
	t.interruptMu.Lock()
	t.closed = true
	t.interruptMu.Unlock()

	if t.fifo != nil {
		t.fifo.Free()
	}
	if t.resampler != nil {
		t.resampler.Free()
	}
	if t.resampled != nil {
		t.resampled.Free()
	}
	if t.frame != nil {
		t.frame.Free()
	}
	if t.packet != nil {
		t.packet.Free()
	}
	if t.decoder != nil {
		t.decoder.Free()
	}
	if t.encoder != nil {
		t.encoder.Free()
	}
	if t.input != nil {
		t.input.CloseInput()
		t.input.Free()
	}
	if t.interrupter != nil {
		t.interrupter.Free()
	}
}
