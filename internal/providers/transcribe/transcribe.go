// Package transcribe converts a recorded voice clip to text.
package transcribe

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"reelgen/internal/domain"
)

// Request is one audio clip. SampleRate is advisory and only forwarded to
// servers that use it.
type Request struct {
	Audio      []byte
	SampleRate int
}

// Transcriber turns audio into text. Failures wrap domain.ErrTranscription.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (string, error)
}

var (
	errEmptyAudio      = errors.New("audio is empty")
	errEmptyTranscript = errors.New("transcript is empty")
)

// Inspect validates the clip and returns a filename whose extension names
// its container. WAV files must carry an intact RIFF header with a data
// chunk; other containers are identified by their magic bytes.
func Inspect(audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", domain.Transcription(errEmptyAudio)
	}
	switch {
	case bytes.HasPrefix(audio, []byte("RIFF")):
		if err := checkWAV(audio); err != nil {
			return "", domain.Transcription(err)
		}
		return "audio.wav", nil
	case bytes.HasPrefix(audio, []byte("OggS")):
		return "audio.ogg", nil
	case bytes.HasPrefix(audio, []byte("fLaC")):
		return "audio.flac", nil
	case bytes.HasPrefix(audio, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "audio.webm", nil
	case bytes.HasPrefix(audio, []byte("ID3")), len(audio) > 1 && audio[0] == 0xFF && audio[1]&0xE0 == 0xE0:
		return "audio.mp3", nil
	case len(audio) > 8 && string(audio[4:8]) == "ftyp":
		return "audio.m4a", nil
	}
	if ct := http.DetectContentType(audio); strings.HasPrefix(ct, "audio/") {
		return "audio.bin", nil
	}
	return "", domain.Transcription(errors.New("audio format not recognized"))
}

func checkWAV(audio []byte) error {
	if len(audio) < 12 || string(audio[8:12]) != "WAVE" {
		return errors.New("malformed wav header")
	}
	pos := 12
	for pos+8 <= len(audio) {
		id := string(audio[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(audio[pos+4 : pos+8]))
		if id == "data" {
			if size == 0 || pos+8 >= len(audio) {
				return errors.New("wav has no samples")
			}
			return nil
		}
		pos += 8 + size + size%2
	}
	return errors.New("wav has no data chunk")
}

func finish(text string, err error) (string, error) {
	if err != nil {
		return "", domain.Transcription(err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.Transcription(errEmptyTranscript)
	}
	return text, nil
}

type whisperClient interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Whisper transcribes with OpenAI's hosted speech recognition.
type Whisper struct {
	client whisperClient
}

// NewWhisper wires an OpenAI client.
func NewWhisper(client whisperClient) *Whisper {
	return &Whisper{client: client}
}

// Transcribe fulfils the Transcriber interface.
func (w *Whisper) Transcribe(ctx context.Context, req Request) (string, error) {
	filename, err := Inspect(req.Audio)
	if err != nil {
		return "", err
	}
	return finish(w.client.Transcribe(ctx, bytes.NewReader(req.Audio), filename))
}

type modelServerASRClient interface {
	Transcribe(ctx context.Context, audio []byte, filename string, sampleRate int) (string, error)
}

// ModelServer transcribes on a self-hosted speech recognition server.
type ModelServer struct {
	client modelServerASRClient
}

// NewModelServer wires the model server client.
func NewModelServer(client modelServerASRClient) *ModelServer {
	return &ModelServer{client: client}
}

// Transcribe fulfils the Transcriber interface.
func (m *ModelServer) Transcribe(ctx context.Context, req Request) (string, error) {
	filename, err := Inspect(req.Audio)
	if err != nil {
		return "", err
	}
	if req.SampleRate < 0 {
		return "", domain.Transcription(fmt.Errorf("invalid sample rate %d", req.SampleRate))
	}
	return finish(m.client.Transcribe(ctx, req.Audio, filename, req.SampleRate))
}

var (
	_ Transcriber = (*Whisper)(nil)
	_ Transcriber = (*ModelServer)(nil)
)
