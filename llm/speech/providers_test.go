package speech

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/voiceflow/types"
)

func TestOpenAISTTProvider_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "es", r.FormValue("language"))
		assert.Equal(t, "verbose_json", r.FormValue("response_format"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "audio.wav", header.Filename)
		body, _ := io.ReadAll(file)
		assert.Equal(t, "RIFF-bytes", string(body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":" hola mundo ","language":"spanish","duration":2.5}`))
	}))
	defer server.Close()

	p := NewOpenAISTTProvider(OpenAISTTConfig{APIKey: "sk-test", BaseURL: server.URL})
	resp, err := p.Transcribe(context.Background(), &STTRequest{
		Audio:    []byte("RIFF-bytes"),
		MIMEType: "audio/wav",
		Locale:   "es-CO",
	})
	require.NoError(t, err)

	assert.Equal(t, "openai-stt", resp.Provider)
	assert.Equal(t, "hola mundo", resp.Text)
	assert.InDelta(t, 2.5, resp.InputSeconds, 0.001)
	assert.Greater(t, resp.Latency, time.Duration(0))
}

func TestOpenAISTTProvider_Errors(t *testing.T) {
	t.Run("empty audio", func(t *testing.T) {
		p := NewOpenAISTTProvider(OpenAISTTConfig{})
		_, err := p.Transcribe(context.Background(), &STTRequest{})
		assert.Equal(t, types.ErrBadRequest, types.GetErrorCode(err))
	})

	t.Run("upstream 500", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusInternalServerError)
		}))
		defer server.Close()

		p := NewOpenAISTTProvider(OpenAISTTConfig{BaseURL: server.URL})
		_, err := p.Transcribe(context.Background(), &STTRequest{Audio: []byte("x")})
		require.Error(t, err)
		assert.Equal(t, types.ErrSTT, types.GetErrorCode(err))
		assert.True(t, types.IsRetryable(err))
	})

	t.Run("upstream gateway timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusGatewayTimeout)
		}))
		defer server.Close()

		p := NewOpenAISTTProvider(OpenAISTTConfig{BaseURL: server.URL})
		_, err := p.Transcribe(context.Background(), &STTRequest{Audio: []byte("x")})
		assert.True(t, types.IsTimeout(err))
	})

	t.Run("client timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		p := NewOpenAISTTProvider(OpenAISTTConfig{BaseURL: server.URL, Timeout: 20 * time.Millisecond})
		_, err := p.Transcribe(context.Background(), &STTRequest{Audio: []byte("x")})
		require.Error(t, err)
		assert.Equal(t, types.ErrProviderTimeout, types.GetErrorCode(err))
	})
}

func TestDeepgramProvider_Transcribe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/listen", r.URL.Path)
		assert.Equal(t, "nova-2", r.URL.Query().Get("model"))
		assert.Equal(t, "es-CO", r.URL.Query().Get("language"))
		assert.Equal(t, "Token dg-key", r.Header.Get("Authorization"))
		assert.Equal(t, "audio/webm", r.Header.Get("Content-Type"))

		_, _ = w.Write([]byte(`{
			"metadata": {"request_id": "r1", "duration": 3.2},
			"results": {"channels": [{"alternatives": [{"transcript": "buenos dias", "confidence": 0.9}]}]}
		}`))
	}))
	defer server.Close()

	p := NewDeepgramProvider(DeepgramConfig{APIKey: "dg-key", BaseURL: server.URL})
	resp, err := p.Transcribe(context.Background(), &STTRequest{
		Audio:    []byte("webm"),
		MIMEType: "audio/webm",
		Locale:   "es-CO",
	})
	require.NoError(t, err)
	assert.Equal(t, "deepgram", resp.Provider)
	assert.Equal(t, "buenos dias", resp.Text)
	assert.InDelta(t, 3.2, resp.InputSeconds, 0.001)
}

func TestOpenAITTSProvider_Synthesize(t *testing.T) {
	audio := make([]byte, 20000) // 20000 bytes @160kbps = 1s
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)
		var body openAITTSRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hola", body.Input)
		assert.Equal(t, "alloy", body.Voice)
		assert.Equal(t, "mp3", body.ResponseFormat)
		_, _ = w.Write(audio)
	}))
	defer server.Close()

	p := NewOpenAITTSProvider(OpenAITTSConfig{BaseURL: server.URL})
	resp, err := p.Synthesize(context.Background(), &TTSRequest{Text: "hola"})
	require.NoError(t, err)
	assert.Equal(t, "openai-tts", resp.Provider)
	assert.Equal(t, "audio/mpeg", resp.MIMEType)
	assert.Len(t, resp.AudioData, len(audio))
	assert.InDelta(t, 1.0, resp.OutputSeconds, 0.001)
	assert.Empty(t, resp.AudioURL)
}

func TestElevenLabsProvider_Synthesize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v1/text-to-speech/voice-1"))
		assert.Equal(t, "mp3_44100_128", r.URL.Query().Get("output_format"))
		assert.Equal(t, "xi-key", r.Header.Get("xi-api-key"))

		var body elevenLabsTTSRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "es", body.LanguageCode)
		_, _ = w.Write(make([]byte, 32000)) // 2s @128kbps
	}))
	defer server.Close()

	p := NewElevenLabsProvider(ElevenLabsConfig{APIKey: "xi-key", BaseURL: server.URL, VoiceID: "voice-1"})
	resp, err := p.Synthesize(context.Background(), &TTSRequest{Text: "hola", Locale: "es-CO"})
	require.NoError(t, err)
	assert.Equal(t, "elevenlabs", resp.Provider)
	assert.InDelta(t, 2.0, resp.OutputSeconds, 0.001)
}

func TestElevenLabsProvider_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"quota"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	p := NewElevenLabsProvider(ElevenLabsConfig{BaseURL: server.URL})
	_, err := p.Synthesize(context.Background(), &TTSRequest{Text: "hola"})
	require.Error(t, err)
	assert.Equal(t, types.ErrTTS, types.GetErrorCode(err))
	assert.False(t, types.IsRetryable(err))
}

func TestExtensionForMIME(t *testing.T) {
	assert.Equal(t, "wav", extensionForMIME("audio/wav"))
	assert.Equal(t, "webm", extensionForMIME("audio/webm; codecs=opus"))
	assert.Equal(t, "mp3", extensionForMIME("audio/mpeg"))
	assert.Equal(t, "mp3", extensionForMIME(""))
}
