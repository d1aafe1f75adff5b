package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/voiceturn/backend/internal/config"
	"github.com/zhouzirui/voiceturn/backend/internal/service/extraction"
	"github.com/zhouzirui/voiceturn/backend/internal/service/speech"
)

func TestBuildDefaultStack(t *testing.T) {
	cfg := &config.Config{Providers: config.ProviderSelection{
		STT: config.STTWhisper, LLM: config.LLMHeuristic, TTS: config.TTSElevenLabs,
	}}

	set, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.IsType(t, &speech.Whisper{}, set.Transcriber)
	assert.IsType(t, &extraction.Heuristic{}, set.Extractor)
	assert.IsType(t, &speech.ElevenLabs{}, set.Synthesizer)
	assert.Equal(t, Names{STT: "whisper", LLM: "heuristic", TTS: "elevenlabs"}, set.Names)
}

func TestBuildVolcengineSpeech(t *testing.T) {
	cfg := &config.Config{Providers: config.ProviderSelection{
		STT: config.STTVolcengine, LLM: config.LLMHeuristic, TTS: config.TTSVolcengine,
	}}

	set, err := Build(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &speech.VolcengineASR{}, set.Transcriber)
	assert.IsType(t, &speech.VolcengineTTS{}, set.Synthesizer)
}

func TestBuildArkWithoutCredentials(t *testing.T) {
	cfg := &config.Config{Providers: config.ProviderSelection{
		STT: config.STTWhisper, LLM: config.LLMArk, TTS: config.TTSElevenLabs,
	}}

	_, err := Build(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestBuildUnknownProvider(t *testing.T) {
	cfg := &config.Config{Providers: config.ProviderSelection{
		STT: "deepgram", LLM: config.LLMHeuristic, TTS: config.TTSElevenLabs,
	}}

	_, err := Build(context.Background(), cfg, nil)
	assert.ErrorContains(t, err, "deepgram")
}
