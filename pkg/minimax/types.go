package minimax

// Speech synthesis models.
const (
	// ModelSpeech01Turbo is the low-latency synthesis model used for
	// real-time voice interactions.
	ModelSpeech01Turbo = "speech-01-turbo"

	// ModelSpeech01HD is the high-quality synthesis model.
	ModelSpeech01HD = "speech-01-hd"
)

// Audio output formats.
const (
	AudioFormatPCM = "pcm"
	AudioFormatMP3 = "mp3"
	AudioFormatWAV = "wav"
)

// SpeechRequest is the request for speech synthesis.
type SpeechRequest struct {
	// Model is the model version.
	Model string `json:"model" yaml:"model"`

	// Text is the text to synthesize (max 10,000 characters).
	Text string `json:"text" yaml:"text"`

	// GroupID is the account group, filled in from the client when unset.
	GroupID string `json:"group_id,omitempty" yaml:"group_id,omitempty"`

	// VoiceSetting contains voice configuration.
	VoiceSetting *VoiceSetting `json:"voice_setting,omitempty" yaml:"voice_setting,omitempty"`

	// AudioSetting contains audio configuration.
	AudioSetting *AudioSetting `json:"audio_setting,omitempty" yaml:"audio_setting,omitempty"`

	// LanguageBoost enhances specific language pronunciation.
	LanguageBoost string `json:"language_boost,omitempty" yaml:"language_boost,omitempty"`
}

// VoiceSetting contains voice configuration.
type VoiceSetting struct {
	// VoiceID is the voice identifier.
	VoiceID string `json:"voice_id" yaml:"voice_id"`

	// Speed is the speech speed (0.5-2.0, default 1.0).
	Speed float64 `json:"speed,omitempty" yaml:"speed,omitempty"`

	// Vol is the volume (0-10, default 1.0).
	Vol float64 `json:"vol,omitempty" yaml:"vol,omitempty"`

	// Pitch shifts the voice pitch (-12 to 12 semitones).
	Pitch int `json:"pitch" yaml:"pitch"`

	// Emotion selects the voice emotion (happy, sad, angry, ...).
	Emotion string `json:"emotion,omitempty" yaml:"emotion,omitempty"`
}

// AudioSetting contains audio configuration.
type AudioSetting struct {
	// SampleRate is the sample rate: 8000, 16000, 22050, 24000, 32000, 44100.
	SampleRate int `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`

	// Bitrate is the bitrate for compressed formats.
	Bitrate int `json:"bitrate,omitempty" yaml:"bitrate,omitempty"`

	// Format is the audio format: pcm, mp3, wav.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`

	// Channel is the channel count (1 or 2).
	Channel int `json:"channel,omitempty" yaml:"channel,omitempty"`

	// BitsPerSample is the sample depth for pcm output (8 or 16).
	BitsPerSample int `json:"bits_per_sample,omitempty" yaml:"bits_per_sample,omitempty"`
}

// AudioInfo contains metadata about generated audio.
type AudioInfo struct {
	// AudioLength is the duration in milliseconds.
	AudioLength int `json:"audio_length"`

	// AudioSampleRate is the sample rate.
	AudioSampleRate int `json:"audio_sample_rate"`

	// AudioSize is the size in bytes.
	AudioSize int `json:"audio_size"`
}

// SpeechResponse is the result of synchronous speech synthesis.
type SpeechResponse struct {
	// Audio is the decoded audio data.
	Audio []byte `json:"-"`

	// AudioURL is the audio URL (when output format is "url").
	AudioURL string `json:"audio_url,omitempty"`

	// ExtraInfo contains audio metadata.
	ExtraInfo *AudioInfo `json:"extra_info"`

	// TraceID is the request trace ID.
	TraceID string `json:"trace_id"`
}

// SpeechChunk represents a chunk of streaming speech data.
type SpeechChunk struct {
	// Audio is the decoded audio data (may be nil).
	Audio []byte

	// Status is the status code: 1=generating, 2=complete.
	Status int `json:"status"`

	// ExtraInfo contains audio metadata (usually in last chunk).
	ExtraInfo *AudioInfo `json:"extra_info,omitempty"`

	// TraceID is the request trace ID (usually in last chunk).
	TraceID string `json:"trace_id,omitempty"`
}
