// Package audio provides audio processing utilities.
//
// This package serves as an umbrella for audio-related sub-packages:
//
//   - pcm: PCM (Pulse Code Modulation) format math and silence generation
//   - wav: RIFF/WAV containerization of raw PCM16
//   - resampler: sample-rate conversion for playback sinks
package audio
