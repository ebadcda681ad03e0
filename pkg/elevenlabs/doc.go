// Package elevenlabs provides a client for the ElevenLabs text-to-speech
// API.
//
// The gateway uses it as the fallback synthesis provider. Unlike MiniMax it
// streams raw PCM over chunked HTTP rather than Server-Sent Events, so the
// stream yields plain byte slices.
package elevenlabs
