// Package minimax provides a client for the MiniMax speech synthesis API.
//
// The gateway uses it as the primary text-to-speech provider: streaming
// synthesis over Server-Sent Events with hex-encoded PCM chunks, which maps
// directly onto the device wire format.
//
// Basic usage:
//
//	client := minimax.NewClient(apiKey, minimax.WithGroupID(groupID))
//	for chunk, err := range client.Speech.SynthesizeStream(ctx, &minimax.SpeechRequest{
//		Model: minimax.ModelSpeech01Turbo,
//		Text:  "hello there",
//	}) {
//		if err != nil {
//			return err
//		}
//		play(chunk.Audio)
//	}
package minimax
