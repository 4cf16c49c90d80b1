// Package transcription sends speech segments to a speech-to-text backend.
// Two backends are provided: a generic multipart HTTP client with retry
// and exponential backoff, and an OpenAI Whisper client. Both encode the
// segment as 16-bit mono WAV and return the transcript as text fragments.
package transcription
