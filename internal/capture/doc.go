// Package capture opens audio devices and delivers their input as fixed
// 30ms mono frames at 16 kHz. Microphones are read through PortAudio,
// system output is captured through miniaudio loopback, and WAV files can
// be replayed for offline runs.
package capture
