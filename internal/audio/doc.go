// Package audio defines the frame and segment types shared by the pipeline
// and the sample conversions applied between a capture device and the VAD:
// int16 normalization, channel downmix, linear resampling, fixed-size frame
// slicing, mixing and WAV encoding for transcription uploads.
package audio
