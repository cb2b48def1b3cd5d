// Package audio plays announcement clips.
// It uses the beep library to decode OGG Vorbis, MP3 and WAV files and
// hands them to the system speaker without waiting for playback to end.
package audio
