// Package subtitles holds the SRT model shared by the pipeline steps.
//
// Cues are parsed from and encoded to SRT, flattened to plain text for the
// translated transcript, clipped to time windows for scene bundles, and
// cleaned of the credit lines speech-to-text models invent over silence.
package subtitles
