// Package scenes groups subtitle cues into editable scene ranges and lays
// out the scene package archived by the scenes step.
package scenes
