// Package overlay abstracts the status surface shown to the user while a
// dictation session runs. The animated window itself lives outside this
// process; the default implementation reports through the structured log.
package overlay
