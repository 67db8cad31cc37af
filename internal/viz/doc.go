// Package viz renders run, campaign and sweep summaries for the terminal.
//
// Output is plain text styled with lipgloss; the angle trace is an
// asciigraph line chart. Angles are shown in degrees.
package viz
