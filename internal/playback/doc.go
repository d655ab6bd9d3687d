// Package playback drives a Spotify Connect device.
//
// A [Session] turns the Web API player endpoints into a stream of events. The [Activator] makes the
// session's device the active one. The [Controller] owns the playback state, serialises play
// requests and derives track navigation from the current context. [NowPlaying] maps the playing
// track back onto a shelf for highlighting.
package playback
