package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/shelves/internal/models"
	"github.com/desertthunder/shelves/internal/playback"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgShelvesChanged MsgKind = iota
	MsgPlaybackChanged
	MsgActionDone
	MsgSubscriptionClosed
)

// actionResult is the payload of [MsgActionDone].
type actionResult struct {
	label    string
	ok       bool
	fallback *playback.Fallback
	err      error
}

// shelvesChangedMsg is the constructor for [MsgShelvesChanged]
func shelvesChangedMsg(shelves []models.Shelf) Msg {
	return Msg{kind: MsgShelvesChanged, data: shelves}
}

// playbackChangedMsg is the constructor for [MsgPlaybackChanged]
func playbackChangedMsg(state models.PlaybackState) Msg {
	return Msg{kind: MsgPlaybackChanged, data: state}
}

// actionDoneMsg is the constructor for [MsgActionDone]
func actionDoneMsg(res actionResult) Msg {
	return Msg{kind: MsgActionDone, data: res}
}

// subscriptionClosedMsg is the constructor for [MsgSubscriptionClosed]
func subscriptionClosedMsg() Msg {
	return Msg{kind: MsgSubscriptionClosed}
}
