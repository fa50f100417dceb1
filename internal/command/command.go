/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package command defines the inbound commands of the rotation engine. Each command
// is a typed variant of the Command union; Decode is the only place that can fail.
package command

// Type names a command variant on the wire.
type Type string

const (
	TypeAdvance         Type = "advance"
	TypeSetPlaying      Type = "set_playing"
	TypeSetRoundLength  Type = "set_round_length"
	TypeReshuffle       Type = "reshuffle"
	TypeGoToSource      Type = "go_to_source"
	TypeBan             Type = "ban"
	TypeUnban           Type = "unban"
	TypeSetAutoSkip     Type = "set_auto_skip"
	TypeSetPlaybackMode Type = "set_playback_mode"
	TypeStartVote       Type = "start_vote"
	TypeStopVote        Type = "stop_vote"
	TypeConfigureVote   Type = "configure_vote"
	TypeConfigureHealth Type = "configure_health"
	TypeResetDefaults   Type = "reset_defaults"
	TypeCastBallot      Type = "cast_ballot"
	TypeProgress        Type = "playback_progress"
	TypeStall           Type = "playback_stall"
	TypePlaybackError   Type = "playback_error"
)

// Command is one inbound instruction for the scheduler.
type Command interface {
	Type() Type
}

// Direction of an advance.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// Step converts the direction into an index delta.
func (d Direction) Step() int {
	if d == Backward {
		return -1
	}
	return 1
}

type Advance struct {
	Direction Direction `json:"direction"`
}

type SetPlaying struct {
	Playing bool `json:"playing"`
}

type SetRoundLength struct {
	Seconds int `json:"seconds"`
}

type Reshuffle struct {
	Seed int64 `json:"seed,omitempty"`
}

type GoToSource struct {
	SourceID string `json:"source_id"`
}

type Ban struct {
	SourceID string `json:"source_id"`
}

type Unban struct {
	SourceID string `json:"source_id"`
}

type SetAutoSkip struct {
	Enabled bool `json:"enabled"`
}

type SetPlaybackMode struct {
	Mode string `json:"mode"`
}

// StartVote opens a manual vote. Lead and UI are advisory notice values reported in
// the snapshot; a manual vote opens its binding window immediately.
type StartVote struct {
	WindowSeconds int `json:"window_seconds"`
	LeadSeconds   int `json:"lead_seconds,omitempty"`
	UISeconds     int `json:"ui_seconds,omitempty"`
}

type StopVote struct{}

// ConfigureVote updates only the fields that are set.
type ConfigureVote struct {
	Enabled       *bool `json:"enabled,omitempty"`
	WindowSeconds *int  `json:"window_seconds,omitempty"`
	VoteAtSeconds *int  `json:"vote_at_seconds,omitempty"`
	LeadSeconds   *int  `json:"lead_seconds,omitempty"`
	UISeconds     *int  `json:"ui_seconds,omitempty"`
	StaySeconds   *int  `json:"stay_seconds,omitempty"`
}

// ConfigureHealth updates only the fields that are set.
type ConfigureHealth struct {
	StartTimeoutMS *int `json:"start_timeout_ms,omitempty"`
	StallTimeoutMS *int `json:"stall_timeout_ms,omitempty"`
	MaxStalls      *int `json:"max_stalls,omitempty"`
}

type ResetDefaults struct{}

type CastBallot struct {
	Identity string `json:"identity"`
	Choice   string `json:"choice"`
}

type PlaybackProgress struct {
	Token uint64 `json:"token"`
}

type PlaybackStall struct {
	Token  uint64 `json:"token"`
	Reason string `json:"reason"`
}

type PlaybackError struct {
	Token  uint64 `json:"token"`
	Reason string `json:"reason"`
}

func (Advance) Type() Type          { return TypeAdvance }
func (SetPlaying) Type() Type       { return TypeSetPlaying }
func (SetRoundLength) Type() Type   { return TypeSetRoundLength }
func (Reshuffle) Type() Type        { return TypeReshuffle }
func (GoToSource) Type() Type       { return TypeGoToSource }
func (Ban) Type() Type              { return TypeBan }
func (Unban) Type() Type            { return TypeUnban }
func (SetAutoSkip) Type() Type      { return TypeSetAutoSkip }
func (SetPlaybackMode) Type() Type  { return TypeSetPlaybackMode }
func (StartVote) Type() Type        { return TypeStartVote }
func (StopVote) Type() Type         { return TypeStopVote }
func (ConfigureVote) Type() Type    { return TypeConfigureVote }
func (ConfigureHealth) Type() Type  { return TypeConfigureHealth }
func (ResetDefaults) Type() Type    { return TypeResetDefaults }
func (CastBallot) Type() Type       { return TypeCastBallot }
func (PlaybackProgress) Type() Type { return TypeProgress }
func (PlaybackStall) Type() Type    { return TypeStall }
func (PlaybackError) Type() Type    { return TypePlaybackError }
