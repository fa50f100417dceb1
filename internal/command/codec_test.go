/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package command

import (
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Command
	}{
		{"advance default", `{"type":"advance"}`, Advance{Direction: Forward}},
		{"advance backward", `{"type":"advance","payload":{"direction":"backward"}}`, Advance{Direction: Backward}},
		{"set playing", `{"type":"set_playing","payload":{"playing":true}}`, SetPlaying{Playing: true}},
		{"round length", `{"type":"set_round_length","payload":{"seconds":90}}`, SetRoundLength{Seconds: 90}},
		{"go to", `{"type":"go_to_source","payload":{"source_id":"cam-2"}}`, GoToSource{SourceID: "cam-2"}},
		{"ban", `{"type":"ban","payload":{"source_id":"cam-3"}}`, Ban{SourceID: "cam-3"}},
		{"stop vote null payload", `{"type":"stop_vote","payload":null}`, StopVote{}},
		{"case insensitive type", `{"type":" Reset_Defaults "}`, ResetDefaults{}},
		{"ballot", `{"type":"cast_ballot","payload":{"identity":"u1","choice":"stay"}}`, CastBallot{Identity: "u1", Choice: "stay"}},
		{"stall", `{"type":"playback_stall","payload":{"token":7,"reason":"buffering"}}`, PlaybackStall{Token: 7, Reason: "buffering"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecodeConfigureVotePartial(t *testing.T) {
	got, err := Decode([]byte(`{"type":"configure_vote","payload":{"window_seconds":45}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	cv, ok := got.(ConfigureVote)
	if !ok {
		t.Fatalf("Decode() type = %T, want ConfigureVote", got)
	}
	if cv.WindowSeconds == nil || *cv.WindowSeconds != 45 {
		t.Errorf("WindowSeconds = %v, want 45", cv.WindowSeconds)
	}
	if cv.Enabled != nil || cv.VoteAtSeconds != nil {
		t.Errorf("unset fields should stay nil: %#v", cv)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"unknown", `{"type":"explode"}`, ErrUnknownType},
		{"bad direction", `{"type":"advance","payload":{"direction":"sideways"}}`, ErrInvalidPayload},
		{"ban without id", `{"type":"ban","payload":{}}`, ErrInvalidPayload},
		{"bad choice", `{"type":"cast_ballot","payload":{"identity":"u","choice":"maybe"}}`, ErrInvalidPayload},
		{"zero token", `{"type":"playback_progress","payload":{"token":0}}`, ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := Decode([]byte(`{"type":"ban","payload":{"source_id":"a","extra":1}}`)); err == nil {
		t.Error("Decode() with unknown field should fail")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Error("Decode() of garbage should fail")
	}
}

func TestEncodeDecode(t *testing.T) {
	in := StartVote{WindowSeconds: 30, LeadSeconds: 5}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out != in {
		t.Errorf("round trip = %#v, want %#v", out, in)
	}
}
