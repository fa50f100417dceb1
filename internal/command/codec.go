/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownType is returned for an envelope whose type is not a known command.
	ErrUnknownType = errors.New("unknown command type")
	// ErrInvalidPayload is returned when a payload is missing a required field.
	ErrInvalidPayload = errors.New("invalid command payload")
)

// Envelope is the wire form of a command.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var constructors = map[Type]func() Command{
	TypeAdvance:         func() Command { return &Advance{} },
	TypeSetPlaying:      func() Command { return &SetPlaying{} },
	TypeSetRoundLength:  func() Command { return &SetRoundLength{} },
	TypeReshuffle:       func() Command { return &Reshuffle{} },
	TypeGoToSource:      func() Command { return &GoToSource{} },
	TypeBan:             func() Command { return &Ban{} },
	TypeUnban:           func() Command { return &Unban{} },
	TypeSetAutoSkip:     func() Command { return &SetAutoSkip{} },
	TypeSetPlaybackMode: func() Command { return &SetPlaybackMode{} },
	TypeStartVote:       func() Command { return &StartVote{} },
	TypeStopVote:        func() Command { return &StopVote{} },
	TypeConfigureVote:   func() Command { return &ConfigureVote{} },
	TypeConfigureHealth: func() Command { return &ConfigureHealth{} },
	TypeResetDefaults:   func() Command { return &ResetDefaults{} },
	TypeCastBallot:      func() Command { return &CastBallot{} },
	TypeProgress:        func() Command { return &PlaybackProgress{} },
	TypeStall:           func() Command { return &PlaybackStall{} },
	TypePlaybackError:   func() Command { return &PlaybackError{} },
}

// Decode parses an envelope into its typed command value.
func Decode(data []byte) (Command, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return DecodeEnvelope(env)
}

// DecodeEnvelope converts an already parsed envelope.
func DecodeEnvelope(env Envelope) (Command, error) {
	ctor, ok := constructors[Type(strings.ToLower(strings.TrimSpace(string(env.Type))))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	ptr := ctor()
	payload := bytes.TrimSpace(env.Payload)
	if len(payload) > 0 && !bytes.Equal(payload, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.DisallowUnknownFields()
		if err := dec.Decode(ptr); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
	}
	cmd := deref(ptr)
	if err := validate(cmd); err != nil {
		return nil, err
	}
	return cmd, nil
}

// Encode wraps a command in its envelope.
func Encode(cmd Command) ([]byte, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", cmd.Type(), err)
	}
	return json.Marshal(Envelope{Type: cmd.Type(), Payload: payload})
}

func deref(c Command) Command {
	switch v := c.(type) {
	case *Advance:
		if v.Direction == "" {
			v.Direction = Forward
		}
		return *v
	case *SetPlaying:
		return *v
	case *SetRoundLength:
		return *v
	case *Reshuffle:
		return *v
	case *GoToSource:
		return *v
	case *Ban:
		return *v
	case *Unban:
		return *v
	case *SetAutoSkip:
		return *v
	case *SetPlaybackMode:
		return *v
	case *StartVote:
		return *v
	case *StopVote:
		return *v
	case *ConfigureVote:
		return *v
	case *ConfigureHealth:
		return *v
	case *ResetDefaults:
		return *v
	case *CastBallot:
		return *v
	case *PlaybackProgress:
		return *v
	case *PlaybackStall:
		return *v
	case *PlaybackError:
		return *v
	}
	return c
}

func validate(c Command) error {
	switch v := c.(type) {
	case Advance:
		if v.Direction != Forward && v.Direction != Backward {
			return fmt.Errorf("%w: direction %q", ErrInvalidPayload, v.Direction)
		}
	case GoToSource:
		if strings.TrimSpace(v.SourceID) == "" {
			return fmt.Errorf("%w: source_id required", ErrInvalidPayload)
		}
	case Ban:
		if strings.TrimSpace(v.SourceID) == "" {
			return fmt.Errorf("%w: source_id required", ErrInvalidPayload)
		}
	case Unban:
		if strings.TrimSpace(v.SourceID) == "" {
			return fmt.Errorf("%w: source_id required", ErrInvalidPayload)
		}
	case CastBallot:
		if strings.TrimSpace(v.Identity) == "" {
			return fmt.Errorf("%w: identity required", ErrInvalidPayload)
		}
		switch strings.ToLower(strings.TrimSpace(v.Choice)) {
		case "advance", "stay":
		default:
			return fmt.Errorf("%w: choice %q", ErrInvalidPayload, v.Choice)
		}
	case PlaybackProgress:
		if v.Token == 0 {
			return fmt.Errorf("%w: token required", ErrInvalidPayload)
		}
	case PlaybackStall:
		if v.Token == 0 {
			return fmt.Errorf("%w: token required", ErrInvalidPayload)
		}
	case PlaybackError:
		if v.Token == 0 {
			return fmt.Errorf("%w: token required", ErrInvalidPayload)
		}
	}
	return nil
}
