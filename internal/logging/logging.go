/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process. format is "console" or "json"; empty
// picks console in development and JSON everywhere else.
func Setup(environment, format string) zerolog.Logger {
	return SetupWithWriter(environment, format, os.Stdout)
}

// SetupWithWriter configures zerolog to write to out.
func SetupWithWriter(environment, format string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if environment == "development" {
		level = zerolog.DebugLevel
	}

	if format == "" {
		format = "json"
		if environment == "development" {
			format = "console"
		}
	}

	writer := out
	if format == "console" {
		// Console writer for human-readable output
		writer = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(writer).With().Timestamp().Logger().Level(level)
	log.Logger = logger
	return logger
}
