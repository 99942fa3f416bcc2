/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package noria

import "go.uber.org/zap"

// ZapLogger adapts a *zap.SugaredLogger to the Logger interface, the
// same way mircat wires a *zap.Logger behind mirbft's Logger.
type ZapLogger struct {
	S *zap.SugaredLogger
}

// NewZapLogger wraps an existing zap logger, naming it for the given
// domain so log lines can be attributed when many domains share a
// process.
func NewZapLogger(base *zap.Logger, domainName string) ZapLogger {
	return ZapLogger{S: base.Named(domainName).Sugar()}
}

func (z ZapLogger) Log(level Level, text string, args ...interface{}) {
	switch level {
	case LevelDebug:
		z.S.Debugw(text, args...)
	case LevelInfo:
		z.S.Infow(text, args...)
	case LevelWarn:
		z.S.Warnw(text, args...)
	case LevelError:
		z.S.Errorw(text, args...)
	default:
		z.S.Infow(text, args...)
	}
}
