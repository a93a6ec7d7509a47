// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package gpu

import (
	"log/slog"
	"sync/atomic"
)

// discard is the logger of a compositor that no engine has attached.
var discard = slog.New(slog.DiscardHandler)

// compositorLog holds one compositor's logger. The owning engine replaces
// it while dispatches on other goroutines may be logging.
//
// Events: device selection and shared-device switches at INFO, per-dispatch
// sizes and timings at DEBUG, readback failures at WARN.
type compositorLog struct {
	p atomic.Pointer[slog.Logger]
}

func (l *compositorLog) set(logger *slog.Logger) {
	if logger == nil {
		logger = discard
	}
	l.p.Store(logger)
}

func (l *compositorLog) get() *slog.Logger {
	if logger := l.p.Load(); logger != nil {
		return logger
	}
	return discard
}
