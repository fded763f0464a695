// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package log is the logging facade used throughout relcore. Entries carry the
// logging tags attached to the context (see logtags) and are formatted with
// redact so that values can be marked safe for reporting.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/logtags"
	"github.com/cockroachdb/redact"
)

// Severity is the severity of a log entry.
type Severity int32

const (
	// SeverityInfo is used for informational messages.
	SeverityInfo Severity = iota
	// SeverityWarning is used for messages that indicate a degraded outcome.
	SeverityWarning
	// SeverityError is used for failures.
	SeverityError
)

func (s Severity) letter() byte {
	switch s {
	case SeverityWarning:
		return 'W'
	case SeverityError:
		return 'E'
	default:
		return 'I'
	}
}

// Entry is a single formatted log entry, as passed to interceptors.
type Entry struct {
	Severity Severity
	Time     time.Time
	File     string
	Line     int
	Tags     string
	Message  redact.RedactableString
}

// Interceptor receives every entry emitted after it has been registered.
type Interceptor func(Entry)

var logging struct {
	verbosity  atomic.Int32
	redactable atomic.Bool

	mu struct {
		sync.Mutex
		out          io.Writer
		interceptors []*Interceptor
	}
}

func init() {
	logging.mu.out = os.Stderr
}

// SetOutput redirects log output. It returns a function restoring the
// previous writer.
func SetOutput(w io.Writer) (restore func()) {
	logging.mu.Lock()
	defer logging.mu.Unlock()
	prev := logging.mu.out
	logging.mu.out = w
	return func() {
		logging.mu.Lock()
		defer logging.mu.Unlock()
		logging.mu.out = prev
	}
}

// SetRedactable controls whether redaction markers are kept in the output.
func SetRedactable(b bool) {
	logging.redactable.Store(b)
}

// Intercept registers fn to receive every subsequent entry. The returned
// function unregisters it.
func Intercept(fn Interceptor) (cleanup func()) {
	p := &fn
	logging.mu.Lock()
	defer logging.mu.Unlock()
	logging.mu.interceptors = append(logging.mu.interceptors, p)
	return func() {
		logging.mu.Lock()
		defer logging.mu.Unlock()
		for i, q := range logging.mu.interceptors {
			if q == p {
				logging.mu.interceptors = append(logging.mu.interceptors[:i], logging.mu.interceptors[i+1:]...)
				return
			}
		}
	}
}

// SetVModule sets the global verbosity level.
func SetVModule(level int32) (restore func()) {
	prev := logging.verbosity.Swap(level)
	return func() { logging.verbosity.Store(prev) }
}

// V returns true if the verbosity is at least the given level.
func V(level int32) bool {
	return logging.verbosity.Load() >= level
}

// Infof logs to the INFO severity.
func Infof(ctx context.Context, format string, args ...interface{}) {
	logDepth(ctx, 1, SeverityInfo, format, args)
}

// Warningf logs to the WARNING severity.
func Warningf(ctx context.Context, format string, args ...interface{}) {
	logDepth(ctx, 1, SeverityWarning, format, args)
}

// Errorf logs to the ERROR severity.
func Errorf(ctx context.Context, format string, args ...interface{}) {
	logDepth(ctx, 1, SeverityError, format, args)
}

// VEventf logs an informational message if the verbosity is at least level.
func VEventf(ctx context.Context, level int32, format string, args ...interface{}) {
	if V(level) {
		logDepth(ctx, 1, SeverityInfo, format, args)
	}
}

// VEvent is VEventf without format arguments.
func VEvent(ctx context.Context, level int32, msg string) {
	if V(level) {
		logDepth(ctx, 1, SeverityInfo, "%s", []interface{}{redact.Safe(msg)})
	}
}

// WithLogTag returns a context with the given tag attached.
func WithLogTag(ctx context.Context, name string, value interface{}) context.Context {
	return logtags.AddTag(ctx, name, value)
}

func logDepth(ctx context.Context, depth int, sev Severity, format string, args []interface{}) {
	e := Entry{
		Severity: sev,
		Time:     time.Now(),
		Message:  redact.Sprintf(format, args...),
	}
	if _, file, line, ok := runtime.Caller(depth + 1); ok {
		e.File, e.Line = filepath.Base(file), line
	}
	if tags := logtags.FromContext(ctx); tags != nil {
		e.Tags = tags.String()
	}

	logging.mu.Lock()
	defer logging.mu.Unlock()
	for _, fn := range logging.mu.interceptors {
		(*fn)(e)
	}
	msg := string(e.Message)
	if !logging.redactable.Load() {
		msg = e.Message.StripMarkers()
	}
	tags := ""
	if e.Tags != "" {
		tags = "[" + e.Tags + "] "
	}
	fmt.Fprintf(logging.mu.out, "%c%s %s:%d  %s%s\n",
		sev.letter(), e.Time.UTC().Format("060102 15:04:05.000000"), e.File, e.Line, tags, msg)
}
