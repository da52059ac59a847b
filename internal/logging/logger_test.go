package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	infos []string
}

func (r *recordingLogger) Debug(string, ...any) {}
func (r *recordingLogger) Info(format string, args ...any) {
	r.infos = append(r.infos, format)
}
func (r *recordingLogger) Warn(string, ...any)  {}
func (r *recordingLogger) Error(string, ...any) {}

func TestOrNopReturnsNopForNilInterface(t *testing.T) {
	var l Logger
	got := OrNop(l)
	require.NotNil(t, got)
	got.Info("should not panic")
}

func TestOrNopReturnsNopForTypedNilPointer(t *testing.T) {
	var r *recordingLogger
	got := OrNop(r)
	_, ok := got.(nopLogger)
	require.True(t, ok, "expected nop logger for typed-nil pointer, got %T", got)
}

func TestMultiFansOutToEveryLogger(t *testing.T) {
	a := &recordingLogger{}
	b := &recordingLogger{}
	m := Multi(a, b, nil)

	m.Info("hello")

	require.Len(t, a.infos, 1)
	require.Len(t, b.infos, 1)
}

func TestMultiFlattensNestedMulti(t *testing.T) {
	a := &recordingLogger{}
	b := &recordingLogger{}
	inner := Multi(a, b)
	outer := Multi(inner, Nop())

	ml, ok := outer.(*multiLogger)
	require.True(t, ok, "expected *multiLogger, got %T", outer)
	require.Len(t, ml.loggers, 2)
}

func TestMultiOfSingleReturnsThatLogger(t *testing.T) {
	a := &recordingLogger{}
	got := Multi(a, Nop())
	require.Equal(t, Logger(a), got)
}
