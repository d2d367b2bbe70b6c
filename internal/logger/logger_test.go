package logger

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type syncErrWriter struct{ err error }

func (w syncErrWriter) Write(p []byte) (int, error) { return len(p), nil }
func (w syncErrWriter) Sync() error                 { return w.err }

func TestSync(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		syncErr error
		wantErr bool
	}{
		{name: "clean", syncErr: nil},
		{name: "stderr pipe", syncErr: fmt.Errorf("sync /dev/stderr: %w", syscall.EINVAL)},
		{name: "real failure", syncErr: errors.New("disk full"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core := zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				syncErrWriter{err: tt.syncErr},
				zapcore.InfoLevel,
			)
			if err := Sync(zap.New(core)); (err != nil) != tt.wantErr {
				t.Errorf("Sync() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := Sync(nil); err != nil {
		t.Errorf("Sync(nil) = %v", err)
	}
}

func TestNewProductionLogger_Levels(t *testing.T) {
	t.Parallel()

	for _, debug := range []bool{false, true} {
		l, err := NewProductionLogger("realty-test", debug)
		if err != nil {
			t.Fatalf("NewProductionLogger(%v): %v", debug, err)
		}
		if got := l.Core().Enabled(zapcore.DebugLevel); got != debug {
			t.Errorf("debug=%v: debug level enabled = %v", debug, got)
		}
	}
}
