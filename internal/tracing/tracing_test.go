package tracing

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestNewProvider_Disabled(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	p, err := NewProvider(context.Background(), TracerConfig{Enabled: false}, log)
	if err != nil {
		t.Fatalf("NewProvider() returned error: %v", err)
	}
	if p.Enabled() {
		t.Error("disabled provider reports Enabled()")
	}

	// No-op tracer must still produce usable spans.
	tracer := p.Tracer("test")
	_, span := tracer.Start(context.Background(), "op")
	span.End()

	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() of disabled provider returned error: %v", err)
	}
}

func TestNewProvider_UnsupportedExporter(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewProvider(context.Background(), TracerConfig{
		Enabled:  true,
		Exporter: "jaeger",
	}, log)
	if err == nil {
		t.Error("NewProvider() accepted an unsupported exporter")
	}
}

func TestNewProvider_StdoutExporter(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	p, err := NewProvider(context.Background(), TracerConfig{
		Enabled:     true,
		Exporter:    "stdout",
		SampleRate:  1.0,
		ServiceName: "loopdesk-test",
	}, log)
	if err != nil {
		t.Fatalf("NewProvider() returned error: %v", err)
	}
	if !p.Enabled() {
		t.Error("stdout provider reports disabled")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() returned error: %v", err)
	}
}

func TestRecordError_NilSafe(t *testing.T) {
	RecordError(nil, nil, "nothing") // must not panic
}
