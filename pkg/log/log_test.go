package log

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithAccountTagsEntries(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &zapLogger{sugar: zap.New(core).Sugar()}

	l.Infof(WithAccount(context.Background(), "acc-1"), "synced %s", "2026-W07")
	l.Warn(context.Background(), "plain")

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Message != "synced 2026-W07" || entries[0].ContextMap()["account"] != "acc-1" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if _, ok := entries[1].ContextMap()["account"]; ok {
		t.Error("untagged context carried an account")
	}
}

func TestInitFallsBackToInfo(t *testing.T) {
	l := Init(ZapConfig{Level: "loud", Encoding: "console"}).(*zapLogger)
	if l.sugar.Desugar().Core().Enabled(zapcore.DebugLevel) {
		t.Error("debug enabled for an unknown level")
	}
	if !l.sugar.Desugar().Core().Enabled(zapcore.InfoLevel) {
		t.Error("info disabled")
	}
}

func TestNilContext(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &zapLogger{sugar: zap.New(core).Sugar()}
	l.Debug(nil, "no ctx")
	if logs.Len() != 1 {
		t.Errorf("got %d entries", logs.Len())
	}
}
