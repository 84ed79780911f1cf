package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core).Sugar())
	t.Cleanup(func() { SetLogger(nil) })
	return logs
}

func TestCtxHelpersMergeFields(t *testing.T) {
	logs := observe(t)
	ctx := WithFields(context.Background(), "correlation_id", "c1")
	ctx = WithFields(ctx, "guild.id", "g1")
	InfowCtx(ctx, "hello", "extra", 1)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["correlation_id"] != "c1" || fields["guild.id"] != "g1" || fields["extra"] != int64(1) {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestWithFieldsNoop(t *testing.T) {
	ctx := context.Background()
	if WithFields(ctx) != ctx {
		t.Fatal("WithFields without fields should return ctx unchanged")
	}
	if FromContext(ctx) != nil {
		t.Fatal("expected no fields")
	}
}

func TestLevelsAndNoop(t *testing.T) {
	SetLogger(nil)
	// no logger initialized: must not panic
	Infow("dropped")
	ErrorwCtx(context.Background(), "dropped")

	logs := observe(t)
	Debugw("d")
	Warnw("w")
	Errorw("e")
	if logs.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", logs.Len())
	}
	if logs.All()[1].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected level %v", logs.All()[1].Level)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{"DEBUG": zap.DebugLevel, " warning ": zap.WarnLevel, "error": zap.ErrorLevel, "bogus": zap.InfoLevel}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFieldHelpers(t *testing.T) {
	if got := TurnFields(3, 2, 1); len(got) != 6 {
		t.Fatalf("unexpected turn fields: %v", got)
	}
	if got := UserFields("u", ""); len(got) < 2 || got[1] != "u" {
		t.Fatalf("unexpected user fields: %v", got)
	}
}
