package log

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/coastwatch/bloomcast/pkg/config"
)

func TestEmailCoreDeliversWarnings(t *testing.T) {
	var sent []string
	core := &emailCore{
		LevelEnabler: zapcore.WarnLevel,
		cfg: config.EmailConfig{
			Host:    "localhost",
			Port:    1025,
			From:    "bloomcast@example.com",
			To:      []string{"operator@example.com"},
			Subject: "Warning Message from bloomcast",
		},
		send: func(addr, from string, to []string, msg []byte) error {
			sent = append(sent, string(msg))
			return nil
		},
	}
	log := zap.New(core).Sugar()

	log.Debugf("not emailed")
	log.Infof("not emailed either")
	log.Warnf("A wind forcing data gap > 11 hr has been patched")

	if len(sent) != 1 {
		t.Fatalf("got %d messages, want 1 (warnings only)", len(sent))
	}
	if !strings.Contains(sent[0], "Subject: Warning Message from bloomcast") {
		t.Errorf("message lacks subject header: %q", sent[0])
	}
	if !strings.Contains(sent[0], "WARN:A wind forcing data gap") {
		t.Errorf("message lacks level-prefixed body: %q", sent[0])
	}
}

func TestInit(t *testing.T) {
	logger, closeLog := Init(config.LoggingConfig{Debug: true})
	defer closeLog()
	if logger == nil {
		t.Fatal("Init returned nil logger")
	}
	logger.Debugf("logger smoke test")
}
