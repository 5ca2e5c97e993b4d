package log

import (
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap/zapcore"

	"github.com/coastwatch/bloomcast/pkg/config"
)

// emailCore delivers warning-and-above log entries to operator addresses over
// SMTP, one message per entry. Delivery is synchronous; a forecast run emits
// at most a handful of warnings.
type emailCore struct {
	zapcore.LevelEnabler
	cfg  config.EmailConfig
	send func(addr, from string, to []string, msg []byte) error
}

func newEmailCore(cfg config.EmailConfig) zapcore.Core {
	return &emailCore{
		LevelEnabler: zapcore.WarnLevel,
		cfg:          cfg,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

func (c *emailCore) With(fields []zapcore.Field) zapcore.Core { return c }

func (c *emailCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *emailCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", c.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(c.cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n\r\n", c.cfg.Subject)
	fmt.Fprintf(&msg, "%s:%s\r\n", entry.Level.CapitalString(), entry.Message)

	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	return c.send(addr, c.cfg.From, c.cfg.To, []byte(msg.String()))
}

func (c *emailCore) Sync() error { return nil }
