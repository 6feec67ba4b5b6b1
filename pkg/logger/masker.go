package logger

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// defaultMaskedFields are field keys that never get written verbatim to
// log output, covering the common shapes of PHI/PII and credentials that
// pass through the audit and GDPR services.
var defaultMaskedFields = []string{
	"password", "secret", "token", "apiKey", "api_key",
	"ssn", "socialSecurityNumber", "email", "phone", "phoneNumber",
	"originalValue", "pseudonymValue", "encryptionKey", "signingKey",
	"sessionContext.ipAddress", "ipAddress",
}

const maskedPlaceholder = "***MASKED***"

// maskingCore wraps a zapcore.Core and redacts the value of any field
// whose key matches the configured mask set before it reaches the
// underlying core's encoder.
type maskingCore struct {
	zapcore.Core
	masked map[string]bool
}

func newMaskingCore(core zapcore.Core, masked map[string]bool) zapcore.Core {
	return &maskingCore{Core: core, masked: masked}
}

func (c *maskingCore) With(fields []zapcore.Field) zapcore.Core {
	return &maskingCore{Core: c.Core.With(c.maskFields(fields)), masked: c.masked}
}

func (c *maskingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *maskingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, c.maskFields(fields))
}

func (c *maskingCore) maskFields(fields []zapcore.Field) []zapcore.Field {
	out := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		if c.shouldMask(f.Key) {
			out[i] = zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: maskedPlaceholder}
			continue
		}
		out[i] = f
	}
	return out
}

func (c *maskingCore) shouldMask(key string) bool {
	if c.masked[key] {
		return true
	}
	lower := strings.ToLower(key)
	for field := range c.masked {
		if strings.ToLower(field) == lower {
			return true
		}
	}
	return false
}
