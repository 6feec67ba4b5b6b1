package logger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMaskingCoreRedactsConfiguredFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	masked := newMaskingCore(core, map[string]bool{"password": true, "email": true})
	log := zap.New(masked)

	log.Info("login attempt", zap.String("password", "hunter2"), zap.String("email", "a@b.com"), zap.String("action", "auth.login"))

	entries := logs.All()
	require.Len(t, entries, 1)

	fieldMap := entries[0].ContextMap()
	assert.Equal(t, maskedPlaceholder, fieldMap["password"])
	assert.Equal(t, maskedPlaceholder, fieldMap["email"])
	assert.Equal(t, "auth.login", fieldMap["action"])
}

func TestMaskingCoreCaseInsensitive(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	masked := newMaskingCore(core, map[string]bool{"token": true})
	log := zap.New(masked)

	log.Info("issued", zap.String("Token", "abc123"))

	fieldMap := logs.All()[0].ContextMap()
	assert.Equal(t, maskedPlaceholder, fieldMap["Token"])
}

func TestNewBuildsLoggerWithServiceField(t *testing.T) {
	l, err := New(Config{Level: "debug", Development: true, Service: "audit-pipeline"})
	require.NoError(t, err)
	defer l.Sync()

	assert.NotNil(t, l)
	l.Info("ready", "component", "test")
	l.Named("worker").With("job_id", 1).Warn("retrying")
}

func TestSetLevelChangesEffectiveLevel(t *testing.T) {
	l, err := New(Config{Level: "info", Development: true, Service: "audit-pipeline"})
	require.NoError(t, err)
	defer l.Sync()

	assert.False(t, l.Zap().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, l.SetLevel("debug"))
	assert.True(t, l.Zap().Core().Enabled(zapcore.DebugLevel))

	assert.Error(t, l.SetLevel("not-a-level"))
}

func TestMergeFieldsIncludesDefaults(t *testing.T) {
	fields := mergeFields([]string{"customSecret"})
	assert.True(t, fields["password"])
	assert.True(t, fields["customSecret"])
}

func TestMaskingCoreWithPropagatesMasking(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	masked := newMaskingCore(core, map[string]bool{"secret": true})
	log := zap.New(masked).With(zap.String("secret", "xyz"))

	log.Info("ready")

	var fieldMap map[string]interface{}
	b, err := json.Marshal(logs.All()[0].ContextMap())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &fieldMap))
	assert.Equal(t, maskedPlaceholder, fieldMap["secret"])
}
