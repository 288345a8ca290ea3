package cmd

import (
	"testing"

	"github.com/shopfloor-ops/change-relay/config"
	"github.com/shopfloor-ops/change-relay/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func TestAppGraph(t *testing.T) {
	tests := map[string]func(*config.Config){
		"mongo":            func(*config.Config) {},
		"amqp with lookup": func(c *config.Config) { c.Feed.Driver = config.DriverAMQP },
		"amqp only": func(c *config.Config) {
			c.Feed.Driver = config.DriverAMQP
			c.Mongo.URI = ""
		},
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg, err := config.LoadConfig("", nil)
			require.NoError(t, err)
			mutate(cfg)
			assert.NoError(t, fx.ValidateApp(appOptions(cfg)...))
		})
	}
}

func TestBuildRecord(t *testing.T) {
	rec, err := buildRecord("update", "b1", `{"title":"Line 3"}`)
	require.NoError(t, err)
	assert.Equal(t, model.OpUpdate, rec.Op)
	assert.Equal(t, "Line 3", rec.Document["title"])

	rec, err = buildRecord("delete", "b1", `{"ignored":true}`)
	require.NoError(t, err)
	assert.Nil(t, rec.Document)

	_, err = buildRecord("upsert", "b1", "")
	assert.Error(t, err)

	_, err = buildRecord("insert", "b1", "{")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("warn").String())
	assert.Equal(t, "INFO", parseLevel("loud").String())
}

func TestVersionString(t *testing.T) {
	assert.Contains(t, versionString(), commitDate)

	prev := buildTimestamp
	t.Cleanup(func() { buildTimestamp = prev })
	buildTimestamp = "2026-10-01T12:00:00Z"

	got := versionString()
	assert.Contains(t, got, "2026-10-01T12:00:00Z")
	assert.NotContains(t, got, commitDate)
}
