package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfianlosari/arinventory/pkg/config"
)

func TestOptionsFromConfigRequiresURI(t *testing.T) {
	_, err := optionsFromConfig(config.MongoConfig{URI: "  "})
	require.Error(t, err)
}

func TestOptionsFromConfigAppliesTimeout(t *testing.T) {
	opts, err := optionsFromConfig(config.MongoConfig{
		URI:            "mongodb://localhost:27017/?replicaSet=rs0",
		ConnectTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	require.NotNil(t, opts.ConnectTimeout)
	assert.Equal(t, 3*time.Second, *opts.ConnectTimeout)
	require.NotNil(t, opts.ReplicaSet)
	assert.Equal(t, "rs0", *opts.ReplicaSet)
}

func TestDatabaseNameDefault(t *testing.T) {
	assert.Equal(t, "inventory", databaseName(config.MongoConfig{}))
	assert.Equal(t, "shop", databaseName(config.MongoConfig{Database: "shop"}))
}

func TestNilClient(t *testing.T) {
	var c *Client
	assert.Error(t, c.Ping(context.Background()))
	assert.NoError(t, c.Close())
}
