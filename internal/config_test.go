package internal

import (
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)
	var config Config

	err := env.Unmarshal(env.EnvSet{}, &config)

	req.NoError(err)
	req.Equal(5000, config.Port)
	req.Equal("badger", config.StoreBackend)
	req.Equal(2*time.Second, config.DeliveryTimeout)
	req.False(config.SendAckEnabled)
	req.Equal(time.Minute, config.IdleTimeout)
	req.NoError(config.Validate())
	req.Equal([]string{"http://localhost:8080", "http://localhost:8081"}, config.Origins())
}

func TestConfig_From_Environment(t *testing.T) {
	req := require.New(t)
	var config Config

	err := env.Unmarshal(env.EnvSet{
		"PORT":             "7000",
		"STORE_BACKEND":    "sqlite",
		"SEND_ACK_ENABLED": "true",
		"ALLOWED_ORIGINS":  " https://chat.example , ,*",
		"DELIVERY_TIMEOUT": "150ms",
	}, &config)

	req.NoError(err)
	req.Equal(7000, config.Port)
	req.Equal("sqlite", config.StoreBackend)
	req.True(config.SendAckEnabled)
	req.Equal(150*time.Millisecond, config.DeliveryTimeout)
	req.Equal([]string{"https://chat.example", "*"}, config.Origins())
}

func TestConfig_Validate_Rejects_Negative_Sizes(t *testing.T) {
	req := require.New(t)

	for name, environment := range map[string]env.EnvSet{
		"buffer":            {"BUFFER_SIZE": "-1"},
		"connection buffer": {"CONNECTION_BUFFER_SIZE": "-4"},
		"delivery timeout":  {"DELIVERY_TIMEOUT": "-1s"},
	} {
		var config Config
		req.NoError(env.Unmarshal(environment, &config), name)
		req.Error(config.Validate(), name)
	}

	var config Config
	req.NoError(env.Unmarshal(env.EnvSet{"DELIVERY_TIMEOUT": "0s", "BUFFER_SIZE": "0"}, &config))
	req.NoError(config.Validate())
}
