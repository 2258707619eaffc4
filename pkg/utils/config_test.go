package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		App: AppConfig{StoreDriver: "memory"},
		Hold: HoldConfig{
			Duration:          10 * time.Minute,
			SweepInterval:     30 * time.Second,
			MaxSeats:          8,
			KeepAliveInterval: 15 * time.Second,
			SubscriberBuffer:  32,
		},
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:   "sweep interval exactly half the hold",
			mutate: func(c *Config) { c.Hold.SweepInterval = 5 * time.Minute },
		},
		{
			name:    "sweep interval above half the hold",
			mutate:  func(c *Config) { c.Hold.SweepInterval = 5*time.Minute + time.Second },
			wantErr: "SWEEP_INTERVAL",
		},
		{
			name:    "zero hold duration",
			mutate:  func(c *Config) { c.Hold.Duration = 0 },
			wantErr: "HOLD_DURATION",
		},
		{
			name:    "no seats allowed",
			mutate:  func(c *Config) { c.Hold.MaxSeats = 0 },
			wantErr: "MAX_SEATS_PER_BOOKING",
		},
		{
			name:    "zero keep-alive",
			mutate:  func(c *Config) { c.Hold.KeepAliveInterval = 0 },
			wantErr: "KEEPALIVE_INTERVAL",
		},
		{
			name:    "zero subscriber buffer",
			mutate:  func(c *Config) { c.Hold.SubscriberBuffer = 0 },
			wantErr: "SUBSCRIBER_BUFFER",
		},
		{
			name:    "unknown store driver",
			mutate:  func(c *Config) { c.App.StoreDriver = "mysql" },
			wantErr: "STORE_DRIVER",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)

			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
