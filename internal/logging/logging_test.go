package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	testCases := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "production", config: Config{}},
		{name: "development debug", config: Config{Development: true, Level: "debug"}},
		{name: "invalid level", config: Config{Level: "loud"}, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			logger, err := New(tc.config)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
	assert.NotNil(t, OrNop(nil))
}
