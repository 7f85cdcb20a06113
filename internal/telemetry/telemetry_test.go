package telemetry

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown := Setup(context.Background(), Options{ServiceName: "turn-service"}, zerolog.Nop())
	assert.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, Tracer())
}
