package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type nopTracker struct{}

func (nopTracker) ChangeInSync(context.Context, string) (bool, error) { return true, nil }

func TestZoneEqual(t *testing.T) {
	a := Zone{Name: "example.com", Provider: Route53, ID: "Z1"}
	b := Zone{Name: "example.com", Provider: Route53, ID: "Z2"}
	c := Zone{Name: "example.com", Provider: Lightsail}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestInitialWait(t *testing.T) {
	w := ConstantDelay(50 * time.Second)
	assert.Equal(t, WaitConstantDelay, w.Kind)
	assert.Equal(t, "delay:50s", w.String())

	w = TrackChangeStatus("C123", nopTracker{})
	assert.Equal(t, WaitTrackChange, w.Kind)
	assert.Equal(t, "track:C123", w.String())
}
