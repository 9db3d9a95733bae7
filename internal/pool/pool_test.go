package pool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_Fires(t *testing.T) {
	timer := GetTimer(10 * time.Millisecond)
	require.NotNil(t, timer)

	select {
	case <-timer.C:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	PutTimer(timer)
}

func TestTimer_ReusedTimerDoesNotFireEarly(t *testing.T) {
	// an expired, undrained timer must not leak its tick to the next user
	first := GetTimer(time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	PutTimer(first)

	second := GetTimer(200 * time.Millisecond)
	defer PutTimer(second)

	select {
	case <-second.C:
		t.Fatal("reused timer fired early")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimer_PutNil(t *testing.T) {
	assert.NotPanics(t, func() { PutTimer(nil) })
}

func TestBuffer(t *testing.T) {
	b := GetBuffer(100)
	assert.Len(t, b, 100)
	PutBuffer(b)

	b = GetBuffer(8192)
	assert.Len(t, b, 8192)
	PutBuffer(b)

	huge := GetBuffer(maxPooledBuffer + 1)
	assert.Len(t, huge, maxPooledBuffer+1)
	assert.NotPanics(t, func() { PutBuffer(huge) })
	assert.NotPanics(t, func() { PutBuffer(nil) })
}
