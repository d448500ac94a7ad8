package clock

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockTimer(t *testing.T) {
	mock := NewMock()
	timer := mock.NewTimer(time.Minute)

	var fired atomic.Int32
	done := make(chan struct{})
	go func() {
		<-timer.C()
		fired.Add(1)
		close(done)
	}()

	mock.Advance(30 * time.Second)
	assert.Equal(t, int32(0), fired.Load())

	mock.Advance(30 * time.Second)
	<-done
	assert.Equal(t, int32(1), fired.Load())
}

func TestMockTickerDeliversEveryInterval(t *testing.T) {
	mock := NewMock()
	ticker := mock.NewTicker(time.Second)

	var ticks atomic.Int64
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C():
				ticks.Add(1)
			}
		}
	}()

	mock.Advance(10 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int64(10), ticks.Load())

	ticker.Stop()
	mock.Advance(10 * time.Second)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int64(10), ticks.Load())
	close(stop)
}

func TestMockStoppedTimerNeverFires(t *testing.T) {
	mock := NewMock()
	timer := mock.NewTimer(time.Second)
	timer.Stop()

	mock.Advance(5 * time.Second)
	select {
	case <-timer.C():
		t.Fatal("stopped timer fired")
	default:
	}
}
