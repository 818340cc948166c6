package feed

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/he1nht3t/envmonitoring-web/internal/modules/monitoring/types"
)

func TestFeed_DeliversToAllSubscribers(t *testing.T) {
	f := New()
	var a, b []string
	f.Subscribe(func(r types.Reading) { a = append(a, r.DeviceID) })
	f.Subscribe(func(r types.Reading) { b = append(b, r.DeviceID) })

	f.Publish(types.Reading{DeviceID: "dev-1"})
	f.Publish(types.Reading{DeviceID: "dev-2"})

	if len(a) != 2 || a[0] != "dev-1" || a[1] != "dev-2" {
		t.Errorf("subscriber a got %v", a)
	}
	if len(b) != 2 {
		t.Errorf("subscriber b got %v", b)
	}
}

func TestFeed_Unsubscribe(t *testing.T) {
	f := New()
	var n int
	sub := f.Subscribe(func(types.Reading) { n++ })

	f.Publish(types.Reading{DeviceID: "x"})
	sub.Unsubscribe()
	sub.Unsubscribe()
	f.Publish(types.Reading{DeviceID: "x"})

	if n != 1 {
		t.Errorf("deliveries = %d; want 1", n)
	}
	if f.Len() != 0 {
		t.Errorf("Len = %d; want 0", f.Len())
	}
}

func TestFeed_UnsubscribeFromHandler(t *testing.T) {
	f := New()
	var sub Subscription
	var n int
	sub = f.Subscribe(func(types.Reading) {
		n++
		sub.Unsubscribe()
	})

	f.Publish(types.Reading{})
	f.Publish(types.Reading{})

	if n != 1 {
		t.Errorf("deliveries = %d; want 1", n)
	}
}

func TestFeed_SerializesConcurrentPublishers(t *testing.T) {
	f := New()
	var inFlight, maxInFlight atomic.Int32
	f.Subscribe(func(types.Reading) {
		cur := inFlight.Add(1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inFlight.Add(-1)
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Publish(types.Reading{DeviceID: "d"})
		}()
	}
	wg.Wait()

	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("max concurrent deliveries = %d; want 1", got)
	}
}
