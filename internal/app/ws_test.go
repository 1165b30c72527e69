package app

import (
	"sync"
	"testing"
	"time"
)

func TestStreamSenderBuffersUntilFull(t *testing.T) {
	sender := newStreamSender()

	for i := 0; i < streamSendBuffer; i++ {
		sender.push(streamEvent{Type: "message"})
	}
	select {
	case <-sender.overflow:
		t.Fatal("overflow signaled while the buffer still had room")
	default:
	}

	sender.push(streamEvent{Type: "message"})
	select {
	case <-sender.overflow:
	case <-time.After(time.Second):
		t.Fatal("overflow not signaled after the buffer filled")
	}
}

func TestStreamSenderConcurrentOverflow(t *testing.T) {
	sender := newStreamSender()
	for i := 0; i < streamSendBuffer; i++ {
		sender.push(streamEvent{Type: "message"})
	}

	// Several watcher goroutines hit a full buffer at once; every one of them
	// must be able to report overflow without panicking.
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < 100; j++ {
				sender.push(streamEvent{Type: "members"})
			}
		}()
	}
	close(start)
	wg.Wait()

	select {
	case <-sender.overflow:
	default:
		t.Fatal("overflow not signaled")
	}
}
