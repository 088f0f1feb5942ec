package util

import (
	"sync"
	"testing"
	"time"
)

// TestQueueBasic tests push and receive with a single producer
func TestQueueBasic(t *testing.T) {
	q := NewQueue[int]()
	defer q.Close()

	for i := 0; i < 10; i++ {
		if !q.Push(i) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	for i := 0; i < 10; i++ {
		select {
		case v := <-q.Recv():
			if v != i {
				t.Errorf("Expected %d, got %d", i, v)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for item %d", i)
		}
	}

	select {
	case v := <-q.Recv():
		t.Errorf("Queue should be empty, but got %d", v)
	case <-time.After(10 * time.Millisecond):
	}
}

// TestQueueConcurrentProducers verifies that no value is lost or duplicated
func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue[int]()
	defer q.Close()

	const producers = 8
	const perProducer = 1000
	total := producers * perProducer

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(p*perProducer + i)
			}
		}(p)
	}

	seen := make(map[int]bool, total)
	last := make(map[int]int, producers)
	for len(seen) < total {
		select {
		case v := <-q.Recv():
			if seen[v] {
				t.Fatalf("Duplicate value %d", v)
			}
			seen[v] = true

			// per producer order is kept
			p := v / perProducer
			if prev, ok := last[p]; ok && v < prev {
				t.Errorf("Producer %d out of order: %d after %d", p, v, prev)
			}
			last[p] = v
		case <-time.After(5 * time.Second):
			t.Fatalf("Timeout, received %d of %d", len(seen), total)
		}
	}
	wg.Wait()
}

// TestQueueClose verifies that pending values are delivered after Close
func TestQueueClose(t *testing.T) {
	q := NewQueue[string]()
	q.Push("a")
	q.Push("b")
	q.Close()

	if q.Push("c") {
		t.Error("Push after Close should fail")
	}
	if !q.Closed() {
		t.Error("Closed should report true")
	}

	var got []string
	for v := range q.Recv() {
		got = append(got, v)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Expected [a b], got %v", got)
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue, got %d", q.Len())
	}
}

// BenchmarkQueuePush benchmarks the queue with parallel producers
func BenchmarkQueuePush(b *testing.B) {
	q := NewQueue[int]()
	defer q.Close()
	go func() {
		for range q.Recv() {
		}
	}()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			q.Push(i)
			i++
		}
	})
}
