package network

import (
	"testing"

	"GuardVault/internal/wallet"
)

// eventMessages builds n distinct feed messages.
func eventMessages(n int) [][]byte {
	messages := make([][]byte, n)
	for i := range messages {
		e := wallet.Event{Seq: uint64(i + 1), Kind: wallet.EventDeposited, Amount: uint64(i)}
		messages[i] = encodeEventMessage(&e)
	}

	return messages
}

// BenchmarkDedupCheck benchmarks Check with new events.
func BenchmarkDedupCheck(b *testing.B) {
	d := NewDedup(0)

	messages := eventMessages(b.N)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		d.Check(messages[i])
	}
}

// BenchmarkDedupCheckParallel benchmarks concurrent Check calls on
// overlapping events, as during a backfill.
func BenchmarkDedupCheckParallel(b *testing.B) {
	d := NewDedup(0)

	messages := eventMessages(10000)

	b.ResetTimer()

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			d.Check(messages[i%len(messages)])
			i++
		}
	})
}
