package bucket

import (
	"sort"
	"strconv"
	"time"

	"github.com/ValentinKolb/dCB/lib/result"
)

// Version is reported by the stats.
const Version = "1.0.0"

// Stat is one statistic reported by a node.
type Stat struct {
	Node  string
	Name  string
	Value string
}

// Stats returns the statistics of a group for every node. Supported groups are
// "" (general counters) and "sizes" (value size distribution).
func (b *Bucket) Stats(group string) ([]Stat, result.Status) {
	switch group {
	case "":
		return b.generalStats(), result.StatusSuccess
	case "sizes":
		return b.sizeStats(), result.StatusSuccess
	default:
		return nil, result.StatusInvalidArgs
	}
}

func (b *Bucket) generalStats() []Stat {
	now := b.now()
	nodes := b.Nodes()
	items := make([]int, nodes)
	replicaItems := make([]int, nodes)

	b.data.Range(func(key string, e entry) bool {
		if !e.live(now) {
			return true
		}
		items[b.master(key)]++
		for i := 0; i < b.opts.Replicas; i++ {
			replicaItems[b.replicaNode(key, i)]++
		}
		return true
	})

	u := strconv.FormatUint
	shared := [][2]string{
		{"bucket", b.opts.Name},
		{"version", Version},
		{"uptime", strconv.FormatInt(int64(time.Since(b.started)/time.Second), 10)},
		{"replicas", strconv.Itoa(b.opts.Replicas)},
		{"cmd_get", u(b.cmdGet.Load(), 10)},
		{"cmd_set", u(b.cmdSet.Load(), 10)},
		{"get_hits", u(b.getHits.Load(), 10)},
		{"get_misses", u(b.getMisses.Load(), 10)},
		{"delete_hits", u(b.deleteHits.Load(), 10)},
		{"cas_misses", u(b.casMisses.Load(), 10)},
		{"lock_errors", u(b.lockErrors.Load(), 10)},
		{"total_items", u(b.totalItems.Load(), 10)},
		{"mem_used", strconv.FormatInt(b.sizes.Total(), 10)},
	}

	stats := make([]Stat, 0, nodes*(len(shared)+2))
	for n := 0; n < nodes; n++ {
		node := b.NodeName(n)
		stats = append(stats,
			Stat{Node: node, Name: "curr_items", Value: strconv.Itoa(items[n])},
			Stat{Node: node, Name: "vb_replica_curr_items", Value: strconv.Itoa(replicaItems[n])},
		)
		for _, kv := range shared {
			stats = append(stats, Stat{Node: node, Name: kv[0], Value: kv[1]})
		}
	}
	return stats
}

// sizeStats is bucket wide and reported by the first node only.
func (b *Bucket) sizeStats() []Stat {
	node := b.NodeName(0)
	stats := []Stat{
		{Node: node, Name: "size_count", Value: strconv.FormatInt(b.sizes.Count(), 10)},
		{Node: node, Name: "size_total", Value: strconv.FormatInt(b.sizes.Total(), 10)},
		{Node: node, Name: "size_avg", Value: strconv.Itoa(b.sizes.Average())},
		{Node: node, Name: "size_p50", Value: strconv.Itoa(b.sizes.Percentile(50))},
		{Node: node, Name: "size_p90", Value: strconv.Itoa(b.sizes.Percentile(90))},
		{Node: node, Name: "size_p99", Value: strconv.Itoa(b.sizes.Percentile(99))},
	}

	buckets := b.sizes.Buckets()
	names := make([]string, 0, len(buckets))
	for name := range buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats = append(stats, Stat{Node: node, Name: "size" + name, Value: strconv.FormatInt(buckets[name], 10)})
	}
	return stats
}
