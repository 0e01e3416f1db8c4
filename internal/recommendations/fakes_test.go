package recommendations

import (
	"context"
	"sort"
	"sync"

	"artspire/pkg/models"
)

type memIndex struct {
	mu      sync.Mutex
	entries map[int]Entry
	err     error
	lookups int
}

func newMemIndex(entries ...Entry) *memIndex {
	idx := &memIndex{entries: map[int]Entry{}}
	for _, e := range entries {
		idx.entries[e.ArtID] = e
	}
	return idx
}

func (m *memIndex) Neighbours(_ context.Context, artID int) ([]Neighbour, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	if m.err != nil {
		return nil, false, m.err
	}
	e, ok := m.entries[artID]
	return e.Neighbours, ok, nil
}

func (m *memIndex) KnownIDs(_ context.Context) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	ids := make([]int, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

func (m *memIndex) Upsert(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.entries[e.ArtID] = e
	}
	return m.err
}

func (m *memIndex) Replace(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = map[int]Entry{}
	for _, e := range entries {
		m.entries[e.ArtID] = e
	}
	return m.err
}

type memCache struct {
	mu          sync.Mutex
	lists       map[int][]int
	err         error
	invalidated [][]int
}

func newMemCache() *memCache {
	return &memCache{lists: map[int][]int{}}
}

func (c *memCache) Get(_ context.Context, artID int) ([]int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	ids, ok := c.lists[artID]
	return ids, ok, nil
}

func (c *memCache) Set(_ context.Context, artID int, ids []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if len(ids) > 0 {
		c.lists[artID] = ids
	}
	return nil
}

func (c *memCache) Invalidate(_ context.Context, artIDs []int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, artIDs)
	if len(artIDs) == 0 {
		c.lists = map[int][]int{}
		return c.err
	}
	for _, id := range artIDs {
		delete(c.lists, id)
	}
	return c.err
}

type recordingProducer struct {
	mu     sync.Mutex
	topics []string
	events []models.Event
	err    error
}

func (p *recordingProducer) Publish(_ context.Context, topic string, event models.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingProducer) Close() error { return nil }

func sampleIndex() *memIndex {
	return newMemIndex(
		Entry{ArtID: 3, Neighbours: []Neighbour{{ArtID: 3, Score: 1}, {ArtID: 9, Score: 0.2}, {ArtID: 4, Score: 0.9}, {ArtID: 5, Score: 0.2}}},
		Entry{ArtID: 4, Neighbours: []Neighbour{{ArtID: 3, Score: 0.9}}},
		Entry{ArtID: 9},
	)
}
