package grid

import "sync"

// Feed holds the latest unconsumed camera frame. A newer batch replaces an
// older one that nobody has read yet; the integrator's timestamp dedup takes
// care of a batch that is read more than once.
type Feed struct {
	mu       sync.RWMutex
	batch    *Batch
	sighting *Sighting
	consumed bool
	received uint64
	replaced uint64
}

// NewFeed returns an empty feed
func NewFeed() *Feed {
	return &Feed{}
}

// PutBatch stores b as the latest batch
func (f *Feed) PutBatch(b Batch) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batch != nil && !f.consumed {
		f.replaced++
	}
	f.received++
	f.batch = &b
	f.consumed = false
}

// PutSighting stores s as the latest tracked-object sighting
func (f *Feed) PutSighting(s Sighting) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sighting = &s
}

// Latest returns copies of the newest batch and sighting; either may be nil.
// The batch stays available until replaced.
func (f *Feed) Latest() (*Batch, *Sighting) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var b *Batch
	if f.batch != nil {
		cp := *f.batch
		cp.Walls = append([]RelativeWall(nil), f.batch.Walls...)
		b = &cp
		f.consumed = true
	}
	var s *Sighting
	if f.sighting != nil {
		cp := *f.sighting
		s = &cp
	}
	return b, s
}

// FeedStats counts batches seen by a Feed. Replaced batches were overwritten
// before the control loop read them.
type FeedStats struct {
	Received uint64 `json:"received"`
	Replaced uint64 `json:"replaced"`
}

// Stats returns the batch counters
func (f *Feed) Stats() FeedStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return FeedStats{Received: f.received, Replaced: f.replaced}
}
