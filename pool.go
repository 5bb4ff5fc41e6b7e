package docquiz

import "sync"

// draftPool is a FIFO queue of question drafts awaiting screening.
type draftPool struct {
	mu    sync.Mutex
	queue []QuestionDraft
}

func newDraftPool() *draftPool {
	return &draftPool{}
}

// Add appends a draft to the queue.
func (p *draftPool) Add(draft QuestionDraft) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, draft)
}

// Next pops the oldest draft, reporting false when the pool is empty.
func (p *draftPool) Next() (QuestionDraft, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return QuestionDraft{}, false
	}
	draft := p.queue[0]
	p.queue = p.queue[1:]
	return draft, true
}

// Size returns the number of queued drafts.
func (p *draftPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// IsEmpty reports whether the pool has no queued drafts.
func (p *draftPool) IsEmpty() bool {
	return p.Size() == 0
}
