package topk

import "slices"

// Item is a scored candidate.
type Item struct {
	Index int     // Index is the dataset position of the candidate.
	Score float32 // Score is the similarity; higher is better.
}

// Better reports whether a ranks before b.
func Better(a, b Item) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Index < b.Index
}

// Selector collects the k best items.
// It does NOT implement container/heap to avoid interface overhead.
type Selector struct {
	k     int
	items []Item // heap ordered so that items[0] is the worst kept item
}

// New creates a selector for the k best items.
func New(k int) *Selector {
	return &Selector{
		k:     k,
		items: make([]Item, 0, k),
	}
}

// K returns the selector capacity.
func (s *Selector) K() int {
	return s.k
}

// Reset clears the selector for reuse.
func (s *Selector) Reset() {
	s.items = s.items[:0]
}

// Len returns the number of kept items.
func (s *Selector) Len() int {
	return len(s.items)
}

// Worst returns the worst kept item.
func (s *Selector) Worst() (Item, bool) {
	if len(s.items) == 0 {
		return Item{}, false
	}
	return s.items[0], true
}

// Push offers a candidate.
// If the selector is full and the candidate is not better than the worst
// kept item, it is skipped; otherwise the worst item is replaced.
func (s *Selector) Push(item Item) {
	if s.k <= 0 {
		return
	}
	if len(s.items) < s.k {
		s.items = append(s.items, item)
		s.siftUp(len(s.items) - 1)
		return
	}
	if !Better(item, s.items[0]) {
		return
	}
	s.items[0] = item
	s.siftDown(0)
}

// PushScores offers every score of row as candidate index offset+j,
// skipping the index equal to skip (pass -1 to keep all).
func (s *Selector) PushScores(row []float32, offset, skip int) {
	for j, score := range row {
		idx := offset + j
		if idx == skip {
			continue
		}
		s.Push(Item{Index: idx, Score: score})
	}
}

// Sorted returns the kept items best-first. The selector is not modified.
func (s *Selector) Sorted() []Item {
	out := slices.Clone(s.items)
	slices.SortFunc(out, func(a, b Item) int {
		if Better(a, b) {
			return -1
		}
		if Better(b, a) {
			return 1
		}
		return 0
	})
	return out
}

// AppendSorted appends the kept items best-first to dst and returns it.
func (s *Selector) AppendSorted(dst []Item) []Item {
	start := len(dst)
	dst = append(dst, s.items...)
	tail := dst[start:]
	slices.SortFunc(tail, func(a, b Item) int {
		if Better(a, b) {
			return -1
		}
		if Better(b, a) {
			return 1
		}
		return 0
	})
	return dst
}

// worse reports whether the element at i should sit above the element at j,
// i.e. it is the worse of the two.
func (s *Selector) worse(i, j int) bool {
	return Better(s.items[j], s.items[i])
}

func (s *Selector) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !s.worse(i, parent) {
			break
		}
		s.items[i], s.items[parent] = s.items[parent], s.items[i]
		i = parent
	}
}

func (s *Selector) siftDown(i int) {
	n := len(s.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		right := left + 1
		if right < n && s.worse(right, left) {
			child = right
		}
		if !s.worse(child, i) {
			break
		}
		s.items[i], s.items[child] = s.items[child], s.items[i]
		i = child
	}
}
