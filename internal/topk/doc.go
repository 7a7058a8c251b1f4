// Package topk implements exact bounded top-k selection.
//
// A Selector keeps the k best (index, score) pairs seen so far in a
// value-based binary heap whose root is the current worst element, so each
// candidate costs O(log k) at most and is rejected in O(1) when it cannot
// enter the result.
//
// Ordering is total: a higher score is better, and equal scores are broken
// by the lower index. Results are therefore deterministic regardless of
// the order in which candidates are pushed.
package topk
