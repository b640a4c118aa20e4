package fetchgraph

import (
	"sort"
	"strconv"
)

// Summary is collect's output: spec.md §4.7's {success?, data, sources}.
type Summary struct {
	Success bool
	Data    map[string]any
	Sources map[Path]Event
}

// Collect drains an event stream, recording every event in Sources and
// computing overall success as the conjunction of every terminalized
// path's Result.Success, with Data from MergeResults.
func Collect(stream <-chan Event) *Summary {
	summary := &Summary{Success: true, Sources: make(map[Path]Event)}
	var events []Event

	for ev := range stream {
		summary.Sources[ev.Path] = ev
		events = append(events, ev)
		if ev.Result != nil && !ev.Result.Partial && !ev.Result.Retrying && !ev.Result.Success {
			summary.Success = false
		}
	}

	summary.Data = MergeResults(events)
	return summary
}

// MergeResults implements spec.md §4.7: filter to successful events
// (partial collection/begets events included), order by ascending path
// length so parents are inserted before children, and deep-insert each
// one's Data into a combined container.
// Later writes at the same path win (covers retry/refresh history, since
// a path may appear more than once across a stream's lifetime).
func MergeResults(events []Event) map[string]any {
	filtered := make([]Event, 0, len(events))
	for _, ev := range events {
		if ev.Result != nil && ev.Result.Success {
			filtered = append(filtered, ev)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Path.Len() < filtered[j].Path.Len()
	})

	out := make(map[string]any)
	for _, ev := range filtered {
		deepInsert(out, ev.Path.Segments(), ev.Result.Data)
	}
	return out
}

// deepInsert writes value at the nested location segments describes
// inside a map[string]any tree, creating intermediate maps as needed. A
// final index segment that is in range of an existing []any replaces that
// element in a copy of the slice; any other path through a slice first
// turns it into a map keyed by the decimal indices of its elements.
func deepInsert(root map[string]any, segments []string, value any) {
	cur := root
	for i, seg := range segments {
		if i == len(segments)-1 {
			cur[seg] = value
			return
		}
		if arr, ok := cur[seg].([]any); ok {
			idx, err := strconv.Atoi(segments[i+1])
			if err == nil && i+2 == len(segments) && idx >= 0 && idx < len(arr) {
				arr = append([]any(nil), arr...)
				arr[idx] = value
				cur[seg] = arr
				return
			}
			asMap := make(map[string]any, len(arr))
			for j, elem := range arr {
				asMap[strconv.Itoa(j)] = elem
			}
			cur[seg] = asMap
		}
		next, ok := cur[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[seg] = next
		}
		cur = next
	}
}

// PullOptions bundles a FillOption. Pull itself takes FillOption values
// directly and does not read this type.
type PullOptions struct {
	Fill FillOption
}

// Pull implements spec.md §6's pull(prescription, paths, options) → Summary:
// a blocking convenience wrapping Fill + Select + Collect for callers who
// don't need the streaming interface.
func Pull(prescription Prescription, paths []Path, opts ...FillOption) *Summary {
	h := Fill(prescription, opts...)
	defer h.Close()
	stream := Select(h, paths)
	return Collect(stream)
}
