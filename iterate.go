package booklet

import "github.com/mullenkamp/booklet-go/internal/store"

// Entry is one decoded (key, value) pair yielded by Iterate.
type Entry struct {
	Key       interface{}
	Value     interface{}
	Timestamp *int64
}

// IterateOptions selects which fields Iterate populates, and an optional
// timestamp floor (spec.md §4.6 iterate(keys?, values?, min_timestamp?)).
type IterateOptions struct {
	IncludeKeys   bool
	IncludeValues bool
	MinTimestamp  *int64
}

// Iterate walks the store's live entries, decoding each through
// KeyCodec/ValCodec, in file order (spec.md Non-goals: no ordered
// iteration by key). The reserved metadata key is never yielded.
//
// This returns a materialized slice rather than a lazy sequence: the core
// (internal/store.Iterate) already has to flush and scan the full data
// region up front to dedupe superseded blocks, so there is no streaming
// benefit to hide behind an iterator here. booklet/parallel consumes this
// directly when fanning work out across entries.
func (b *Booklet) Iterate(opts IterateOptions) ([]Entry, error) {
	raw, err := b.core.Iterate(store.IterateOptions{
		IncludeKeys:   opts.IncludeKeys,
		IncludeValues: opts.IncludeValues,
		MinTimestamp:  opts.MinTimestamp,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Entry, len(raw))
	for i, r := range raw {
		e := Entry{Timestamp: r.Timestamp}
		if opts.IncludeKeys {
			k, err := b.keyCodec.Decode(r.Key)
			if err != nil {
				return nil, err
			}
			e.Key = k
		}
		if opts.IncludeValues {
			v, err := b.valCodec.Decode(r.Value)
			if err != nil {
				return nil, err
			}
			e.Value = v
		}
		out[i] = e
	}
	return out, nil
}
