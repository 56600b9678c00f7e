package audit

import (
	"context"
	"errors"
)

// Store persists or forwards audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

type fanout []Store

// Fanout returns a Store that appends to every sink in order and joins
// their errors. A failing sink does not stop the remaining ones.
func Fanout(stores ...Store) Store {
	out := make(fanout, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f fanout) Append(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
