package events

import "context"

// Fanout is a Sink delivering every notification to each member sink in
// order. The first error stops delivery and is returned.
type Fanout []Sink

// Publish implements Sink.
func (f Fanout) Publish(ctx context.Context, n Notification) error {
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, n); err != nil {
			return err
		}
	}
	return nil
}
