// Package pubsub provides a small typed fan-out broker. The logger uses it to
// feed listeners such as the --verbose echo.
package pubsub

import "time"

// Topic labels what a published payload describes. Log entries are
// published under their category.
type Topic string

// Event wraps a payload with its topic and publish time.
type Event[T any] struct {
	Topic     Topic
	Payload   T
	Timestamp time.Time
}
