// Package events is the typed in-process publish/subscribe channel between the
// recognition loop and its consumers.
package events

import (
	"fmt"
	"time"

	evbus "github.com/asaskevich/EventBus"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
)

// Topics.
const (
	TopicFrame     = "recognition:frame"
	TopicEasterEgg = "gesture:easter-egg"
)

// Frame is the per-frame output of the recognition loop. Gesture and Fingers
// come from the same frame; either may be nil. A Frame with Cleared set is
// published when recognition stops.
type Frame struct {
	Gesture     *gesture.Result          `json:"gesture"`
	Fingers     *gesture.FingerState     `json:"fingers"`
	Hands       []detector.HandLandmarks `json:"hands,omitempty"`
	TimestampMs int64                    `json:"timestamp"`
	Cleared     bool                     `json:"cleared,omitempty"`
}

// EasterEgg is raised when the easter-egg pattern is matched.
type EasterEgg struct {
	Fingers    gesture.FingerState `json:"fingers"`
	At         time.Time           `json:"at"`
	DisplayFor time.Duration       `json:"display_for"`
}

// Bus wraps an EventBus with typed publish and subscribe methods.
//
// Synchronous handlers run on the publisher's goroutine while the bus is
// locked, so they must not publish on the same Bus.
type Bus struct {
	bus evbus.Bus
}

// New creates a Bus.
func New() *Bus {
	return &Bus{bus: evbus.New()}
}

// PublishFrame publishes f on TopicFrame.
func (b *Bus) PublishFrame(f Frame) {
	b.bus.Publish(TopicFrame, f)
}

// PublishEasterEgg publishes e on TopicEasterEgg.
func (b *Bus) PublishEasterEgg(e EasterEgg) {
	b.bus.Publish(TopicEasterEgg, e)
}

// OnFrame registers a synchronous frame handler.
func (b *Bus) OnFrame(fn func(Frame)) error {
	return subscribe(b.bus.Subscribe, TopicFrame, fn)
}

// OnFrameAsync registers a handler that runs off the publisher's goroutine.
// Handler invocations are serialized in publish order.
func (b *Bus) OnFrameAsync(fn func(Frame)) error {
	return b.subscribeAsync(TopicFrame, fn)
}

// OnEasterEgg registers a synchronous easter-egg handler.
func (b *Bus) OnEasterEgg(fn func(EasterEgg)) error {
	return subscribe(b.bus.Subscribe, TopicEasterEgg, fn)
}

// OnEasterEggAsync registers an asynchronous, serialized easter-egg handler.
func (b *Bus) OnEasterEggAsync(fn func(EasterEgg)) error {
	return b.subscribeAsync(TopicEasterEgg, fn)
}

// Wait blocks until all asynchronous handlers have finished.
func (b *Bus) Wait() {
	b.bus.WaitAsync()
}

func (b *Bus) subscribeAsync(topic string, fn interface{}) error {
	return subscribe(func(topic string, fn interface{}) error {
		return b.bus.SubscribeAsync(topic, fn, true)
	}, topic, fn)
}

func subscribe(sub func(string, interface{}) error, topic string, fn interface{}) error {
	if err := sub(topic, fn); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}
