package mqtt

import "github.com/sirupsen/logrus"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// offlineQueue holds messages published while disconnected, oldest first,
// up to a fixed capacity. A retained message replaces any retained message
// already queued for the same topic: the broker would keep only the last one,
// so a long outage of counter updates costs one slot instead of evicting
// line and system events. The replacement is queued as the newest message,
// behind everything pushed before it. When full, the oldest message is
// dropped.
//
// Not safe for concurrent use; the caller synchronizes.
type offlineQueue struct {
	msgs     []bufferedMsg
	capacity int
	dropped  int
	replaced int
	overflow bool // a message was dropped since the last drain
	log      *logrus.Entry
}

func newOfflineQueue(capacity int, log *logrus.Entry) *offlineQueue {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &offlineQueue{
		msgs:     make([]bufferedMsg, 0, capacity),
		capacity: capacity,
		log:      log,
	}
}

func (q *offlineQueue) push(msg bufferedMsg) {
	if q.capacity <= 0 {
		q.dropped++
		return
	}
	if msg.retained {
		for i, m := range q.msgs {
			if m.retained && m.topic == msg.topic {
				q.msgs = append(q.msgs[:i], q.msgs[i+1:]...)
				q.replaced++
				break
			}
		}
	}
	if len(q.msgs) == q.capacity {
		if !q.overflow {
			q.log.Warnf("offline queue full (%d messages), dropping oldest", q.capacity)
			q.overflow = true
		}
		copy(q.msgs, q.msgs[1:])
		q.msgs = q.msgs[:len(q.msgs)-1]
		q.dropped++
	}
	q.msgs = append(q.msgs, msg)
}

// drain returns the queued messages oldest first and empties the queue.
func (q *offlineQueue) drain() []bufferedMsg {
	if len(q.msgs) == 0 {
		return nil
	}
	out := make([]bufferedMsg, len(q.msgs))
	copy(out, q.msgs)
	for i := range q.msgs {
		q.msgs[i] = bufferedMsg{}
	}
	q.msgs = q.msgs[:0]
	q.overflow = false
	return out
}

func (q *offlineQueue) len() int {
	return len(q.msgs)
}
