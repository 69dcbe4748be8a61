package rabbitmq

import amqp "github.com/rabbitmq/amqp091-go"

// returnTracker records mandatory publishes the broker handed back, keyed
// by message id. A Return is dispatched before the Confirm of the same
// publish, so once a confirm has arrived a lookup sees its Return.
type returnTracker struct {
	returns <-chan amqp.Return
	lookups chan returnLookup
	done    chan struct{}
	// routing keys of returned messages; owned by run
	returned map[string]string
}

type returnLookup struct {
	messageID string
	reply     chan string
}

func newReturnTracker(returns <-chan amqp.Return) *returnTracker {
	t := &returnTracker{
		returns:  returns,
		lookups:  make(chan returnLookup),
		done:     make(chan struct{}),
		returned: make(map[string]string),
	}
	go t.run()
	return t
}

func (t *returnTracker) run() {
	defer close(t.done)
	for {
		select {
		case ret, ok := <-t.returns:
			if !ok {
				return
			}
			t.returned[ret.MessageId] = ret.RoutingKey
		case l := <-t.lookups:
			key := t.returned[l.messageID]
			delete(t.returned, l.messageID)
			l.reply <- key
		}
	}
}

// take reports and forgets whether messageID was returned as unroutable.
func (t *returnTracker) take(messageID string) (string, bool) {
	l := returnLookup{messageID: messageID, reply: make(chan string, 1)}
	select {
	case t.lookups <- l:
		key := <-l.reply
		return key, key != ""
	case <-t.done:
		return "", false
	}
}
