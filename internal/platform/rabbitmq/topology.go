package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const AttemptHeader = "x-attempt"

// Topology names the three queues behind one work queue: the main queue
// dead-letters into DLQ, and Retry holds messages for RetryDelayMS before
// dead-lettering them back into the main queue.
type Topology struct {
	Main         string
	Retry        string
	DLQ          string
	RetryDelayMS int
}

func NewTopology(main string, retryDelayMS int) Topology {
	if retryDelayMS <= 0 {
		retryDelayMS = 5000
	}
	return Topology{
		Main:         main,
		Retry:        main + ".retry",
		DLQ:          main + ".dlq",
		RetryDelayMS: retryDelayMS,
	}
}

// Declare is idempotent; publisher and consumer both call it.
func (t Topology) Declare(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(t.DLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq failed: %w", err)
	}
	if _, err := ch.QueueDeclare(t.Main, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": t.DLQ,
	}); err != nil {
		return fmt.Errorf("declare queue failed: %w", err)
	}
	if _, err := ch.QueueDeclare(t.Retry, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": t.Main,
		"x-message-ttl":             int32(t.RetryDelayMS),
	}); err != nil {
		return fmt.Errorf("declare retry queue failed: %w", err)
	}
	return nil
}

// Attempt reads the retry counter from a delivery, 0 when absent.
func Attempt(headers amqp.Table) int {
	switch v := headers[AttemptHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
