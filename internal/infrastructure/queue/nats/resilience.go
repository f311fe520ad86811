package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/medical-doc-assistant/internal/core/domain"
	"github.com/kirillkom/medical-doc-assistant/internal/infrastructure/resilience"
)

var connectionErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
}

// classifyNATSError retries connection-level failures. A payload the server
// refused is not retried but still counts against the breaker.
func classifyNATSError(err error) resilience.ErrorClassification {
	if class, ok := resilience.Preclassify(err); ok {
		return class
	}
	for _, target := range connectionErrors {
		if errors.Is(err, target) {
			return resilience.Transient
		}
	}
	return resilience.Unhealthy
}

// asTemporary marks publish failures a later attempt could survive. The
// executor already reports an open breaker as temporary.
func asTemporary(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyNATSError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "nats publish", err)
	}
	return err
}
