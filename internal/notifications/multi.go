package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"comicshelf/internal/config"
)

type multiService []Service

// Multi fans every event out to each service, joining their errors.
func Multi(services ...Service) Service {
	filtered := make(multiService, 0, len(services))
	for _, svc := range services {
		if svc == nil {
			continue
		}
		if _, ok := svc.(noopService); ok {
			continue
		}
		filtered = append(filtered, svc)
	}
	switch len(filtered) {
	case 0:
		return noopService{}
	case 1:
		return filtered[0]
	}
	return filtered
}

func (m multiService) Publish(ctx context.Context, event Event, payload Payload) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Publish(ctx, event, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewFromConfig assembles every configured publisher. The returned close
// function releases broker connections and is always non-nil.
func NewFromConfig(cfg *config.Config) (Service, func() error, error) {
	services := []Service{NewService(cfg)}
	closeFn := func() error { return nil }

	if url := strings.TrimSpace(cfg.Notifications.AMQPURL); url != "" {
		timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
		pub, err := DialAMQP(url, cfg.Notifications.AMQPExchange, timeout)
		if err != nil {
			return nil, closeFn, err
		}
		services = append(services, pub)
		closeFn = pub.Close
	}
	return Multi(services...), closeFn, nil
}
