// Package txn runs a state transition atomically and hands its notification
// events to the dispatcher only after the transaction committed.
package txn

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/splax/teamup/internal/domain"
	"github.com/splax/teamup/internal/notify"
	"github.com/splax/teamup/internal/repository"
)

const tracerName = "github.com/splax/teamup/internal/service"

// Dispatcher consumes committed events.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []notify.Event)
}

// Transition mutates state through q and returns the events it triggers.
type Transition func(ctx context.Context, q repository.Queries) ([]notify.Event, error)

// Run executes fn in one transaction under a span named name.
func Run(ctx context.Context, store repository.Store, dispatcher Dispatcher, name string, fn Transition) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	defer span.End()

	var events []notify.Event
	err := store.InTx(ctx, func(q repository.Queries) error {
		var err error
		events, err = fn(ctx, q)
		return err
	})
	if err != nil {
		span.RecordError(err)
		if kind := domain.KindOf(err); kind != "" {
			span.SetStatus(codes.Error, string(kind))
		} else {
			span.SetStatus(codes.Error, "transaction failed")
		}
		return err
	}
	if dispatcher != nil {
		dispatcher.Dispatch(ctx, events)
	}
	return nil
}

// NotFound converts repository.ErrNotFound into the domain kind naming what is missing.
func NotFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Errorf(domain.KindNotFound, "%s not found", what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}
