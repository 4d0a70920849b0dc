package main

import (
	"context"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/SalesCoach/internal/api"
)

// awaitCallback runs the callback server until handle reports that the command is
// done, handle fails, or the user interrupts.
func awaitCallback(ctx context.Context, srv *api.Server, handle func(api.Event) (bool, error)) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		defer cancel()
		for {
			select {
			case e := <-srv.Events():
				done, err := handle(e)
				if err != nil || done {
					return err
				}
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})
	return g.Wait()
}
