/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package domainset runs a process's set of Domain loops concurrently,
// one goroutine per domain, the same errgroup.WithContext fan-out
// aistore's fs.WalkBck uses to run one jogger goroutine per mountpoint.
// Domains share no state with each other (spec.md §5: each is an
// independent single-threaded actor reachable only through its
// mailbox), so there is nothing here beyond lifecycle management.
package domainset

import (
	"context"

	"golang.org/x/sync/errgroup"

	noria "github.com/Khalefa/noria"
)

// RunAll runs every domain's Run loop until either all of them return
// (a coordinated shutdown via Quit packets) or one of them returns an
// error, at which point every other domain is handed a Quit packet on
// its unbounded channel so a single domain's failure does not leave
// the rest of the process running leaderless.
func RunAll(ctx context.Context, domains []*noria.Domain) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for _, d := range domains {
		d := d
		group.Go(func() error {
			return d.Run()
		})
	}

	go func() {
		<-groupCtx.Done()
		for _, d := range domains {
			d.Mailbox().Unbounded.Send(noria.NewQuit())
		}
	}()

	return group.Wait()
}
