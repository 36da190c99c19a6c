package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/1broseidon/framelink/internal/logging"
	"github.com/1broseidon/framelink/internal/protocol"
	"github.com/1broseidon/framelink/internal/renderer"
)

const connectTimeout = 10 * time.Second

var errHostGone = errors.New("host closed the channel")

func run(parent context.Context, args *renderer.Args, fps int) error {
	log := logging.Logger()
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc := newScene(args.Scale)
	dirty := make(chan struct{}, 1)
	markDirty := func() {
		select {
		case dirty <- struct{}{}:
		default:
		}
	}

	var current atomic.Pointer[renderer.Session]
	connectCtx, cancelConnect := context.WithTimeout(ctx, connectTimeout)
	sess, err := renderer.Connect(connectCtx, args, renderer.Handlers{
		OnInput: func(e protocol.Event) {
			if sc.handleInput(e) {
				markDirty()
			}
		},
		OnTree: func(t *protocol.Tree) {
			reply := sc.handleTree(t)
			if reply == nil {
				return
			}
			markDirty()
			if s := current.Load(); s != nil {
				if err := s.SendEvent(reply); err != nil {
					log.Debug("echo failed", "error", err)
				}
			}
		},
	}, renderer.Options{})
	cancelConnect()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer sess.Close()
	current.Store(sess)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-sess.Done():
			return errHostGone
		case <-gctx.Done():
			return nil
		}
	})
	g.Go(func() error {
		var tick <-chan time.Time
		if fps > 0 {
			ticker := time.NewTicker(time.Second / time.Duration(fps))
			defer ticker.Stop()
			tick = ticker.C
		}
		for {
			if err := sess.Frame(sc.draw); err != nil {
				if errors.Is(err, renderer.ErrClosed) {
					return nil
				}
				return fmt.Errorf("frame: %w", err)
			}
			select {
			case <-gctx.Done():
				return nil
			case <-dirty:
			case <-tick:
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, errHostGone) {
		log.Info("host closed the channel, exiting")
		return nil
	}
	return err
}
