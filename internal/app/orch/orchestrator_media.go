package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/meshcast/internal/domain"
	"golang.org/x/sync/errgroup"
)

const maxParallelSync = 8

// StartCamera acquires camera and microphone and routes them to every connection.
func (o *Orchestrator) StartCamera(ctx context.Context) error {
	if o.stopped() {
		return ErrStopped
	}
	src, err := o.media.Camera(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	o.Local.SetCamera(src)
	o.OnLocalMediaChanged()
	return nil
}

// StartScreenShare swaps the outgoing video for a screen capture.
func (o *Orchestrator) StartScreenShare(ctx context.Context) error {
	if o.stopped() {
		return ErrStopped
	}
	src, err := o.media.Screen(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaUnavailable, err)
	}
	if err := o.Local.StartShare(src); err != nil {
		return err
	}
	o.OnLocalMediaChanged()
	return nil
}

// StopScreenShare stops the screen tracks and restores the camera video.
func (o *Orchestrator) StopScreenShare() error {
	if err := o.Local.StopShare(); err != nil {
		return err
	}
	o.OnLocalMediaChanged()
	return nil
}

// OnLocalMediaChanged re-routes the current local tracks to the uplink and
// every mesh connection.
func (o *Orchestrator) OnLocalMediaChanged() {
	o.syncAll(false)
}

// syncAll creates the uplink if needed and syncs every connection in
// parallel. With resend, pending offers are repeated.
func (o *Orchestrator) syncAll(resend bool) {
	if !o.Local.Active() || o.stopped() {
		return
	}
	o.withKey(domain.UplinkKey(), func() {
		if _, err := o.Registry.GetOrCreateUplink(); err != nil {
			logNegotiation(domain.UplinkKey(), "create uplink", err)
		}
	})

	var g errgroup.Group
	g.SetLimit(maxParallelSync)
	for _, conn := range o.Registry.All() {
		key := conn.Key
		g.Go(func() error {
			o.withKey(key, func() { o.syncConn(key, resend) })
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) syncConn(key domain.ConnKey, resend bool) {
	conn, ok := o.Registry.Get(key)
	if !ok || !o.Registry.IsLive(conn) {
		return
	}
	needsOffer, err := o.Router.Sync(conn, o.Local)
	logNegotiation(key, "sync tracks", err)
	switch {
	case needsOffer:
		logNegotiation(key, "offer", o.Engine.Offer(conn))
	case resend:
		logNegotiation(key, "resend offer", o.Engine.Resend(conn))
	}
}
