package tpu

import (
	"context"
	"io"
	"time"

	"github.com/jito-foundation/relayer/internal/logging"
	"github.com/joeycumines/go-longpoll"
)

// DefaultFetchDrainPartialTimeout bounds how long the fetch stage will wait
// for a handful of forwarded batches to accumulate before re-injecting
// whatever it has, so a quiet forwards channel never delays re-injection of
// a single pending batch for long.
const DefaultFetchDrainPartialTimeout = 5 * time.Millisecond

// RunFetchStage implements the Fetch Stage (C3): it merges the "forwarded"
// ingest stream into the "direct" one so everything downstream of this
// point (sigverify, fan-out) treats both uniformly (§4.3). Direct-pool
// packets are written straight into direct by the QUIC ingest servers; this
// function only re-injects forwards. It uses longpoll.Channel to drain a
// short run of forwarded batches per iteration rather than a strict
// one-in-one-out relay, which is what gives the merge "fair interleaving"
// with the direct stream instead of starving it with a tight forwards-only
// loop.
//
// RunFetchStage blocks until ctx is canceled or forwards is closed
// (Shutdown, §7: the stage exits its loop and returns, and the caller
// should close direct once all producers, including this one, have
// stopped).
func RunFetchStage(ctx context.Context, forwards <-chan PacketBatch, direct chan<- PacketBatch, log *logging.Logger) {
	if log == nil {
		log = logging.NoOp()
	}

	cfg := &longpoll.ChannelConfig{
		MaxSize:        32,
		MinSize:        -1,
		PartialTimeout: DefaultFetchDrainPartialTimeout,
	}

	for {
		err := longpoll.Channel(ctx, cfg, forwards, func(batch PacketBatch) error {
			select {
			case direct <- batch:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		switch err {
		case nil:
			// drained what was available within the partial timeout; loop
			// again immediately to pick up more.
		case io.EOF:
			log.Info().Log("fetch stage: forwards channel closed, exiting")
			return
		default:
			log.Info().Log("fetch stage: exiting on context cancellation")
			return
		}
	}
}
