package pubsub

import (
	"context"
	"fmt"
	"sync"

	"adlign-personalization-layer/internal/domain"

	"github.com/rs/zerolog"
)

// ScanJobChannel is one subscriber's stream of scan job updates
type ScanJobChannel struct {
	ID     string
	Shop   string
	Events chan *domain.ScanJob
	ctx    context.Context
	cancel context.CancelFunc
}

// Close ends the subscription. Events is closed afterwards.
func (c *ScanJobChannel) Close() {
	c.cancel()
}

// ScanJobPubSub fans scan job state changes out to live subscribers
type ScanJobPubSub struct {
	mu       sync.RWMutex
	channels map[string]*ScanJobChannel
	logger   zerolog.Logger
	buffer   int
	nextID   int64
	idMu     sync.Mutex
}

func NewScanJobPubSub(logger zerolog.Logger) *ScanJobPubSub {
	return &ScanJobPubSub{
		channels: make(map[string]*ScanJobChannel),
		logger:   logger,
		buffer:   10,
	}
}

// Subscribe returns a channel of updates for shop, or for every shop when
// shop is empty. The subscription ends with ctx.
func (ps *ScanJobPubSub) Subscribe(ctx context.Context, shop string) *ScanJobChannel {
	ps.idMu.Lock()
	ps.nextID++
	id := fmt.Sprintf("scan-channel-%d", ps.nextID)
	ps.idMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	channel := &ScanJobChannel{
		ID:     id,
		Shop:   shop,
		Events: make(chan *domain.ScanJob, ps.buffer),
		ctx:    subCtx,
		cancel: cancel,
	}

	ps.mu.Lock()
	ps.channels[id] = channel
	ps.mu.Unlock()

	ps.logger.Debug().
		Str("channelId", id).
		Str("shop", shop).
		Msg("Scan job subscription created")

	go func() {
		<-subCtx.Done()
		ps.unsubscribe(id)
	}()

	return channel
}

func (ps *ScanJobPubSub) unsubscribe(channelID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	channel, ok := ps.channels[channelID]
	if !ok {
		return
	}
	close(channel.Events)
	delete(ps.channels, channelID)

	ps.logger.Debug().Str("channelId", channelID).Msg("Scan job subscription removed")
}

// Publish never blocks; a subscriber with a full buffer misses the update.
func (ps *ScanJobPubSub) Publish(job *domain.ScanJob) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	delivered := 0
	for _, channel := range ps.channels {
		if channel.Shop != "" && channel.Shop != job.ShopDomain {
			continue
		}
		select {
		case <-channel.ctx.Done():
		case channel.Events <- job:
			delivered++
		default:
			ps.logger.Warn().
				Str("channelId", channel.ID).
				Str("job", job.ID).
				Msg("Channel buffer full, dropping scan job update")
		}
	}

	if delivered > 0 {
		ps.logger.Debug().
			Str("shop", job.ShopDomain).
			Str("status", string(job.Status)).
			Int("subscribers", delivered).
			Msg("Published scan job update")
	}
}

// Subscribers reports the number of open subscriptions
func (ps *ScanJobPubSub) Subscribers() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.channels)
}
