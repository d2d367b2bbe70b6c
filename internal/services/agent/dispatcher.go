package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/propcrm/realty-agent/internal/logger"
	"github.com/propcrm/realty-agent/internal/models"
	"github.com/propcrm/realty-agent/internal/services/messaging"
)

const (
	DefaultMaxConcurrentTurns = 32
	DefaultTurnBudget         = 2 * time.Minute
	defaultRetryDelay         = 3 * time.Second
	typingDelay               = 2 * time.Second
)

// TurnHandler produces the reply for one inbound message
type TurnHandler interface {
	HandleTurn(ctx context.Context, in TurnInput) string
}

// BotStatusSetter records the messaging connection state of a bot
type BotStatusSetter interface {
	SetStatus(ctx context.Context, id int64, status models.BotStatus) error
}

var _ TurnHandler = (*Orchestrator)(nil)

// Dispatcher runs turns in the background, bounded by a semaphore, and
// delivers each reply through the messaging gateway
type Dispatcher struct {
	turns      TurnHandler
	sender     messaging.Sender
	bots       BotStatusSetter
	sem        chan struct{}
	wg         sync.WaitGroup
	base       context.Context
	budget     time.Duration
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewDispatcher creates a dispatcher. Turns inherit values and cancellation from base.
func NewDispatcher(base context.Context, turns TurnHandler, sender messaging.Sender, bots BotStatusSetter, maxConcurrent int, budget time.Duration, log *zap.Logger) *Dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentTurns
	}
	if budget <= 0 {
		budget = DefaultTurnBudget
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		turns:      turns,
		sender:     sender,
		bots:       bots,
		sem:        make(chan struct{}, maxConcurrent),
		base:       base,
		budget:     budget,
		retryDelay: defaultRetryDelay,
		logger:     log,
	}
}

// Dispatch schedules a turn and returns immediately
func (d *Dispatcher) Dispatch(botID int64, in TurnInput) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case d.sem <- struct{}{}:
		case <-d.base.Done():
			return
		}
		defer func() { <-d.sem }()
		defer func() {
			if p := recover(); p != nil {
				d.logger.Error("dispatched_turn_panicked",
					zap.String("bot_instance", in.BotInstance),
					zap.Any("panic", p),
				)
			}
		}()
		d.run(botID, in)
	}()
}

// Wait blocks until every dispatched turn has finished
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(botID int64, in TurnInput) {
	ctx, cancel := context.WithTimeout(d.base, d.budget)
	defer cancel()

	number := messaging.NumberFromJID(in.ConversationID)
	if err := d.sender.SendPresence(ctx, in.BotInstance, number, messaging.PresenceComposing, typingDelay); err != nil {
		d.logger.Warn("failed_to_send_presence",
			zap.String("bot_instance", in.BotInstance),
			zap.Error(err),
		)
	}

	reply := d.turns.HandleTurn(ctx, in)
	d.deliver(ctx, botID, in.BotInstance, number, reply)
}

// deliver sends the reply, retrying once. A closed session triggers a
// reconnect check; when the instance needs a new QR pairing the bot is
// marked disconnected and the message is dropped.
func (d *Dispatcher) deliver(ctx context.Context, botID int64, instance, number, text string) {
	err := d.sender.SendText(ctx, instance, number, text)
	if err == nil {
		return
	}
	d.logger.Warn("failed_to_send_reply",
		zap.String("bot_instance", instance),
		zap.String("to", logger.MaskPhone(number)),
		zap.Error(err),
	)

	var httpErr *messaging.HTTPError
	if errors.As(err, &httpErr) && httpErr.ConnectionClosed() {
		qrRequired, rerr := d.sender.Reconnect(ctx, instance)
		if rerr != nil {
			d.logger.Warn("failed_to_reconnect_instance", zap.String("bot_instance", instance), zap.Error(rerr))
		}
		if qrRequired {
			if serr := d.bots.SetStatus(ctx, botID, models.BotStatusDisconnected); serr != nil {
				d.logger.Error("failed_to_mark_bot_disconnected", zap.Int64("bot_id", botID), zap.Error(serr))
			}
			d.logger.Error("instance_requires_qr_pairing", zap.String("bot_instance", instance))
			return
		}
	}

	select {
	case <-time.After(d.retryDelay):
	case <-ctx.Done():
		return
	}
	if err := d.sender.SendText(ctx, instance, number, text); err != nil {
		d.logger.Error("reply_delivery_failed",
			zap.String("bot_instance", instance),
			zap.String("to", logger.MaskPhone(number)),
			zap.Error(err),
		)
	}
}
