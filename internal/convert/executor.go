package convert

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/convertbot/internal/decimalx"
	"github.com/aristath/convertbot/internal/domain"
	"github.com/aristath/convertbot/internal/xerr"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ExecutorConfig carries the order-polling and dry-run knobs the
// Executor needs, kept distinct from the full application Config so
// tests can construct one without pulling in config.Load.
type ExecutorConfig struct {
	OrderPollInterval time.Duration
	OrderPollMax      time.Duration
	DryRun            bool
	Wallet            domain.Wallet
}

// Executor drives the IDLE -> QUOTED -> ACCEPTED -> {SUCCESS, FAIL} state
// machine for a single RebalanceAction (C8).
type Executor struct {
	gw      domain.ConvertGateway
	history domain.HistoryStore
	cfg     ExecutorConfig
	log     zerolog.Logger
}

// NewExecutor builds an Executor.
func NewExecutor(gw domain.ConvertGateway, history domain.HistoryStore, cfg ExecutorConfig, log zerolog.Logger) *Executor {
	return &Executor{gw: gw, history: history, cfg: cfg, log: log.With().Str("component", "convert-executor").Logger()}
}

// Outcome summarizes one executed (or skipped) RebalanceAction.
type Outcome struct {
	Action    domain.RebalanceAction
	Order     *domain.Order
	Succeeded bool
	Skipped   bool
	Reason    string
}

// Execute runs the full state machine for a single action. Dry-run mode
// logs the would-be action and returns without any signed POST.
func (e *Executor) Execute(ctx context.Context, action domain.RebalanceAction) Outcome {
	correlationID := uuid.NewString()
	log := e.log.With().Str("correlation_id", correlationID).
		Str("from", action.FromAsset).Str("to", action.ToAsset).Logger()

	if e.cfg.DryRun {
		log.Info().Str("amount", action.Amount.String()).Str("reason", action.Reason).Msg("dry-run: skipping signed execution")
		return Outcome{Action: action, Skipped: true, Reason: "dry_run"}
	}

	quote, err := e.quoteWithRetry(ctx, action)
	if err != nil {
		return e.fail(action, "", fmt.Sprintf("quote failed: %v", err))
	}

	if err := e.validateAgainstRoute(quote, action.Route); err != nil {
		return e.fail(action, quote.QuoteID, err.Error())
	}

	order, duplicate, err := e.gw.AcceptQuote(ctx, quote.QuoteID)
	if err != nil {
		if reconciled := e.reconcile(ctx, quote.QuoteID, log); reconciled != nil {
			succeeded := reconciled.Status == domain.OrderSuccess
			reason := string(reconciled.Status)
			e.recordHistory(quote, reconciled, succeeded, reason)
			return Outcome{Action: action, Order: reconciled, Succeeded: succeeded, Reason: reason}
		}
		return e.fail(action, quote.QuoteID, fmt.Sprintf("acceptQuote failed: %v", err))
	}
	if duplicate {
		log.Warn().Str("quote_id", quote.QuoteID).Msg("accept was a duplicate, no order produced this call")
		return e.fail(action, quote.QuoteID, "duplicate_accept")
	}
	if order.OrderID == "" {
		return e.fail(action, quote.QuoteID, "accepted quote produced no orderId")
	}

	final, err := e.poll(ctx, order)
	if err != nil {
		log.Warn().Err(err).Msg("order status polling ended without terminal status, reconciling via tradeFlow")
		if reconciled := e.reconcile(ctx, quote.QuoteID, log); reconciled != nil {
			succeeded := reconciled.Status == domain.OrderSuccess
			reason := string(reconciled.Status)
			e.recordHistory(quote, reconciled, succeeded, reason)
			return Outcome{Action: action, Order: reconciled, Succeeded: succeeded, Reason: reason}
		}
		e.recordHistory(quote, order, false, "poll_timeout")
		return Outcome{Action: action, Order: order, Succeeded: false, Reason: "poll_timeout"}
	}

	succeeded := final.Status == domain.OrderSuccess
	reason := string(final.Status)
	e.recordHistory(quote, final, succeeded, reason)
	return Outcome{Action: action, Order: final, Succeeded: succeeded, Reason: reason}
}

// quoteWithRetry issues a quote and, if it has already expired by the
// time we would accept it, issues exactly one re-quote, per the QUOTED
// state's expiry handling.
func (e *Executor) quoteWithRetry(ctx context.Context, action domain.RebalanceAction) (*domain.Quote, error) {
	quote, err := e.gw.GetQuote(ctx, action.FromAsset, action.ToAsset, action.Amount, e.cfg.Wallet)
	if err != nil {
		return nil, err
	}
	if !quote.Expired(time.Now()) {
		return quote, nil
	}

	requoted, err := e.gw.GetQuote(ctx, action.FromAsset, action.ToAsset, action.Amount, e.cfg.Wallet)
	if err != nil {
		return nil, fmt.Errorf("re-quote after expiry: %w", err)
	}
	if requoted.Expired(time.Now()) {
		return nil, xerr.New(xerr.KindQuoteExpired, "", "re-quoted quote also expired before use")
	}
	return requoted, nil
}

// validateAgainstRoute enforces the minQuote/maxQuote bounds carried by
// the route for the QUOTED state.
func (e *Executor) validateAgainstRoute(quote *domain.Quote, route domain.ConvertRoute) error {
	min := route.MinQuote()
	max := route.MaxQuote()
	if min.IsPositive() && quote.FromAmount.LessThan(min) {
		return xerr.New(xerr.KindBusinessRule, "", "quote fromAmount below minQuote")
	}
	if max.IsPositive() && quote.FromAmount.GreaterThan(max) {
		return xerr.New(xerr.KindBusinessRule, "", "quote fromAmount above maxQuote")
	}
	return nil
}

// poll repeatedly fetches order status until a terminal status is seen
// or the wall-clock deadline elapses.
func (e *Executor) poll(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	deadline := time.Now().Add(e.cfg.OrderPollMax)
	current := order

	for {
		if current.Status.IsTerminal() {
			return current, nil
		}
		if time.Now().After(deadline) {
			return current, fmt.Errorf("order %s did not reach a terminal status within %s", current.OrderID, e.cfg.OrderPollMax)
		}

		select {
		case <-ctx.Done():
			return current, ctx.Err()
		case <-time.After(e.cfg.OrderPollInterval):
		}

		updated, err := e.gw.OrderStatus(ctx, current.OrderID, current.QuoteID)
		if err != nil {
			continue // transient read failure during polling; try again until deadline
		}
		current = updated
	}
}

// reconcile queries tradeFlow for a record matching quoteID after a
// network failure on acceptQuote or a poll timeout, per §4.8's
// reconcile-before-concluding-failure requirement. Returns nil if no
// matching record is found (or the query itself fails), in which case
// the caller falls back to recording a plain failure.
func (e *Executor) reconcile(ctx context.Context, quoteID string, log zerolog.Logger) *domain.Order {
	end := time.Now().UnixMilli()
	start := end - int64(24*time.Hour/time.Millisecond)

	records, _, err := e.gw.TradeFlow(ctx, start, end, 100, "")
	if err != nil {
		log.Warn().Err(err).Str("quote_id", quoteID).Msg("tradeFlow reconciliation query failed")
		return nil
	}

	for _, rec := range records {
		if rec.QuoteID != quoteID {
			continue
		}
		log.Info().Str("quote_id", quoteID).Str("order_id", rec.OrderID).Msg("reconciled outcome via tradeFlow")
		status := domain.OrderSuccess
		if rec.ErrorMsg != "" {
			status = domain.OrderFail
		}
		fromAmount, _ := decimal.NewFromString(rec.FromAmount)
		toAmount, _ := decimal.NewFromString(rec.ToAmount)
		return &domain.Order{
			OrderID:    rec.OrderID,
			QuoteID:    rec.QuoteID,
			CreateTime: rec.Timestamp,
			Status:     status,
			FromAmount: fromAmount,
			ToAmount:   toAmount,
		}
	}
	return nil
}

func (e *Executor) fail(action domain.RebalanceAction, quoteID, reason string) Outcome {
	e.log.Warn().Str("from", action.FromAsset).Str("to", action.ToAsset).Str("reason", reason).Msg("convert action failed")
	if e.history != nil {
		e.history.Append(domain.ConvertHistoryRecord{
			QuoteID:    quoteID,
			FromToken:  action.FromAsset,
			ToToken:    action.ToAsset,
			FromAmount: decimalx.FloorString8(action.Amount),
			Accepted:   false,
			ErrorMsg:   reason,
			Timestamp:  time.Now().UnixMilli(),
		})
	}
	return Outcome{Action: action, Skipped: false, Succeeded: false, Reason: reason}
}

func (e *Executor) recordHistory(quote *domain.Quote, order *domain.Order, succeeded bool, reason string) {
	if e.history == nil {
		return
	}
	rec := domain.ConvertHistoryRecord{
		QuoteID:      quote.QuoteID,
		OrderID:      order.OrderID,
		FromToken:    quote.FromAsset,
		ToToken:      quote.ToAsset,
		Ratio:        quote.Ratio.String(),
		InverseRatio: quote.InverseRatio.String(),
		FromAmount:   quote.FromAmount.String(),
		ToAmount:     quote.ToAmount.String(),
		Accepted:     true,
		Timestamp:    time.Now().UnixMilli(),
	}
	if !succeeded {
		rec.ErrorMsg = reason
	}
	if err := e.history.Append(rec); err != nil {
		e.log.Error().Err(err).Msg("failed to append convert history record")
	}
}
