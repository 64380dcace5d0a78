package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"auto_trader/internal/bootstrap"
	"auto_trader/internal/core"
	"auto_trader/pkg/cli"
)

const defaultRandomCount = 10

// Console is the interactive operator loop. It satisfies bootstrap.Runner
// and exits when stdin closes, the operator quits, or the context is
// cancelled.
type Console struct {
	app *bootstrap.App
	in  io.Reader
	out io.Writer

	// session target used by a bare `activate`, set with `target`
	target decimal.Decimal
}

func NewConsole(app *bootstrap.App, in io.Reader, out io.Writer) *Console {
	return &Console{app: app, in: in, out: out, target: app.Cfg.Trading.TargetProfit.Decimal}
}

func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.printf("Type 'help' for commands.\n")
	c.prompt()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.dispatch(ctx, line); quit {
				return nil
			}
			c.prompt()
		}
	}
}

func (c *Console) prompt() {
	fmt.Fprint(c.out, "> ")
}

func (c *Console) printf(format string, args ...interface{}) {
	fmt.Fprintf(c.out, format, args...)
}

// dispatch executes one command line; returns true on quit
func (c *Console) dispatch(ctx context.Context, line string) bool {
	if err := cli.ValidateInput(line); err != nil {
		c.printf("rejected: %v\n", err)
		return false
	}

	args := strings.Fields(strings.TrimSpace(line))
	if len(args) == 0 {
		return false
	}

	cmd := strings.ToLower(args[0])
	args = args[1:]

	switch cmd {
	case "help":
		c.printHelp()
	case "connect":
		c.doConnect(ctx)
	case "disconnect":
		c.app.Refresher.Stop()
		c.app.Coordinator.Disconnect()
		c.printf("disconnected\n")
	case "leverage":
		c.doLeverage(args)
	case "symbols":
		c.doSymbols(ctx)
	case "trade":
		c.doTrade(ctx, args)
	case "add":
		c.doAdd(ctx, args)
	case "random":
		c.doRandom(ctx, args)
	case "close":
		c.doCloseAll(ctx)
	case "target":
		c.doTarget(args)
	case "activate":
		c.doActivate(ctx, args)
	case "deactivate":
		c.app.Coordinator.DeactivateMonitor()
		c.printf("monitor deactivated\n")
	case "status":
		c.doStatus(ctx)
	case "quit", "exit":
		return true
	default:
		c.printf("unknown command %q, type 'help'\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	c.printf(`Commands:
  connect                      verify venue connectivity and position mode
  disconnect                   stop monitoring and drop the session
  leverage <1-125>             set leverage for subsequent entries
  symbols                      list tradable perpetual symbols
  trade [sel ...]              open positions splitting the configured notional;
                               sel is SYM[:long|:short][@tp_price], default long;
                               no selections picks %d random symbols
  add <sel> <notional>         open one position with its own notional
  random [n]                   pick n random tradable symbols (default %d)
  close                        close all open positions now
  target <amount>              set the profit target used by activate
  activate [target]            start the profit monitor
  deactivate                   stop the profit monitor
  status                       print the current PNL snapshot
  quit                         exit
`, defaultRandomCount, defaultRandomCount)
}

// parseSelection parses SYM[:long|:short][@price] into an entry request.
func parseSelection(token string) (core.EntryRequest, error) {
	req := core.EntryRequest{PositionSide: core.PositionSideLong}

	rest := token
	if at := strings.IndexByte(rest, '@'); at >= 0 {
		price, err := decimal.NewFromString(rest[at+1:])
		if err != nil || !price.IsPositive() {
			return req, fmt.Errorf("invalid take-profit price in %q", token)
		}
		req.TakeProfitPrice = price
		rest = rest[:at]
	}
	if colon := strings.IndexByte(rest, ':'); colon >= 0 {
		switch strings.ToLower(rest[colon+1:]) {
		case "long":
			req.PositionSide = core.PositionSideLong
		case "short":
			req.PositionSide = core.PositionSideShort
		default:
			return req, fmt.Errorf("invalid side in %q, use :long or :short", token)
		}
		rest = rest[:colon]
	}
	if rest == "" {
		return req, fmt.Errorf("missing symbol in %q", token)
	}
	req.Symbol = strings.ToUpper(rest)
	return req, nil
}

func (c *Console) doConnect(ctx context.Context) {
	if err := c.app.Coordinator.Connect(ctx); err != nil {
		c.printf("connect failed: %v\n", err)
		return
	}
	c.app.Refresher.Start(ctx)
	c.printf("connected to %s\n", c.app.Exchange.GetName())
}

func (c *Console) doLeverage(args []string) {
	if len(args) != 1 {
		c.printf("usage: leverage <1-125>\n")
		return
	}
	leverage, err := strconv.Atoi(args[0])
	if err != nil {
		c.printf("invalid leverage %q\n", args[0])
		return
	}
	if err := c.app.Coordinator.SetLeverage(leverage); err != nil {
		c.printf("leverage rejected: %v\n", err)
		return
	}
	c.printf("leverage set to %dx\n", leverage)
}

func (c *Console) doSymbols(ctx context.Context) {
	symbols, err := c.app.Coordinator.Symbols(ctx)
	if err != nil {
		c.printf("symbols failed: %v\n", err)
		return
	}
	c.printf("%d symbols: %s\n", len(symbols), strings.Join(symbols, " "))
}

func (c *Console) doTrade(ctx context.Context, args []string) {
	selections := make([]core.EntryRequest, 0, len(args))
	for _, a := range args {
		sel, err := parseSelection(a)
		if err != nil {
			c.printf("%v\n", err)
			return
		}
		selections = append(selections, sel)
	}

	if len(selections) == 0 {
		picked, err := c.app.Coordinator.RandomSymbols(ctx, defaultRandomCount)
		if err != nil {
			c.printf("symbol selection failed: %v\n", err)
			return
		}
		for _, sym := range picked {
			selections = append(selections, core.EntryRequest{Symbol: sym, PositionSide: core.PositionSideLong})
		}
	}

	results, err := c.app.Coordinator.Trade(ctx, selections, c.app.Cfg.Trading.TotalNotional.Decimal)
	if err != nil {
		c.printf("trade rejected: %v\n", err)
		return
	}
	c.printResults(results)
}

func (c *Console) printResults(results []core.EntryResult) {
	for _, r := range results {
		if !r.Entry.Ok() {
			c.printf("  %s: FAILED %v\n", r.Symbol, r.Entry.Err)
			continue
		}
		line := fmt.Sprintf("  %s: order %d", r.Symbol, r.Entry.OrderID)
		if r.TakeProfit != nil && !r.TakeProfit.Ok() {
			line += fmt.Sprintf(" (take-profit failed: %v)", r.TakeProfit.Err)
		}
		c.printf("%s\n", line)
	}
}

func (c *Console) doAdd(ctx context.Context, args []string) {
	if len(args) != 2 {
		c.printf("usage: add <sym[:side][@tp_price]> <notional>\n")
		return
	}
	sel, err := parseSelection(args[0])
	if err != nil {
		c.printf("%v\n", err)
		return
	}
	notional, err := decimal.NewFromString(args[1])
	if err != nil {
		c.printf("invalid notional %q\n", args[1])
		return
	}
	sel.Notional = notional

	result, err := c.app.Coordinator.AddPosition(ctx, sel)
	if err != nil {
		c.printf("add rejected: %v\n", err)
		return
	}
	c.printResults([]core.EntryResult{result})
}

func (c *Console) doRandom(ctx context.Context, args []string) {
	n := defaultRandomCount
	if len(args) == 1 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil {
			c.printf("invalid count %q\n", args[0])
			return
		}
		n = parsed
	}
	picked, err := c.app.Coordinator.RandomSymbols(ctx, n)
	if err != nil {
		c.printf("selection failed: %v\n", err)
		return
	}
	c.printf("%s\n", strings.Join(picked, " "))
}

func (c *Console) doTarget(args []string) {
	if len(args) != 1 {
		c.printf("current target: %s %s\n", c.target.String(), c.app.Cfg.App.QuoteAsset)
		return
	}
	parsed, err := decimal.NewFromString(args[0])
	if err != nil || !parsed.IsPositive() {
		c.printf("invalid target %q, must be a positive amount\n", args[0])
		return
	}
	c.target = parsed
	c.printf("target set to %s %s\n", c.target.String(), c.app.Cfg.App.QuoteAsset)
}

func (c *Console) doCloseAll(ctx context.Context) {
	report, err := c.app.Coordinator.CloseAll(ctx)
	if err != nil {
		c.printf("close rejected: %v\n", err)
		return
	}
	for _, entry := range report.Entries {
		if entry.Err != nil {
			c.printf("  %s: FAILED %v\n", entry.Symbol, entry.Err)
		} else {
			c.printf("  %s: closed\n", entry.Symbol)
		}
	}
	c.printf("close pass done, %d failed\n", report.Failed())
}

func (c *Console) doActivate(ctx context.Context, args []string) {
	target := c.target
	if len(args) == 1 {
		parsed, err := decimal.NewFromString(args[0])
		if err != nil {
			c.printf("invalid target %q\n", args[0])
			return
		}
		target = parsed
	}

	if err := c.app.Coordinator.ActivateMonitor(ctx, target); err != nil {
		c.printf("activation failed: %v\n", err)
		return
	}
	c.printf("monitor active, target %s %s\n", target.String(), c.app.Cfg.App.QuoteAsset)
}

func (c *Console) doStatus(ctx context.Context) {
	snap, err := c.app.Coordinator.Status(ctx)
	if err != nil {
		c.printf("status failed: %v\n", err)
		return
	}
	c.printf("%s\n", snap.Summary)
	if c.app.Coordinator.MonitorState() == core.MonitorActive {
		c.printf("monitor: active\n")
	} else {
		c.printf("monitor: inactive\n")
	}
}
