package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/delivery-client/internal/api"
	"github.com/mmeshcher/delivery-client/internal/controller"
	"github.com/mmeshcher/delivery-client/internal/view"
)

// App связывает интерактивный ввод, контроллер и рендерер.
type App struct {
	ctrl     *controller.Controller
	renderer *Renderer
	logger   *zap.Logger
	in       io.Reader
}

// NewApp создаёт интерактивное приложение.
func NewApp(ctrl *controller.Controller, renderer *Renderer, logger *zap.Logger, in io.Reader) *App {
	return &App{
		ctrl:     ctrl,
		renderer: renderer,
		logger:   logger,
		in:       in,
	}
}

// Run восстанавливает сессию, запускает фоновый опрос и обрабатывает команды
// до конца ввода или отмены контекста.
func (a *App) Run(ctx context.Context) error {
	if a.ctrl.Authenticated() {
		if err := a.ctrl.LoadCurrentUser(ctx); err != nil {
			a.renderer.Notice("session expired, please log in again")
		}
	}

	if a.ctrl.Authenticated() {
		a.afterLogin(ctx)
	} else {
		a.renderer.Notice("welcome: log in with `login <email> <password>` or register with `register <username> <email> <password>`")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(a.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			a.ctrl.StopPolling()
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				a.ctrl.StopPolling()
				return nil
			}
			if quit := a.handle(ctx, line); quit {
				a.ctrl.StopPolling()
				return nil
			}
		}
	}
}

func (a *App) afterLogin(ctx context.Context) {
	a.renderer.User(a.ctrl.User())
	if err := a.ctrl.RefreshEstablishments(ctx); err != nil {
		a.notifyErr(err)
	}
	if err := a.ctrl.RefreshMyOrders(ctx); err != nil {
		a.notifyErr(err)
	}
	a.ctrl.StartPolling(ctx)
}

// handle выполняет одну команду; true означает выход из приложения.
func (a *App) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		a.printHelp()
	case "login":
		if len(args) != 2 {
			a.renderer.Notice("usage: login <email> <password>")
			return false
		}
		if err := a.ctrl.Login(ctx, args[0], args[1]); err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.Notice("login successful")
		a.afterLogin(ctx)
	case "register":
		if len(args) != 3 {
			a.renderer.Notice("usage: register <username> <email> <password>")
			return false
		}
		if err := a.ctrl.Register(ctx, args[0], args[1], args[2]); err != nil {
			a.notifyErr(err)
			return false
		}
		// После регистрации пользователь входит сам, автологина нет.
		a.renderer.Notice("registration successful, please log in")
	case "logout":
		if err := a.ctrl.Logout(); err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.Notice("logged out")
	case "whoami":
		a.renderer.User(a.ctrl.User())
	case "location":
		if len(args) != 2 {
			a.renderer.Notice("usage: location <lat> <lon>")
			return false
		}
		lat, latErr := strconv.ParseFloat(args[0], 64)
		lon, lonErr := strconv.ParseFloat(args[1], 64)
		if latErr != nil || lonErr != nil {
			a.renderer.Notice("could not parse coordinates")
			return false
		}
		a.ctrl.SetLocation(lat, lon)
		if err := a.ctrl.RefreshEstablishments(ctx); err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.Notice("location updated")
		a.renderer.Establishments(a.ctrl.Establishments())
	case "list":
		if err := a.ctrl.RefreshEstablishments(ctx); err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.Establishments(a.ctrl.Establishments())
	case "search":
		if err := a.ctrl.SearchEstablishments(ctx, strings.Join(args, " ")); err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.Establishments(a.ctrl.Establishments())
	case "select":
		list := a.ctrl.Establishments()
		idx, err := parseIndex(args, len(list))
		if err != nil {
			a.renderer.Notice("usage: select <number from the last list>")
			return false
		}
		a.ctrl.SelectEstablishment(list[idx])
		a.renderer.Notice("ordering from %s; previous draft discarded", list[idx].Name)
	case "menu":
		items, err := a.ctrl.Menu(ctx)
		if err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.Menu(items)
	case "add":
		// add <price> <qty> <name...> [| notes]
		if len(args) < 3 {
			a.renderer.Notice("usage: add <price> <qty> <name> [| notes]")
			return false
		}
		price, _ := strconv.ParseFloat(args[0], 64)
		qty, err := strconv.Atoi(args[1])
		if err != nil {
			qty = 1
		}
		name, notes := splitNotes(strings.Join(args[2:], " "))
		if err := a.ctrl.AddItem(name, qty, price, notes); err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.Draft(a.ctrl.DraftItems(), a.ctrl.DraftTotals())
	case "remove":
		idx, err := parseIndex(args, len(a.ctrl.DraftItems()))
		if err != nil {
			a.renderer.Notice("usage: remove <item number>")
			return false
		}
		if err := a.ctrl.RemoveItem(idx); err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.Draft(a.ctrl.DraftItems(), a.ctrl.DraftTotals())
	case "draft":
		a.renderer.Draft(a.ctrl.DraftItems(), a.ctrl.DraftTotals())
	case "submit":
		// submit <address...> [| instructions]
		address, instructions := splitNotes(strings.Join(args, " "))
		if err := a.ctrl.SubmitOrder(ctx, address, instructions); err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.Notice("order placed")
		a.renderer.User(a.ctrl.User())
	case "orders":
		if err := a.ctrl.RefreshMyOrders(ctx); err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.Cards("my orders", view.ProjectOrders(a.ctrl.MyOrders(), view.ContextMyOrder))
	case "available":
		a.ctrl.SetDeliverTabActive(true)
		if err := a.ctrl.RefreshAvailableOrders(ctx); err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.Cards("available orders", view.ProjectOrders(a.ctrl.AvailableOrders(), view.ContextAvailable))
	case "deliveries":
		a.ctrl.SetDeliverTabActive(true)
		if err := a.ctrl.RefreshDeliveries(ctx); err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.Cards("my deliveries", view.ProjectOrders(a.ctrl.Deliveries(), view.ContextMyDelivery))
	case "order":
		list := a.ctrl.MyOrders()
		idx, err := parseIndex(args, len(list))
		if err != nil {
			a.renderer.Notice("usage: order <order number from `orders`>")
			return false
		}
		detail, err := a.ctrl.OrderDetail(ctx, list[idx].ID)
		if err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.OrderDetail(detail, view.ProjectOrder(detail.Order, view.ContextMyOrder))
	case "request-tab":
		a.ctrl.SetDeliverTabActive(false)
		a.renderer.Cards("my orders", view.ProjectOrders(a.ctrl.MyOrders(), view.ContextMyOrder))
	case "accept":
		idx, err := parseIndex(args, len(a.ctrl.AvailableOrders()))
		if err != nil {
			a.renderer.Notice("usage: accept <order number from `available`>")
			return false
		}
		if err := a.ctrl.AcceptOrder(ctx, a.ctrl.AvailableOrders()[idx].ID); err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.Notice("order accepted")
		a.renderer.Cards("my deliveries", view.ProjectOrders(a.ctrl.Deliveries(), view.ContextMyDelivery))
	case "pickup":
		idx, err := parseIndex(args, len(a.ctrl.Deliveries()))
		if err != nil {
			a.renderer.Notice("usage: pickup <order number from `deliveries`>")
			return false
		}
		if err := a.ctrl.MarkPickedUp(ctx, a.ctrl.Deliveries()[idx].ID); err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.Notice("marked as picked up")
	case "photo":
		if len(args) != 2 {
			a.renderer.Notice("usage: photo <order number from `deliveries`> <image file>")
			return false
		}
		idx, err := parseIndex(args[:1], len(a.ctrl.Deliveries()))
		if err != nil {
			a.renderer.Notice("usage: photo <order number from `deliveries`> <image file>")
			return false
		}
		if err := a.uploadPhoto(ctx, a.ctrl.Deliveries()[idx].ID, args[1]); err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.Notice("photo uploaded, order marked as delivered")
	case "confirm":
		idx, err := parseIndex(args, len(a.ctrl.MyOrders()))
		if err != nil {
			a.renderer.Notice("usage: confirm <order number from `orders`>")
			return false
		}
		if err := a.ctrl.CompleteOrder(ctx, a.ctrl.MyOrders()[idx].ID); err != nil {
			a.notifyErr(err)
			return false
		}
		a.renderer.Notice("order completed, points transferred")
		a.renderer.User(a.ctrl.User())
	default:
		a.renderer.Notice("unknown command %q, try `help`", cmd)
	}

	return false
}

func (a *App) uploadPhoto(ctx context.Context, orderID, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	return a.ctrl.UploadCompletionImage(ctx, orderID, f.Name(), f)
}

// notifyErr показывает отказ сервера его же формулировкой, транспортные сбои —
// обезличенным сообщением без технических деталей.
func (a *App) notifyErr(err error) {
	a.logger.Debug("command failed", zap.Error(err))

	var apiErr *api.Error
	var netErr *url.Error
	switch {
	case errors.As(err, &apiErr):
		a.renderer.Notice("error: %s", apiErr)
	case errors.As(err, &netErr):
		a.renderer.Notice("network error, please try again")
	default:
		a.renderer.Notice("error: %s", err)
	}
}

func (a *App) printHelp() {
	a.renderer.Notice(strings.TrimSpace(`
login <email> <password>        log in
register <username> <email> <password>
logout                          log out and stop background refresh
whoami                          show username and points
location <lat> <lon>            set coordinates for distance sorting
list                            list establishments
search <query>                  search establishments
select <n>                      start an order at establishment n
menu                            show the selected establishment's menu
add <price> <qty> <name> [| notes]
remove <n>                      remove draft item n
draft                           show the draft and totals
submit <address> [| instructions]
orders                          my orders (requester view)
order <n>                       full detail for order n from that list
available                       orders available for delivery
deliveries                      my active deliveries
accept|pickup|confirm <n>       act on an order from the matching list
photo <n> <file>                upload a delivery proof photo
quit`))
}

func parseIndex(args []string, length int) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected one argument")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("parse index: %w", err)
	}
	if n < 1 || n > length {
		return 0, fmt.Errorf("index out of range")
	}
	return n - 1, nil
}

// splitNotes делит строку вида "текст | примечание" на основную часть и примечание.
func splitNotes(s string) (string, string) {
	main, notes, found := strings.Cut(s, "|")
	if !found {
		return strings.TrimSpace(s), ""
	}
	return strings.TrimSpace(main), strings.TrimSpace(notes)
}
