package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Skotchmaster/bookstore/internal/config"
	"github.com/Skotchmaster/bookstore/internal/logging"
	"github.com/Skotchmaster/bookstore/pkg/apiclient"
	"github.com/Skotchmaster/bookstore/pkg/cart"
)

const usage = `usage: bookctl [-url URL] [-dir DIR] <command> [args]

commands:
  login <username> <password>
  books [-search s] [-category c] [-sort price_asc|price_desc|newest] [-page n]
  cart add <book-id> | cart list | cart remove <index> | cart qty <index> <n> | cart clear
  checkout <payment-method>
  history
`

type app struct {
	client  *apiclient.Client
	cart    *cart.Store
	dir     string
	timeout time.Duration
}

func main() {
	fs := flag.NewFlagSet("bookctl", flag.ExitOnError)
	baseURL := fs.String("url", config.EnvDefault("BOOKSTORE_URL", "http://localhost:8080"), "bookstore API base URL")
	dir := fs.String("dir", defaultDir(), "state directory for session and cart")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	_ = fs.Parse(os.Args[1:])

	logger := logging.NewWithWriter(os.Stderr, os.Getenv("LOG_LEVEL"))

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		os.Exit(2)
	}

	a, err := newApp(*baseURL, *dir)
	if err != nil {
		logger.Error("init_failed", "error", err)
		os.Exit(1)
	}

	if err := a.run(args[0], args[1:]); err != nil {
		var apiErr *apiclient.APIError
		if errors.As(err, &apiErr) {
			logger.Error("request_failed", "command", args[0], "status", apiErr.Status, "message", apiErr.Message)
		} else {
			logger.Error("command_failed", "command", args[0], "error", err)
		}
		os.Exit(1)
	}
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bookctl"
	}
	return filepath.Join(home, ".bookctl")
}

func newApp(baseURL, dir string) (*app, error) {
	c, err := cart.Open(filepath.Join(dir, "cart.json"))
	if err != nil {
		return nil, err
	}
	client := apiclient.NewClient(baseURL)
	if tok, err := os.ReadFile(filepath.Join(dir, "token")); err == nil {
		client.SetToken(strings.TrimSpace(string(tok)))
	}
	return &app{client: client, cart: c, dir: dir, timeout: 15 * time.Second}, nil
}

func (a *app) run(cmd string, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "books":
		return a.books(ctx, args)
	case "cart":
		return a.cartCmd(ctx, args)
	case "checkout":
		return a.checkout(ctx, args)
	case "history":
		return a.history(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("login needs <username> <password>")
	}
	res, err := a.client.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if err := os.MkdirAll(a.dir, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(a.dir, "token"), []byte(res.Token), 0o600); err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s)\n", res.User.Username, res.User.Role)
	return nil
}

func (a *app) books(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("books", flag.ContinueOnError)
	var q apiclient.BookQuery
	fs.StringVar(&q.Search, "search", "", "title or author substring")
	fs.StringVar(&q.Category, "category", "", "category")
	fs.StringVar(&q.Sort, "sort", "", "price_asc, price_desc or newest")
	fs.IntVar(&q.Page, "page", 1, "page number")
	fs.IntVar(&q.Limit, "limit", 10, "page size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	page, err := a.client.ListBooks(ctx, q)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tPRICE\tSTOCK")
	for _, b := range page.Books {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n", b.ID, b.Title, b.Author, b.Price.StringFixed(2), b.Stock)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("page %d/%d, %d books\n", page.Page, page.Pages, page.Total)
	return nil
}

func (a *app) cartCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("cart needs a subcommand")
	}

	switch args[0] {
	case "add":
		if len(args) != 2 {
			return errors.New("cart add needs <book-id>")
		}
		id, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid book id %q", args[1])
		}
		b, err := a.client.GetBook(ctx, uint(id))
		if err != nil {
			return err
		}
		if b.Stock < 1 {
			return fmt.Errorf("%q is out of stock", b.Title)
		}
		return a.cart.AddItem(cart.Item{ID: b.ID, Title: b.Title, Price: b.Price})
	case "list":
		return a.printCart()
	case "remove":
		i, err := index(args, 2)
		if err != nil {
			return err
		}
		return a.cart.RemoveItem(i)
	case "qty":
		i, err := index(args, 3)
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[2])
		}
		return a.cart.UpdateQuantity(i, n)
	case "clear":
		return a.cart.Clear()
	default:
		return fmt.Errorf("unknown cart subcommand %q", args[0])
	}
}

func index(args []string, want int) (int, error) {
	if len(args) != want {
		return 0, fmt.Errorf("cart %s: wrong number of arguments", args[0])
	}
	i, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", args[1])
	}
	return i, nil
}

func (a *app) printCart() error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tTITLE\tPRICE\tQTY")
	for i, it := range a.cart.Items() {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\n", i, it.ID, it.Title, it.Price.StringFixed(2), it.Quantity)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d items, total %s\n", a.cart.TotalItems(), a.cart.TotalPrice().StringFixed(2))
	return nil
}

func (a *app) checkout(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("checkout needs <payment-method>")
	}
	items := a.cart.CheckoutItems()
	if len(items) == 0 {
		return errors.New("cart is empty")
	}

	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	prep, err := a.client.Prepare(ctx, ids)
	if err != nil {
		return err
	}
	if _, ok := prep.SellerPaymentCodes[args[0]]; !ok && len(prep.SellerPaymentCodes) > 0 {
		return fmt.Errorf("seller %s does not accept %s", prep.Seller.Name, args[0])
	}

	res, err := a.client.Confirm(ctx, apiclient.ConfirmRequest{
		PaymentMethod:  args[0],
		SelectedSeller: prep.Seller.ID,
		CartItems:      items,
	})
	if err != nil {
		return err
	}
	if err := a.cart.Clear(); err != nil {
		return err
	}
	fmt.Printf("%s: %d orders placed with %s\n", res.Message, len(res.Orders), prep.Seller.Name)
	return nil
}

func (a *app) history(ctx context.Context) error {
	entries, err := a.client.History(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBOOK\tQTY\tTOTAL\tSTATUS\tSELLER\tDATE")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
			e.ID, e.BookTitle, e.Quantity, e.TotalPrice.StringFixed(2), e.Status, e.SellerName, e.CreatedAt.Format(time.DateTime))
	}
	return w.Flush()
}
