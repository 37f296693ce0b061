// Command botcli is a small terminal front-end for the bots API. It drives
// the same client-side controllers a graphical UI would: the synchronizer
// for the list, the form controller for create/edit, and the view state
// machine for gating.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"emailbots/pkg/client"
	"emailbots/pkg/domain"
)

func main() {
	_ = godotenv.Load()

	baseURL := flag.String("api", envOr("BOTS_API_URL", "http://localhost:8080"), "bots API base URL")
	token := flag.String("token", os.Getenv("BOTS_API_TOKEN"), "session token")
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	c := client.NewClient(*baseURL)
	view := client.NewView(c)
	view.Token = *token

	var err error
	switch flag.Arg(0) {
	case "signup":
		err = signIn(c, view, flag.Args()[1:], true)
	case "login":
		err = signIn(c, view, flag.Args()[1:], false)
	case "logout":
		err = view.SignOut()
	case "list":
		err = list(c)
	case "create":
		err = create(view)
	case "edit":
		err = edit(c, view, flag.Args()[1:])
	case "delete":
		err = remove(view, flag.Args()[1:])
	case "watch":
		err = watch(c)
	case "settings":
		err = settings(c, view, flag.Args()[1:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: botcli [-api URL] [-token TOKEN] <command>

commands:
  signup <email>      register an account and print a session token
  login <email>       sign in and print a session token
  logout              revoke the current session token
  list                print all bots, newest first
  create              create a bot (prompts for fields)
  edit <id>           edit a bot (prompts for fields)
  delete <id>         delete a bot after confirmation
  watch               follow change notifications and reprint the list
  settings [get|set]  show or update account settings`)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func signIn(c *client.Client, view *client.View, args []string, signup bool) error {
	if len(args) < 1 {
		return errors.New("email argument required")
	}
	fmt.Fprint(os.Stderr, "password: ")
	password, err := readLine()
	if err != nil {
		return err
	}
	var session client.Session
	if signup {
		session, err = c.SignUp(args[0], password)
	} else {
		session, err = c.SignIn(args[0], password)
	}
	if err != nil {
		return err
	}
	view.SignIn(session)
	fmt.Println(session.Token)
	return nil
}

func list(c *client.Client) error {
	sync := client.NewSynchronizer(c, nil)
	if err := sync.Refresh(); err != nil {
		return err
	}
	printBots(sync.Bots())
	return nil
}

func create(view *client.View) error {
	if !view.OpenCreateForm() {
		return errors.New("sign in first (pass -token or set BOTS_API_TOKEN)")
	}
	if err := fillDraft(&view.Form().Draft); err != nil {
		return err
	}
	bot, err := view.SubmitForm()
	if err != nil {
		return err
	}
	fmt.Println("created", bot.ID)
	return nil
}

func edit(c *client.Client, view *client.View, args []string) error {
	if len(args) < 1 {
		return errors.New("bot id argument required")
	}
	bots, err := c.ListBots()
	if err != nil {
		return err
	}
	var seed *domain.Bot
	for i := range bots {
		if bots[i].ID == args[0] {
			seed = &bots[i]
			break
		}
	}
	if seed == nil {
		return errors.New("bot not found")
	}
	if !view.OpenEditForm(*seed) {
		return errors.New("sign in first (pass -token or set BOTS_API_TOKEN)")
	}
	if err := fillDraft(&view.Form().Draft); err != nil {
		return err
	}
	bot, err := view.SubmitForm()
	if err != nil {
		return err
	}
	fmt.Println("updated", bot.ID)
	return nil
}

func remove(view *client.View, args []string) error {
	if len(args) < 1 {
		return errors.New("bot id argument required")
	}
	err := view.DeleteBot(args[0], func() bool {
		fmt.Fprintf(os.Stderr, "delete bot %s? [y/N] ", args[0])
		answer, err := readLine()
		if err != nil {
			return false
		}
		return strings.EqualFold(strings.TrimSpace(answer), "y")
	})
	if err != nil {
		return err
	}
	return nil
}

func watch(c *client.Client) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sync := client.NewSynchronizer(c, func(err error) {
		fmt.Fprintln(os.Stderr, "fetch failed:", err)
	})
	if err := sync.Refresh(); err == nil {
		printBots(sync.Bots())
	}

	sub, err := c.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-sub:
			if !ok {
				return nil
			}
			fmt.Printf("-- %s %s\n", e.Type, e.ID)
			if err := sync.Refresh(); err == nil {
				printBots(sync.Bots())
			}
		}
	}
}

func settings(c *client.Client, view *client.View, args []string) error {
	if !view.Authenticated() {
		return errors.New("sign in first (pass -token or set BOTS_API_TOKEN)")
	}
	if len(args) > 0 && args[0] == "set" {
		current, err := c.GetSettings(view.Token)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "timezone [%s]: ", current.Timezone)
		if tz, err := readLine(); err == nil && strings.TrimSpace(tz) != "" {
			current.Timezone = strings.TrimSpace(tz)
		}
		fmt.Fprintf(os.Stderr, "email notifications (y/n) [%v]: ", current.EmailNotifications)
		if answer, err := readLine(); err == nil && strings.TrimSpace(answer) != "" {
			current.EmailNotifications = strings.EqualFold(strings.TrimSpace(answer), "y")
		}
		updated, err := c.UpdateSettings(view.Token, current)
		if err != nil {
			return err
		}
		printSettings(updated)
		return nil
	}
	current, err := c.GetSettings(view.Token)
	if err != nil {
		return err
	}
	printSettings(current)
	return nil
}

func fillDraft(draft *client.BotInput) error {
	prompt := func(label, current string) (string, error) {
		if current != "" {
			fmt.Fprintf(os.Stderr, "%s [%s]: ", label, current)
		} else {
			fmt.Fprintf(os.Stderr, "%s: ", label)
		}
		line, err := readLine()
		if err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			return current, nil
		}
		return line, nil
	}
	var err error
	if draft.Name, err = prompt("name", draft.Name); err != nil {
		return err
	}
	if draft.Email, err = prompt("email", draft.Email); err != nil {
		return err
	}
	if draft.Description, err = prompt("description", draft.Description); err != nil {
		return err
	}
	if draft.ForwardingEmail, err = prompt("forwarding email", draft.ForwardingEmail); err != nil {
		return err
	}
	return nil
}

func printBots(bots []domain.Bot) {
	if len(bots) == 0 {
		fmt.Println("no bots")
		return
	}
	for _, b := range bots {
		assistant := b.AssistantID
		if assistant == "" {
			assistant = "-"
		}
		fmt.Printf("%s  %-20s %-30s forward=%s assistant=%s\n", b.ID, b.Name, b.Email, b.ForwardingEmail, assistant)
	}
}

func printSettings(s domain.Settings) {
	fmt.Printf("timezone=%s email_notifications=%v\n", s.Timezone, s.EmailNotifications)
}

var stdin = bufio.NewReader(os.Stdin)

func readLine() (string, error) {
	line, err := stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
