package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/splax/teamup/pkg/client"
)

type cliConfig struct {
	APIBaseURL   string `json:"api_base_url"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

var buildVersion = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "register":
		err = commandRegister(args)
	case "refresh":
		err = commandRefresh(args)
	case "team":
		err = commandTeam(args)
	case "offer":
		err = commandOffer(args)
	case "inbox":
		err = commandInbox(args)
	case "history":
		err = commandHistory(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func commandRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	name := fs.String("name", "", "Display name")
	email := fs.String("email", "", "Email address")
	apiBase := fs.String("api", "", "API base URL (default http://localhost:4000)")
	fs.Parse(args)

	if strings.TrimSpace(*email) == "" || strings.TrimSpace(*name) == "" {
		return errors.New("--name and --email are required")
	}
	cfg, _ := loadConfig()
	if strings.TrimSpace(*apiBase) != "" {
		cfg.APIBaseURL = *apiBase
	}
	api, err := client.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	resp, err := api.Register(ctx, *name, *email)
	if err != nil {
		return err
	}
	cfg.AccessToken = resp.Tokens.AccessToken
	cfg.RefreshToken = resp.Tokens.RefreshToken
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Printf("registered %s (%s)\n", resp.Individual.Name, resp.Individual.ID)
	return nil
}

func commandRefresh(args []string) error {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if strings.TrimSpace(cfg.RefreshToken) == "" {
		return errors.New("please register first using 'teamup register'")
	}
	api, err := client.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	tokens, err := api.Refresh(ctx, cfg.RefreshToken)
	if err != nil {
		return err
	}
	cfg.AccessToken = tokens.AccessToken
	cfg.RefreshToken = tokens.RefreshToken
	if err := saveConfig(cfg); err != nil {
		return err
	}
	fmt.Println("tokens refreshed")
	return nil
}

func commandTeam(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: teamup team [show|found|apply|scout|fire|leave|complete|recruiting|positions]")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "show":
		return teamShow(rest)
	case "found":
		return teamFound(rest)
	case "apply":
		return teamApply(rest)
	case "scout":
		return teamScout(rest)
	case "fire":
		return teamFire(rest)
	case "leave":
		return teamLeave(rest)
	case "complete":
		return teamComplete(rest)
	case "recruiting":
		return teamRecruiting(rest)
	case "positions":
		return teamPositions(rest)
	default:
		return fmt.Errorf("unknown team command: %s", sub)
	}
}

func teamShow(args []string) error {
	fs := flag.NewFlagSet("team show", flag.ExitOnError)
	teamID := fs.String("team", "", "Team identifier (default: your current team)")
	fs.Parse(args)

	return withSession(func(ctx context.Context, api *client.Client, token string) error {
		var (
			view client.TeamView
			err  error
		)
		if strings.TrimSpace(*teamID) == "" {
			view, err = api.CurrentTeam(ctx, token)
		} else {
			view, err = api.Team(ctx, token, *teamID)
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\trecruiting=%t\n", view.Team.ID, view.Team.Name, view.Team.IsRecruiting)
		for _, seat := range view.Seats {
			fmt.Printf("  %-9s %d/%d\n", seat.Role, seat.Occupied, seat.Max)
		}
		for _, m := range view.Members {
			leader := ""
			if m.IsLeader {
				leader = " (leader)"
			}
			fmt.Printf("  %s\t%s%s\n", m.IndividualID, m.Role, leader)
		}
		return nil
	})
}

func teamFound(args []string) error {
	fs := flag.NewFlagSet("team found", flag.ExitOnError)
	name := fs.String("name", "", "Team name")
	description := fs.String("description", "", "Optional description")
	role := fs.String("role", "manager", "Your own role on the team")
	var positions client.Positions
	fs.IntVar(&positions.Designer, "designer", 0, "Designer seats")
	fs.IntVar(&positions.Backend, "backend", 0, "Backend seats")
	fs.IntVar(&positions.Frontend, "frontend", 0, "Frontend seats")
	fs.IntVar(&positions.Manager, "manager", 1, "Manager seats")
	fs.Parse(args)

	if strings.TrimSpace(*name) == "" {
		return errors.New("--name is required")
	}
	return withSession(func(ctx context.Context, api *client.Client, token string) error {
		team, err := api.FoundTeam(ctx, token, *name, *description, *role, positions)
		if err != nil {
			return err
		}
		fmt.Printf("team founded: %s\n", team.ID)
		return nil
	})
}

func teamApply(args []string) error {
	fs := flag.NewFlagSet("team apply", flag.ExitOnError)
	teamID := fs.String("team", "", "Team identifier")
	role := fs.String("role", "", "Role to apply for")
	fs.Parse(args)

	if strings.TrimSpace(*teamID) == "" || strings.TrimSpace(*role) == "" {
		return errors.New("--team and --role are required")
	}
	return withSession(func(ctx context.Context, api *client.Client, token string) error {
		offer, err := api.Apply(ctx, token, *teamID, *role)
		if err != nil {
			return err
		}
		fmt.Printf("application sent: %s\n", offer.ID)
		return nil
	})
}

func teamScout(args []string) error {
	fs := flag.NewFlagSet("team scout", flag.ExitOnError)
	individual := fs.String("individual", "", "Individual identifier")
	role := fs.String("role", "", "Role offered")
	fs.Parse(args)

	if strings.TrimSpace(*individual) == "" || strings.TrimSpace(*role) == "" {
		return errors.New("--individual and --role are required")
	}
	return withSession(func(ctx context.Context, api *client.Client, token string) error {
		offer, err := api.Scout(ctx, token, *individual, *role)
		if err != nil {
			return err
		}
		fmt.Printf("scout sent: %s\n", offer.ID)
		return nil
	})
}

func teamFire(args []string) error {
	fs := flag.NewFlagSet("team fire", flag.ExitOnError)
	individual := fs.String("individual", "", "Member to fire")
	fs.Parse(args)

	if strings.TrimSpace(*individual) == "" {
		return errors.New("--individual is required")
	}
	return withSession(func(ctx context.Context, api *client.Client, token string) error {
		if _, err := api.Fire(ctx, token, *individual); err != nil {
			return err
		}
		fmt.Println("member fired")
		return nil
	})
}

func teamLeave(args []string) error {
	fs := flag.NewFlagSet("team leave", flag.ExitOnError)
	fs.Parse(args)
	return withSession(func(ctx context.Context, api *client.Client, token string) error {
		if _, err := api.Leave(ctx, token); err != nil {
			return err
		}
		fmt.Println("left team")
		return nil
	})
}

func teamComplete(args []string) error {
	fs := flag.NewFlagSet("team complete", flag.ExitOnError)
	result := fs.String("result", "", "Result URL (omit to end the project as incomplete)")
	fs.Parse(args)
	return withSession(func(ctx context.Context, api *client.Client, token string) error {
		team, err := api.Complete(ctx, token, *result)
		if err != nil {
			return err
		}
		if team.ResultURL == "" {
			fmt.Println("project ended without a result")
			return nil
		}
		fmt.Printf("project completed: %s\n", team.ResultURL)
		return nil
	})
}

func teamRecruiting(args []string) error {
	fs := flag.NewFlagSet("team recruiting", flag.ExitOnError)
	teamID := fs.String("team", "", "Team identifier")
	on := fs.Bool("on", true, "Accept new applications and scouts")
	fs.Parse(args)

	if strings.TrimSpace(*teamID) == "" {
		return errors.New("--team is required")
	}
	return withSession(func(ctx context.Context, api *client.Client, token string) error {
		team, err := api.SetRecruiting(ctx, token, *teamID, *on)
		if err != nil {
			return err
		}
		fmt.Printf("recruiting=%t\n", team.IsRecruiting)
		return nil
	})
}

func teamPositions(args []string) error {
	fs := flag.NewFlagSet("team positions", flag.ExitOnError)
	teamID := fs.String("team", "", "Team identifier")
	var positions client.Positions
	fs.IntVar(&positions.Designer, "designer", 0, "Designer seats")
	fs.IntVar(&positions.Backend, "backend", 0, "Backend seats")
	fs.IntVar(&positions.Frontend, "frontend", 0, "Frontend seats")
	fs.IntVar(&positions.Manager, "manager", 0, "Manager seats")
	fs.Parse(args)

	if strings.TrimSpace(*teamID) == "" {
		return errors.New("--team is required")
	}
	return withSession(func(ctx context.Context, api *client.Client, token string) error {
		team, err := api.AdjustPositions(ctx, token, *teamID, positions)
		if err != nil {
			return err
		}
		p := team.Positions
		fmt.Printf("designer=%d backend=%d frontend=%d manager=%d\n", p.Designer, p.Backend, p.Frontend, p.Manager)
		return nil
	})
}

func commandOffer(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: teamup offer [list|accept|decline|cancel]")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		return offerList(rest)
	case "accept":
		return offerDecide(rest, true)
	case "decline":
		return offerDecide(rest, false)
	case "cancel":
		return offerCancel(rest)
	default:
		return fmt.Errorf("unknown offer command: %s", sub)
	}
}

func offerList(args []string) error {
	fs := flag.NewFlagSet("offer list", flag.ExitOnError)
	team := fs.Bool("team", false, "List offers of the team you lead")
	limit := fs.Int("limit", 0, "Maximum number of offers to display")
	fs.Parse(args)

	return withSession(func(ctx context.Context, api *client.Client, token string) error {
		var (
			offers []client.Offer
			err    error
		)
		if *team {
			offers, err = api.TeamOffers(ctx, token, *limit)
		} else {
			offers, err = api.MyOffers(ctx, token, *limit)
		}
		if err != nil {
			return err
		}
		for _, o := range offers {
			fmt.Printf("%s\t%s\t%s\t%s\t%s\n", o.ID, o.Origin, o.TeamID, o.Role, decisionLabel(o.Decision))
		}
		return nil
	})
}

func offerDecide(args []string, accept bool) error {
	fs := flag.NewFlagSet("offer decide", flag.ExitOnError)
	offerID := fs.String("offer", "", "Offer identifier")
	fs.Parse(args)

	if strings.TrimSpace(*offerID) == "" {
		return errors.New("--offer is required")
	}
	return withSession(func(ctx context.Context, api *client.Client, token string) error {
		offer, err := api.Decide(ctx, token, *offerID, accept)
		if err != nil {
			return err
		}
		fmt.Printf("offer %s %s\n", offer.ID, decisionLabel(offer.Decision))
		return nil
	})
}

func offerCancel(args []string) error {
	fs := flag.NewFlagSet("offer cancel", flag.ExitOnError)
	offerID := fs.String("offer", "", "Offer identifier")
	fs.Parse(args)

	if strings.TrimSpace(*offerID) == "" {
		return errors.New("--offer is required")
	}
	return withSession(func(ctx context.Context, api *client.Client, token string) error {
		if err := api.Cancel(ctx, token, *offerID); err != nil {
			return err
		}
		fmt.Println("offer cancelled")
		return nil
	})
}

func commandInbox(args []string) error {
	fs := flag.NewFlagSet("inbox", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Maximum number of notifications to display")
	read := fs.Int64("read", 0, "Mark the notification with this id as read")
	fs.Parse(args)

	return withSession(func(ctx context.Context, api *client.Client, token string) error {
		if *read > 0 {
			return api.MarkRead(ctx, token, *read)
		}
		items, err := api.Notifications(ctx, token, *limit)
		if err != nil {
			return err
		}
		for _, n := range items {
			marker := "*"
			if n.ReadAt != nil {
				marker = " "
			}
			fmt.Printf("%s %d\t%s\t%s\t%s\n", marker, n.ID, n.CreatedAt.Format(time.RFC3339), n.Kind, string(n.Payload))
		}
		return nil
	})
}

func commandHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	fs.Parse(args)
	return withSession(func(ctx context.Context, api *client.Client, token string) error {
		history, err := api.History(ctx, token)
		if err != nil {
			return err
		}
		for _, m := range history {
			fmt.Printf("%s\t%s\t%s\t%s\t%s\n", m.TeamID, m.Role, m.Status, m.JoinedAt.Format(time.RFC3339), m.ResultURL)
		}
		return nil
	})
}

func withSession(fn func(ctx context.Context, api *client.Client, token string) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return errors.New("please register first using 'teamup register'")
	}
	api, err := client.New(cfg.APIBaseURL)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return fn(ctx, api, token)
}

func decisionLabel(decision *bool) string {
	switch {
	case decision == nil:
		return "pending"
	case *decision:
		return "accepted"
	default:
		return "declined"
	}
}

func loadConfig() (cliConfig, error) {
	path, err := configPath()
	if err != nil {
		return cliConfig{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cliConfig{APIBaseURL: "http://localhost:4000"}, nil
		}
		return cliConfig{}, err
	}
	var cfg cliConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cliConfig{}, err
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:4000"
	}
	return cfg, nil
}

func saveConfig(cfg cliConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func configPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "teamup", "config.json"), nil
}

func printUsage() {
	fmt.Printf("teamup CLI %s\n\n", buildVersion)
	fmt.Print(`Usage:
	teamup register --name <name> --email user@example.com [--api http://localhost:4000]
	teamup refresh
	teamup team show [--team <team-id>]
	teamup team found --name <name> [--role manager] [--designer N] [--backend N] [--frontend N] [--manager N]
	teamup team apply --team <team-id> --role <role>
	teamup team scout --individual <individual-id> --role <role>
	teamup team fire --individual <individual-id>
	teamup team leave
	teamup team complete [--result https://...]
	teamup team recruiting --team <team-id> [--on=false]
	teamup team positions --team <team-id> [--designer N] [--backend N] [--frontend N] [--manager N]
	teamup offer list [--team] [--limit N]
	teamup offer accept|decline --offer <offer-id>
	teamup offer cancel --offer <offer-id>
	teamup inbox [--limit N] [--read <id>]
	teamup history
	teamup version
`)
}

func printVersion() {
	fmt.Println(strings.TrimSpace(buildVersion))
}
