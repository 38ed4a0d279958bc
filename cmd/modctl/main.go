package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/muso/admin-backend/internal/app"
	"github.com/muso/admin-backend/internal/config"
	"github.com/muso/admin-backend/internal/middleware"
	"github.com/muso/admin-backend/internal/models"
	"github.com/muso/admin-backend/internal/services"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "modctl",
		Usage: "Operator tooling for the moderation backend",
		Commands: []*cli.Command{
			scoreCommand(),
			reputationCommand(),
			historyCommand(),
			reportsCommand(),
			actCommand(),
			tokenCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		fmt.Fprintln(os.Stderr, "modctl:", err)
		os.Exit(1)
	}
}

// withApp loads config from the environment and wires services for one command.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg := config.Load()
	logger, err := config.NewLogger(cfg.Env)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func scoreCommand() *cli.Command {
	return &cli.Command{
		Name:  "score",
		Usage: "Run one suspicion scoring pass",
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, func(a *app.App) error {
				report, err := a.Suspicion.Rescore(ctx)
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
}

func reputationCommand() *cli.Command {
	return &cli.Command{
		Name:      "reputation",
		Usage:     "Show a user's reputation",
		ArgsUsage: "<userId>",
		Action: func(ctx context.Context, c *cli.Command) error {
			userID := c.Args().First()
			if userID == "" {
				return errors.New("userId is required")
			}
			return withApp(ctx, func(a *app.App) error {
				rep, err := a.Reputation.Get(ctx, userID)
				if err != nil {
					return err
				}
				return printJSON(map[string]interface{}{
					"reputation":         rep,
					"effectivelyBanned":  rep.EffectivelyBanned(),
					"isPermanentBan":     rep.IsPermanentBan(a.Reputation.Now()),
					"activeRestrictions": rep.ActiveRestrictions(),
				})
			})
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List admin actions taken against a user, newest first",
		ArgsUsage: "<userId>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: services.DefaultHistoryLimit},
			&cli.BoolFlag{Name: "notes", Usage: "list admin notes instead"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			userID := c.Args().First()
			if userID == "" {
				return errors.New("userId is required")
			}
			return withApp(ctx, func(a *app.App) error {
				if c.Bool("notes") {
					notes, err := a.Audit.ListNotes(ctx, userID, int(c.Int("limit")))
					if err != nil {
						return err
					}
					return printJSON(notes)
				}
				actions, err := a.Audit.ListForUser(ctx, userID, int(c.Int("limit")))
				if err != nil {
					return err
				}
				return printJSON(actions)
			})
		},
	}
}

func reportsCommand() *cli.Command {
	return &cli.Command{
		Name:  "reports",
		Usage: "List user reports, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Usage: "pending, confirmed or denied"},
			&cli.StringFlag{Name: "user", Usage: "only reports filed by this user"},
			&cli.IntFlag{Name: "limit", Value: 50},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			f := services.ReportFilter{UserID: c.String("user"), Limit: int(c.Int("limit"))}
			if raw := c.String("status"); raw != "" {
				st, ok := models.ParseReportStatus(raw)
				if !ok {
					return fmt.Errorf("unknown report status %q", raw)
				}
				f.Status = st
			}
			return withApp(ctx, func(a *app.App) error {
				reports, err := a.Reports.List(ctx, f)
				if err != nil {
					return err
				}
				return printJSON(reports)
			})
		},
	}
}

func actCommand() *cli.Command {
	return &cli.Command{
		Name:      "act",
		Usage:     "Apply a moderation action as a named admin",
		ArgsUsage: "<type> <userId>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "admin-uid", Required: true},
			&cli.StringFlag{Name: "admin-email", Required: true},
			&cli.StringFlag{Name: "reason"},
			&cli.IntFlag{Name: "score-change"},
			&cli.FloatFlag{Name: "hours"},
			&cli.StringFlag{Name: "note"},
			&cli.StringFlag{Name: "category"},
			&cli.StringFlag{Name: "status", Usage: "reviewed or dismissed for reviewSuspicion, confirmed or denied for resolveReport"},
			&cli.StringFlag{Name: "report-id", Usage: "report to resolve for resolveReport"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 2 {
				return errors.New("usage: modctl act <type> <userId>")
			}
			req := services.ActionRequest{
				Type:        c.Args().Get(0),
				Reason:      c.String("reason"),
				ScoreChange: int64(c.Int("score-change")),
				Hours:       c.Float("hours"),
				Note:        c.String("note"),
				Category:    c.String("category"),
				Status:      c.String("status"),
				ReportID:    c.String("report-id"),
			}
			action, err := req.ToAction(c.Args().Get(1))
			if err != nil {
				return err
			}
			actor := services.Principal{UID: c.String("admin-uid"), Email: c.String("admin-email")}

			return withApp(ctx, func(a *app.App) error {
				out, err := a.Actions.Dispatch(ctx, actor, action)
				if errors.Is(err, services.ErrAuditIncomplete) {
					zap.S().Warnw("action applied but not audited", "error", err)
					return printJSON(out)
				}
				if err != nil {
					return err
				}
				return printJSON(out)
			})
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Mint a signed service token for the admin API (requires JWT_SECRET)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "uid", Required: true},
			&cli.StringFlag{Name: "email", Required: true},
			&cli.DurationFlag{Name: "ttl"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := config.Load()
			ttl := c.Duration("ttl")
			if ttl <= 0 {
				ttl = cfg.JWTTTL
			}
			token, err := middleware.MintToken(cfg.JWTSecret, cfg.JWTIssuer, c.String("uid"), c.String("email"), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
}
