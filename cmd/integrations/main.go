// Command integrations is the operator CLI for integration credentials.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/ManuelReschke/IntegrationGate/app/models"
	"github.com/ManuelReschke/IntegrationGate/app/repository"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/config"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/credentials"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/database"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/env"
	"github.com/ManuelReschke/IntegrationGate/internal/pkg/events"
)

type app struct {
	out          io.Writer
	integrations *credentials.IntegrationService
	secrets      *credentials.SecretManager
	dispatcher   *events.Dispatcher
}

func main() {
	env.LoadEnvFile()
	database.SetupDatabase()
	repos := repository.NewRepositories(database.GetDB())
	cfg := config.FromEnv()

	dispatcher := events.NewDispatcher()
	dispatcher.Listen(events.ActivityLogger{})
	dispatcher.Listen(events.NewAuditRecorder(repos.AuditLog))

	a := &app{
		out:          os.Stdout,
		integrations: credentials.NewIntegrationService(repos.Integration, repos.Secret, cfg),
		secrets:      credentials.NewSecretManager(repos.Secret, cfg),
		dispatcher:   dispatcher,
	}
	if err := a.command().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:  "integrations",
		Usage: "Inspect and maintain integration credentials",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List integrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "user", Usage: "Only integrations of this user id"},
					&cli.StringFlag{Name: "status", Usage: "active or inactive"},
					&cli.StringFlag{Name: "search", Usage: "Match name, description or client id"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum rows", Value: 50},
				},
				Action: a.list,
			},
			{
				Name:  "rotate",
				Usage: "Deactivate all secrets of an integration and issue a new one",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "client-id", Required: true},
					&cli.StringFlag{Name: "name", Usage: "Name of the new secret"},
				},
				Action: a.rotate,
			},
			{
				Name:  "cleanup",
				Usage: "Remove expired secrets of an integration",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "client-id", Required: true},
				},
				Action: a.cleanup,
			},
		},
	}
}

func (a *app) list(ctx context.Context, cmd *cli.Command) error {
	items, total, err := a.integrations.List(ctx, repository.IntegrationFilter{
		UserID: uint(cmd.Int("user")),
		Status: cmd.String("status"),
		Search: cmd.String("search"),
		Limit:  int(cmd.Int("limit")),
	})
	if err != nil {
		return fmt.Errorf("list integrations: %w", err)
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCLIENT ID\tSTATUS\tROLE\tUSER\tCREATED")
	for _, i := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			i.ID, i.Name, i.ClientID, i.Status, i.Role, i.UserID, i.CreatedAt.UTC().Format(time.DateTime))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d of %d integrations\n", len(items), total)
	return nil
}

func (a *app) rotate(ctx context.Context, cmd *cli.Command) error {
	i, err := a.integrations.GetByClientID(ctx, cmd.String("client-id"))
	if err != nil {
		return fmt.Errorf("find integration: %w", err)
	}
	secret, evs, err := a.secrets.Rotate(systemActor(ctx), i, cmd.String("name"))
	if err != nil {
		return fmt.Errorf("rotate secrets: %w", err)
	}
	a.dispatch(ctx, evs)
	fmt.Fprintf(a.out, "New secret %q (id %d) for %s:\n%s\n", secret.Name, secret.ID, i.ClientID, secret.SecretKey)
	return nil
}

func (a *app) cleanup(ctx context.Context, cmd *cli.Command) error {
	i, err := a.integrations.GetByClientID(ctx, cmd.String("client-id"))
	if err != nil {
		return fmt.Errorf("find integration: %w", err)
	}
	removed, evs, err := a.secrets.CleanupExpired(ctx, i)
	if err != nil {
		return fmt.Errorf("cleanup secrets: %w", err)
	}
	a.dispatch(ctx, evs)
	fmt.Fprintf(a.out, "Removed %d expired secrets from %s\n", removed, i.ClientID)
	return nil
}

func (a *app) dispatch(ctx context.Context, evs []events.Event) {
	if err := a.dispatcher.Dispatch(systemActor(ctx), evs...); err != nil {
		log.Printf("event listeners failed: %v", err)
	}
}

func systemActor(ctx context.Context) context.Context {
	return events.WithActor(ctx, &events.Actor{Type: models.AuditActorSystem, ID: "cli"})
}
