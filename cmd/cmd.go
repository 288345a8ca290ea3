package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/shopfloor-ops/change-relay/config"
	"github.com/shopfloor-ops/change-relay/internal/domain/model"
	"github.com/urfave/cli/v2"
)

const (
	ServiceName      = "change-relay"
	ServiceNamespace = "shopfloor"
)

var (
	version        = "0.0.0"
	commit         = "hash"
	commitDate     = time.Now().String()
	branch         = "branch"
	buildTimestamp = ""
)

func versionString() string {
	built := commitDate
	if buildTimestamp != "" {
		built = buildTimestamp
	}
	return fmt.Sprintf("%s (%s@%s, %s)", version, branch, commit, built)
}

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Relays database change streams to browser dashboards over SSE",
		Version: versionString(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config_file",
				Usage:   "Path to the configuration file",
				EnvVars: []string{config.EnvPrefix + "_CONFIG_FILE"},
			},
		},
		Commands: []*cli.Command{
			serverCmd(),
			emitCmd(),
			topicsCmd(),
		},
	}

	return app.Run(os.Args)
}

// loadConfig passes everything after "--" to the config flag set.
func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.LoadConfig(c.String("config_file"), c.Args().Slice())
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the relay HTTP server",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			app := NewApp(cfg)

			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("Shutting down...")
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			return app.Stop(ctx)
		},
	}
}

func emitCmd() *cli.Command {
	return &cli.Command{
		Name:    "emit",
		Aliases: []string{"e"},
		Usage:   "Publish one change record on the message bus",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "collection", Required: true, Usage: "collection the change belongs to"},
			&cli.StringFlag{Name: "op", Value: string(model.OpInsert), Usage: "insert|update|replace|delete"},
			&cli.StringFlag{Name: "id", Required: true, Usage: "document id"},
			&cli.StringFlag{Name: "document", Usage: "full document as JSON"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			rec, err := buildRecord(c.String("op"), c.String("id"), c.String("document"))
			if err != nil {
				return err
			}

			app := NewEmitApp(cfg, c.String("collection"), rec)
			if err := app.Start(c.Context); err != nil {
				return err
			}
			return app.Stop(context.Background())
		},
	}
}

func topicsCmd() *cli.Command {
	return &cli.Command{
		Name:  "topics",
		Usage: "List configured topics",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TOPIC\tCOLLECTION\tOPERATIONS\tLOOKUP")
			for _, t := range cfg.TopicConfigs() {
				ops := make([]string, 0, len(t.Operations))
				for _, op := range t.Operations {
					ops = append(ops, string(op))
				}
				lookup := "-"
				if t.LookupOnUpdate {
					lookup = "on update, requires " + t.RequiredField
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name, t.Collection, strings.Join(ops, ","), lookup)
			}
			return tw.Flush()
		},
	}
}

func buildRecord(op, id, document string) (*model.ChangeRecord, error) {
	kind, err := model.ParseOperationKind(op)
	if err != nil {
		return nil, err
	}
	rec := &model.ChangeRecord{Op: kind, DocumentID: id}
	if document != "" && kind != model.OpDelete {
		if err := json.Unmarshal([]byte(document), &rec.Document); err != nil {
			return nil, fmt.Errorf("--document: %w", err)
		}
	}
	return rec, nil
}
