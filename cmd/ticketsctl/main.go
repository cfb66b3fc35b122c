package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"ticketing/db"
	"ticketing/db/data_lake"
	"ticketing/db/events"
	migrations "ticketing/migration"
	"ticketing/pkg"
	"ticketing/pkg/outbox"
	"ticketing/pubsub"
)

func main() {
	_ = godotenv.Load()
	log.Init(logrus.InfoLevel)

	if err := newApp().Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("Command failed")
	}
}

func newApp() *cli.App {
	postgresFlag := &cli.StringFlag{
		Name:     "postgres-url",
		EnvVars:  []string{"POSTGRES_URL"},
		Required: true,
	}
	redisFlag := &cli.StringFlag{
		Name:     "redis-addr",
		EnvVars:  []string{"REDIS_ADDR"},
		Required: true,
	}
	idFlag := &cli.StringFlag{
		Name:     "id",
		Usage:    "message UUID",
		Required: true,
	}

	return &cli.App{
		Name:  "ticketsctl",
		Usage: "Operate the ticketing service",
		Commands: []*cli.Command{
			{
				Name:  "init-db",
				Usage: "create tables, safe to run more than once",
				Flags: []cli.Flag{postgresFlag},
				Action: func(c *cli.Context) error {
					return withDB(c, func(dbConn *sqlx.DB) error {
						if err := db.InitializeDatabaseSchema(dbConn); err != nil {
							return err
						}

						logger := log.NewWatermill(log.FromContext(c.Context))
						return outbox.InitializeSchema(dbConn.DB, logger)
					})
				},
			},
			{
				Name:  "rebuild-attendees",
				Usage: "recompute event attendees from the data lake",
				Flags: []cli.Flag{postgresFlag},
				Action: func(c *cli.Context) error {
					return withDB(c, func(dbConn *sqlx.DB) error {
						return migrations.RebuildAttendees(
							c.Context,
							data_lake.NewDataLake(dbConn),
							events.NewPostgresRepository(dbConn),
						)
					})
				},
			},
			{
				Name:  "poison-queue",
				Usage: "manage messages that exhausted their retries",
				Flags: []cli.Flag{redisFlag},
				Subcommands: []*cli.Command{
					{
						Name:  "preview",
						Usage: "list messages",
						Action: func(c *cli.Context) error {
							return withPoisonQueue(c, func(ctx context.Context, queue pkg.PoisonQueue) error {
								messages, err := queue.Preview(ctx)
								if err != nil {
									return err
								}

								for _, m := range messages {
									fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\t%s\n", m.UUID, m.Topic, m.Handler, m.Reason)
								}
								return nil
							})
						},
					},
					{
						Name:  "remove",
						Usage: "drop a message",
						Flags: []cli.Flag{idFlag},
						Action: func(c *cli.Context) error {
							return withPoisonQueue(c, func(ctx context.Context, queue pkg.PoisonQueue) error {
								return queue.Remove(ctx, c.String("id"))
							})
						},
					},
					{
						Name:  "requeue",
						Usage: "send a message back to its topic",
						Flags: []cli.Flag{idFlag},
						Action: func(c *cli.Context) error {
							return withPoisonQueue(c, func(ctx context.Context, queue pkg.PoisonQueue) error {
								return queue.Requeue(ctx, c.String("id"))
							})
						},
					},
				},
			},
		},
	}
}

func withDB(c *cli.Context, fn func(dbConn *sqlx.DB) error) error {
	dbConn, err := db.Open(c.String("postgres-url"))
	if err != nil {
		return err
	}
	defer dbConn.Close()

	return fn(dbConn)
}

func withPoisonQueue(c *cli.Context, fn func(ctx context.Context, queue pkg.PoisonQueue) error) error {
	rdb := pkg.NewRedisClient(c.String("redis-addr"))
	defer rdb.Close()

	logger := log.NewWatermill(log.FromContext(c.Context))
	publisher := pkg.NewRedisPublisher(rdb, logger)
	defer publisher.Close()

	return fn(c.Context, pkg.NewPoisonQueue(rdb, publisher, pubsub.PoisonQueueTopic))
}
