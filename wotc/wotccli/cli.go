// Package wotccli is the admin command surface: everything the operations
// UI exposes maps onto a command here.
package wotccli

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/wotcworks/wotc-app/conf"
	"github.com/wotcworks/wotc-app/wotc/database"
	"github.com/wotcworks/wotc-app/wotc/models"
	"github.com/wotcworks/wotc-app/wotc/repository"
	"github.com/wotcworks/wotc-app/wotc/repository/postgres"
	"github.com/wotcworks/wotc-app/wotc/service"
	"github.com/wotcworks/wotc-app/wotc/vault"
	"github.com/wotcworks/wotc-app/wotcworker/queueing"
)

// App Name and usage. Edit them here to prevent breaking tests.
const Name = "wotc"
const Usage = "WOTC State Submission Orchestration CLI"

func GetApp() *cli.App {
	return setUpApp()
}

// deps holds everything a command needs; built lazily so commands like
// migrate work without a vault key in the environment.
type deps struct {
	db      *sql.DB
	repo    repository.Repository
	vault   *vault.Vault
	service *service.Service
}

func setup() (*deps, error) {
	db := database.GetDbConnection()
	repo := postgres.NewRepository(db)

	key, err := vault.LoadKey()
	if err != nil {
		return nil, err
	}
	v := vault.New(db, repo, key)

	enqueuer := queueing.NewEnqueuer(database.GetQueuePool())
	return &deps{
		db:      db,
		repo:    repo,
		vault:   v,
		service: service.New(repo, v, enqueuer),
	}, nil
}

func setUpApp() *cli.App {
	app := cli.NewApp()
	app.Name = Name
	app.Usage = Usage

	var employerID, portalID, jobID int64
	var employerName, stateCode, username, password, mfaSecret, mfaType,
		challengeAnswers, actor, reason, rotationType, direction string
	var frequencyDays int

	app.Commands = []cli.Command{
		{
			Name:     "trigger-submission",
			Category: "Submission tools",
			Usage:    "Queue a submission of all certified screenings for an employer and state",
			Flags: []cli.Flag{
				cli.Int64Flag{
					Name:        "employer-id",
					Usage:       "ID of employer",
					Destination: &employerID,
				},
				cli.StringFlag{
					Name:        "employer-name",
					Usage:       "Display name of employer, used in notifications",
					Destination: &employerName,
				},
				cli.StringFlag{
					Name:        "state",
					Usage:       "Two letter state code",
					Destination: &stateCode,
				},
			},
			Action: func(c *cli.Context) error {
				d, err := setup()
				if err != nil {
					return err
				}
				defer d.db.Close()

				id, err := d.service.TriggerSubmission(context.Background(), employerID, employerName, stateCode)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "Submission job %d queued\n", id)
				return nil
			},
		},
		{
			Name:     "trigger-capture",
			Category: "Submission tools",
			Usage:    "Queue a determination capture run for a state",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "state",
					Usage:       "Two letter state code",
					Destination: &stateCode,
				},
			},
			Action: func(c *cli.Context) error {
				d, err := setup()
				if err != nil {
					return err
				}
				defer d.db.Close()

				if err := d.service.TriggerCapture(context.Background(), stateCode); err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "Capture run queued for %s\n", stateCode)
				return nil
			},
		},
		{
			Name:     "job-status",
			Category: "Submission tools",
			Usage:    "Show a submission job's current state",
			Flags: []cli.Flag{
				cli.Int64Flag{
					Name:        "job-id",
					Usage:       "ID of submission job",
					Destination: &jobID,
				},
			},
			Action: func(c *cli.Context) error {
				d, err := setup()
				if err != nil {
					return err
				}
				defer d.db.Close()

				job, err := d.service.GetJobStatus(context.Background(), jobID)
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(job, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "%s\n", out)
				return nil
			},
		},
		{
			Name:     "test-credentials",
			Category: "Credential tools",
			Usage:    "Perform a login-only round trip against a portal with its stored credentials",
			Flags: []cli.Flag{
				cli.Int64Flag{
					Name:        "portal-id",
					Usage:       "ID of state portal config",
					Destination: &portalID,
				},
			},
			Action: func(c *cli.Context) error {
				d, err := setup()
				if err != nil {
					return err
				}
				defer d.db.Close()

				if err := d.service.TestCredentials(context.Background(), portalID); err != nil {
					fmt.Fprintf(app.Writer, "Credential test failed: %s\n", err.Error())
					return err
				}
				fmt.Fprintf(app.Writer, "Credential test succeeded for portal %d\n", portalID)
				return nil
			},
		},
		{
			Name:     "rotate-credentials",
			Category: "Credential tools",
			Usage:    "Replace a portal's stored credentials and append the rotation history entry",
			Flags: []cli.Flag{
				cli.Int64Flag{
					Name:        "portal-id",
					Usage:       "ID of state portal config",
					Destination: &portalID,
				},
				cli.StringFlag{
					Name:        "username",
					Usage:       "New portal username",
					Destination: &username,
				},
				cli.StringFlag{
					Name:        "password",
					Usage:       "New portal password",
					Destination: &password,
				},
				cli.StringFlag{
					Name:        "mfa-secret",
					Usage:       "New TOTP shared secret, if any",
					Destination: &mfaSecret,
				},
				cli.StringFlag{
					Name:        "mfa-type",
					Usage:       "MFA factor: totp, sms, email, or none",
					Value:       string(models.MFATypeNone),
					Destination: &mfaType,
				},
				cli.StringFlag{
					Name:        "challenge-answers",
					Usage:       "JSON object of challenge question to answer",
					Destination: &challengeAnswers,
				},
				cli.StringFlag{
					Name:        "actor",
					Usage:       "Operator performing the rotation",
					Destination: &actor,
				},
				cli.StringFlag{
					Name:        "reason",
					Usage:       "Why the rotation is happening",
					Destination: &reason,
				},
				cli.StringFlag{
					Name:        "rotation-type",
					Usage:       "manual, scheduled, or security-incident",
					Value:       string(models.RotationManual),
					Destination: &rotationType,
				},
			},
			Action: func(c *cli.Context) error {
				var answers map[string]string
				if challengeAnswers != "" {
					if err := json.Unmarshal([]byte(challengeAnswers), &answers); err != nil {
						return errors.Wrap(err, "challenge-answers must be a JSON object")
					}
				}

				d, err := setup()
				if err != nil {
					return err
				}
				defer d.db.Close()

				result, err := d.vault.Rotate(context.Background(), portalID, vault.NewCredentials{
					Username:         username,
					Password:         password,
					MFASecret:        mfaSecret,
					MFAType:          models.MFAType(mfaType),
					ChallengeAnswers: answers,
				}, actor, reason, models.RotationType(rotationType))
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "Credentials rotated for portal %d; next rotation due %s\n",
					result.PortalID, result.NextRotationDue.Format("2006-01-02"))
				return nil
			},
		},
		{
			Name:     "set-rotation-schedule",
			Category: "Credential tools",
			Usage:    "Set a portal's rotation frequency",
			Flags: []cli.Flag{
				cli.Int64Flag{
					Name:        "portal-id",
					Usage:       "ID of state portal config",
					Destination: &portalID,
				},
				cli.IntFlag{
					Name:        "frequency-days",
					Usage:       "Days between rotations",
					Destination: &frequencyDays,
				},
			},
			Action: func(c *cli.Context) error {
				d, err := setup()
				if err != nil {
					return err
				}
				defer d.db.Close()

				nextDue, err := d.vault.SetRotationSchedule(context.Background(), portalID, frequencyDays)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "Next rotation due %s\n", nextDue.Format("2006-01-02"))
				return nil
			},
		},
		{
			Name:     "rotation-due",
			Category: "Credential tools",
			Usage:    "List portals that are overdue or due soon for rotation",
			Action: func(c *cli.Context) error {
				d, err := setup()
				if err != nil {
					return err
				}
				defer d.db.Close()

				items, err := d.vault.RotationDue(context.Background())
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(items, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "%s\n", out)
				return nil
			},
		},
		{
			Name:     "rotation-history",
			Category: "Credential tools",
			Usage:    "Show the rotation audit trail for a portal",
			Flags: []cli.Flag{
				cli.Int64Flag{
					Name:        "portal-id",
					Usage:       "ID of state portal config",
					Destination: &portalID,
				},
			},
			Action: func(c *cli.Context) error {
				d, err := setup()
				if err != nil {
					return err
				}
				defer d.db.Close()

				history, err := d.repo.GetRotationHistory(context.Background(), portalID)
				if err != nil {
					return err
				}
				out, err := json.MarshalIndent(history, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "%s\n", out)
				return nil
			},
		},
		{
			Name:     "migrate",
			Category: "Database tools",
			Usage:    "Apply schema migrations to the main and queue databases",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "direction",
					Usage:       "up or down",
					Value:       "up",
					Destination: &direction,
				},
			},
			Action: func(c *cli.Context) error {
				if err := runMigrations("file://db/migrations/wotc", conf.GetEnv("DATABASE_URL"), direction); err != nil {
					return err
				}
				queueURL := conf.GetEnv("QUEUE_DATABASE_URL")
				if queueURL == "" {
					queueURL = conf.GetEnv("DATABASE_URL")
				}
				if err := runMigrations("file://db/migrations/wotc_queue", queueURL, direction); err != nil {
					return err
				}
				fmt.Fprintf(app.Writer, "Migrations applied (%s)\n", direction)
				return nil
			},
		},
	}
	return app
}

func runMigrations(sourceURL, databaseURL, direction string) error {
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	switch direction {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	default:
		return errors.Errorf("unknown migration direction %q", direction)
	}
	if err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
