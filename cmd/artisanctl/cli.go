package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/goliatone/go-artisan"
	"github.com/goliatone/go-artisan/gateway"
	"github.com/goliatone/go-artisan/internal/config"
	"github.com/goliatone/go-artisan/internal/logging"
	"github.com/goliatone/go-artisan/remote"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"go.uber.org/zap"
)

// cli carries the state shared by every subcommand.
type cli struct {
	configPath  string
	baseURL     string
	credentials string
	verbose     bool

	cfg    *config.Config
	zl     *zap.Logger
	log    *logging.Printf
	db     *bun.DB
	client *gateway.Client
	store  *remote.Store
	auth   *remote.AuthAPI
	out    io.Writer
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.baseURL != "" {
		cfg.Client.BaseURL = c.baseURL
	}
	if c.credentials != "" {
		cfg.Client.CredentialsPath = c.credentials
	}
	if err := cfg.ValidateClient(); err != nil {
		return err
	}
	c.cfg = cfg
	c.out = cmd.OutOrStdout()

	level := "warn"
	if c.verbose {
		level = "debug"
	}
	zl, err := logging.New(level, true)
	if err != nil {
		return err
	}
	c.zl = zl
	c.log = logging.NewPrintf(zl)

	creds, err := c.openCredentials(cmd.Context())
	if err != nil {
		return err
	}

	c.client = gateway.NewClient(cfg.Client.BaseURL,
		gateway.WithCredentialStore(creds),
		gateway.WithHTTPClient(&http.Client{Timeout: cfg.Client.Timeout}),
		gateway.WithRefreshTimeout(cfg.Client.RefreshTimeout),
		gateway.WithLogger(c.log.Named("gateway")),
		gateway.WithUserAgent("artisanctl"),
	)
	c.store = remote.NewStore(c.client)
	c.auth = remote.NewAuthAPI(c.client)
	return nil
}

func (c *cli) openCredentials(ctx context.Context) (*gateway.BunCredentials, error) {
	path := c.cfg.Client.CredentialsPath
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("credentials dir: %w", err)
	}
	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open credentials: %w", err)
	}
	sqldb.SetMaxOpenConns(1)
	c.db = bun.NewDB(sqldb, sqlitedialect.New())

	creds := gateway.NewBunCredentials(c.db)
	if err := creds.CreateSchema(ctx); err != nil {
		return nil, err
	}
	return creds, nil
}

func (c *cli) close() {
	if c.db != nil {
		_ = c.db.Close()
	}
	if c.zl != nil {
		_ = c.zl.Sync()
	}
}

func (c *cli) print(v any) {
	fmt.Fprintln(c.out, print.MaybePrettyJSON(v))
}

// workflow loads id into a fresh workflow so actions are checked locally
// before any request is sent.
func (c *cli) workflow(ctx context.Context, id string) (*artisan.Workflow, error) {
	wf := artisan.NewWorkflow(c.store, id, artisan.WithWorkflowLogger(c.log.Named("workflow")))
	if err := wf.Load(ctx); err != nil {
		return nil, err
	}
	return wf, nil
}

// run executes args against a fresh command tree and releases the session
// resources whether or not the command succeeds.
func run(ctx context.Context, args []string, out io.Writer) error {
	c := &cli{}
	defer c.close()

	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "artisanctl",
		Short:         "Manage artisans through the back office API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "artisan.yaml", "Path to the YAML config")
	flags.StringVar(&c.baseURL, "base-url", "", "API base URL")
	flags.StringVar(&c.credentials, "credentials", "", "Path to the credentials database")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		loginCmd(c),
		meCmd(c),
		logoutCmd(c),
		listCmd(c),
		getCmd(c),
		actionCmd(c, "block", "Block an artisan", (*artisan.Workflow).Block),
		actionCmd(c, "unblock", "Unblock an artisan", (*artisan.Workflow).Unblock),
		actionCmd(c, "approve", "Approve a pending artisan with a verified ID", (*artisan.Workflow).Approve),
		actionCmd(c, "reupload", "Ask the artisan to upload a new ID document", (*artisan.Workflow).RequestReupload),
		verifyCmd(c),
	)
	return root
}
