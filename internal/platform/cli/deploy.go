package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/nickalie/ddc/internal/core/deploy"
	"github.com/nickalie/ddc/internal/core/target"
)

type deployOptions struct {
	key           string
	exclude       []string
	dir           string
	port          int
	root          string
	tmpDir        string
	knownHosts    string
	chunkSize     string
	skipUnchanged bool
}

func (a *App) deployCommand() *cobra.Command {
	var opts deployOptions

	cmd := &cobra.Command{
		Use:   "deploy [host] [user]",
		Short: "Package the project, upload it over SSH and restart it with docker-compose",
		Long: `Packages the project directory into a tar.gz archive, uploads it to the
remote host, replaces the deployment directory with its contents and
rebuilds the compose stack there.

Without --key the SSH agent at $SSH_AUTH_SOCK is used. Host and user may
also come from the deploy section of the config file.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tgt, settings, err := a.deployTarget(cmd, args, opts)
			if err != nil {
				return err
			}

			run, err := a.deployer.Deploy(tgt, settings)
			if err != nil {
				return err
			}
			a.printRun(run)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.key, "key", "k", "", "Private key file, the SSH agent is used when empty")
	flags.StringSliceVarP(&opts.exclude, "exclude", "x", nil, "Ignore patterns replacing .ddcignore and the defaults")
	flags.StringVarP(&opts.dir, "dir", "d", "", "Project directory to deploy (default \".\")")
	flags.IntVarP(&opts.port, "port", "p", 0, "SSH port (default 22)")
	flags.StringVar(&opts.root, "root", "", "Remote deployment directory, {{user}} is the login user (default \"/home/{{user}}/web\")")
	flags.StringVar(&opts.tmpDir, "tmp-dir", "", "Remote directory the archive is uploaded to (default \"/tmp\")")
	flags.StringVar(&opts.knownHosts, "known-hosts", "", "known_hosts file used to verify the host key")
	flags.StringVar(&opts.chunkSize, "chunk-size", "", "Upload chunk size, e.g. 512KB (default 1MB)")
	flags.BoolVar(&opts.skipUnchanged, "skip-unchanged", false, "Skip the upload when the project did not change since the last deployment")

	return cmd
}

// deployTarget merges positional arguments and flags over the config file
func (a *App) deployTarget(cmd *cobra.Command, args []string, opts deployOptions) (*target.Target, deploy.Settings, error) {
	tgt := a.cfg.Target()
	settings := a.cfg.Settings()

	if len(args) > 0 {
		tgt.Host = args[0]
	}
	if len(args) > 1 {
		tgt.User = args[1]
	}
	if opts.key != "" {
		tgt.PrivateKey = opts.key
	}
	if opts.port != 0 {
		tgt.Port = opts.port
	}
	if opts.knownHosts != "" {
		tgt.KnownHosts = opts.knownHosts
	}

	if tgt.Host == "" {
		return nil, settings, errors.New("host is required: pass it as the first argument or set deploy.host in the config")
	}
	if err := validateTarget(tgt); err != nil {
		return nil, settings, err
	}

	if len(opts.exclude) > 0 {
		settings.Exclude = opts.exclude
	}
	if opts.dir != "" {
		settings.ProjectDir = opts.dir
	}
	if opts.root != "" {
		settings.RemoteRoot = opts.root
	}
	if opts.tmpDir != "" {
		settings.RemoteTmpDir = opts.tmpDir
	}
	if opts.chunkSize != "" {
		size, err := humanize.ParseBytes(opts.chunkSize)
		if err != nil || size == 0 {
			return nil, settings, fmt.Errorf("invalid chunk size %q", opts.chunkSize)
		}
		settings.ChunkSize = int(size)
	}
	if cmd.Flags().Changed("skip-unchanged") {
		settings.SkipUnchanged = opts.skipUnchanged
	}

	return tgt, settings, nil
}

func validateTarget(tgt *target.Target) error {
	err := validator.New().Struct(tgt)
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid target: %s", strings.Join(msgs, "; "))
}

func (a *App) printRun(run *deploy.Run) {
	if run.Skipped {
		fmt.Fprintf(a.out, "%s %s is up to date\n", yellow("-"), run.Target.GetName())
		return
	}

	detail := ""
	if run.Artifact != nil {
		detail = fmt.Sprintf(" (%d files, %s)", run.Artifact.Files, humanize.Bytes(uint64(run.Artifact.Size)))
	}
	fmt.Fprintf(a.out, "%s Deployed to %s%s in %s\n",
		green("✓"), bold(run.Target.GetName()), detail, run.Duration.Round(time.Millisecond))
}

func (a *App) historyCommand() *cobra.Command {
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded deployments",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if clearAll {
				if err := a.history.Clear(); err != nil {
					return err
				}
				fmt.Fprintln(a.out, "Deployment history cleared")
				return nil
			}

			entries, err := a.history.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(a.out, "No deployments recorded")
				return nil
			}

			w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TARGET\tDEPLOYED\tFILES\tSIZE\tDIGEST")
			for i := len(entries) - 1; i >= 0; i-- {
				e := entries[i]
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					e.Target, humanize.Time(e.DeployedAt), e.Files, humanize.Bytes(uint64(e.Size)), shortDigest(e.Digest))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&clearAll, "clear", false, "Remove all recorded deployments")
	return cmd
}

func shortDigest(digest string) string {
	const keep = len("sha256:") + 12
	if len(digest) <= keep {
		return digest
	}
	return digest[:keep]
}
